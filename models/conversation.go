package models

// ConversationStatus — статус диалога на стороне бэкенда
type ConversationStatus string

const (
	StatusAIChat        ConversationStatus = "AI_CHAT"        // отвечает ИИ-ассистент
	StatusSupporterChat ConversationStatus = "SUPPORTER_CHAT" // диалог передан живому оператору
	StatusResolved      ConversationStatus = "RESOLVED"       // диалог закрыт
	StatusUnknown       ConversationStatus = "UNKNOWN"
)

// ParseConversationStatus приводит строку от бэкенда к известному статусу.
// Неизвестные значения не являются ошибкой — возвращается StatusUnknown.
func ParseConversationStatus(s string) ConversationStatus {
	switch ConversationStatus(s) {
	case StatusAIChat, StatusSupporterChat, StatusResolved:
		return ConversationStatus(s)
	default:
		return StatusUnknown
	}
}

// ConversationRef идентифицирует текущий диалог виджета.
// UUID пустой до отправки первого сообщения или возобновления
// сохраненного диалога; ID назначается бэкендом и может отсутствовать.
type ConversationRef struct {
	ID     int64              `json:"id,omitempty"`
	UUID   string             `json:"uuid,omitempty"`
	Status ConversationStatus `json:"status"`
}

// StatusLabel возвращает текст системного сообщения для смены статуса
func StatusLabel(s ConversationStatus) string {
	switch s {
	case StatusSupporterChat:
		return "Диалог передан оператору"
	case StatusResolved:
		return "Диалог завершен"
	case StatusAIChat:
		return "На вопросы отвечает ассистент"
	default:
		return "Статус диалога изменен"
	}
}
