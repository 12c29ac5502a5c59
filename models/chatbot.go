package models

// ChatbotRef описывает публичную конфигурацию чат-бота,
// которую виджет получает по публичному ключу при старте
type ChatbotRef struct {
	UUID           string   `json:"uuid"`
	Name           string   `json:"name"`
	WelcomeMessage string   `json:"welcomeMessage,omitempty"`
	AllowedDomains []string `json:"allowedDomains,omitempty"` // пустой список — виджет разрешен везде
}

// Customer — данные посетителя сайта.
// UniqueID (обычно телефон) обязателен для отправки сообщений:
// без него бэкенд не может привязать диалог к посетителю.
type Customer struct {
	UniqueID string `json:"uniqueId,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}
