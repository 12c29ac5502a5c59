package session

import "github.com/egor/ecochatwidget/models"

// UI — узкий интерфейс слоя отображения.
// Ядро виджета ничего не знает про рендеринг: хост передает
// свою реализацию (терминал, бот, киоск).
type UI interface {
	// AppendMessage добавляет сообщение в ленту
	AppendMessage(m models.Message)
	// NotifyIncoming — сигнал о входящем сообщении (звук, бейдж и т.п.)
	NotifyIncoming(m models.Message)
	// ScrollToLatest прокручивает ленту к последнему сообщению
	ScrollToLatest()
	// SetConnectionStatus отражает состояние соединения
	SetConnectionStatus(connected bool)
	// RequestUserID показывает форму ввода идентификатора посетителя
	RequestUserID()
	// ShowAlert показывает блокирующее предупреждение
	ShowAlert(text string)
}
