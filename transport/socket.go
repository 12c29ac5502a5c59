// Package transport владеет единственным WebSocket-соединением виджета:
// его жизненным циклом, политикой переподключения и разбором входящих событий.
package transport

import (
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/egor/ecochatwidget/models"
)

const (
	writeWait      = 10 * time.Second    // время на запись одного кадра
	pongWait       = 60 * time.Second    // максимальное время ожидания PONG
	pingPeriod     = (pongWait * 9) / 10 // как часто слать PING
	maxMessageSize = 4096                // максимальный размер входящего кадра

	// DefaultReconnectDelay — фиксированная пауза перед переподключением.
	// Без экспоненциального роста и без потолка попыток: виджет обязан
	// восстановить связь, как только восстановится сеть.
	DefaultReconnectDelay = 3 * time.Second
)

// State — состояние транспорта
type State string

const (
	StateConnecting        State = "CONNECTING"
	StateOpen              State = "OPEN"
	StateClosedRecoverable State = "CLOSED_RECOVERABLE" // обрыв, будет переподключение
	StateClosedFinal       State = "CLOSED_FINAL"       // явное закрытие, терминальное
)

// Sink принимает события, разобранные транспортом.
// Реализуется моделью диалога (session).
type Sink interface {
	// AppendIncoming добавляет входящее сообщение (от ассистента или оператора)
	AppendIncoming(m models.Message)
	// AppendSystem добавляет служебное сообщение виджета
	AppendSystem(text string)
	// SetConversationStatus обновляет статус диалога
	SetConversationStatus(s models.ConversationStatus)
}

// Config — зависимости транспорта, передаются явно
type Config struct {
	WSBaseURL string
	Token     string // токен фиксирован на всё время жизни транспорта

	// ConversationUUID читается в момент connect, а не при создании:
	// транспорт можно построить до появления uuid диалога,
	// лишь бы uuid существовал к моменту подключения.
	ConversationUUID func() string

	Sink Sink

	// OnStatus уведомляет UI о смене состояния соединения
	OnStatus func(connected bool)

	// OnReload вызывается при переподключении: вместо протокола докачки
	// виджет перечитывает всю историю, чтобы не потерять пропущенное
	OnReload func()

	// InvalidateToken удаляет кэшированный токен. Вызывается только
	// из Close — обрыв связи токен не трогает.
	InvalidateToken func()

	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
}

// Transport — единственное живое (или переподключающееся) соединение.
// Новый токен требует нового Transport.
type Transport struct {
	cfg Config

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	done           chan struct{} // закрывается при разрыве текущего соединения
	isConnected    bool
	forceClosed    bool
	connecting     bool // не более одной попытки подключения одновременно
	reconnectTimer *time.Timer

	writeMu sync.Mutex
}

// New создает транспорт и сразу асинхронно начинает подключение.
// Конструктор не блокирует: IsConnected() вернет false до завершения
// рукопожатия.
func New(cfg Config) *Transport {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	t := &Transport{
		cfg:   cfg,
		state: StateConnecting,
	}
	go t.connect(false)
	return t
}

// IsConnected сообщает, открыто ли соединение
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isConnected
}

// State возвращает текущее состояние транспорта
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// connect выполняет одну попытку подключения.
// При isReconnect=true после открытия запускается полная перезагрузка истории.
func (t *Transport) connect(isReconnect bool) {
	t.mu.Lock()
	if t.forceClosed || t.connecting {
		t.mu.Unlock()
		return
	}
	t.connecting = true
	t.state = StateConnecting
	t.mu.Unlock()

	convUUID := t.cfg.ConversationUUID()
	if convUUID == "" {
		// Диалог еще не создан — подключаться некуда, пробуем позже
		log.Printf("transport: uuid диалога отсутствует, подключение отложено")
		t.mu.Lock()
		t.connecting = false
		t.state = StateClosedRecoverable
		t.mu.Unlock()
		t.scheduleReconnect()
		return
	}

	endpoint := fmt.Sprintf("%s/conversations/%s/messages/?token=%s",
		t.cfg.WSBaseURL, convUUID, url.QueryEscape(t.cfg.Token))

	conn, _, err := t.cfg.Dialer.Dial(endpoint, nil)
	if err != nil {
		log.Printf("transport: ошибка подключения к %s: %v", convUUID, err)
		t.mu.Lock()
		t.connecting = false
		t.state = StateClosedRecoverable
		force := t.forceClosed
		t.mu.Unlock()
		if !force {
			t.notifyStatus(false)
			t.scheduleReconnect()
		}
		return
	}

	t.mu.Lock()
	if t.forceClosed {
		// Close() успел сработать, пока шел dial — сессия мертва
		t.connecting = false
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	t.done = make(chan struct{})
	done := t.done
	t.connecting = false
	t.isConnected = true
	t.state = StateOpen
	t.mu.Unlock()

	t.notifyStatus(true)

	// join_messages — строго первый кадр: сервер начинает доставку
	// сообщений только после этого рукопожатия
	if err := t.writeJSON(conn, models.JoinFrame()); err != nil {
		log.Printf("transport: ошибка отправки join_messages: %v", err)
		t.handleDisconnect(conn)
		return
	}

	if isReconnect && t.cfg.OnReload != nil {
		t.cfg.OnReload()
	}

	go t.readPump(conn)
	go t.pingPump(conn, done)

	log.Printf("transport: соединение с диалогом %s открыто (reconnect=%v)", convUUID, isReconnect)
}

// readPump читает кадры до разрыва соединения
func (t *Transport) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("transport: соединение неожиданно закрыто: %v", err)
			}
			break
		}
		t.dispatch(raw)
	}

	t.handleDisconnect(conn)
}

// pingPump держит соединение живым, пока оно текущее
func (t *Transport) pingPump(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// dispatch разбирает входящий кадр и раскладывает по типу события.
// Некорректный JSON логируется и отбрасывается — транспорт не падает
// из-за битого кадра.
func (t *Transport) dispatch(raw []byte) {
	ev, err := models.DecodeInboundEvent(raw)
	if err != nil {
		log.Printf("transport: некорректный кадр, игнорируем: %v", err)
		return
	}

	switch ev.Type {
	case models.EventNewMessage:
		if ev.Message == nil {
			log.Printf("transport: new_message без тела сообщения")
			return
		}
		if ev.Message.Sender == models.SenderUser {
			// Самоэхо: свое сообщение посетитель уже видит благодаря
			// оптимистичному добавлению, дубль отбрасываем
			return
		}
		t.cfg.Sink.AppendIncoming(*ev.Message)

	case models.EventAIResponse:
		if ev.Message == nil {
			log.Printf("transport: ai_response без тела сообщения")
			return
		}
		t.cfg.Sink.AppendIncoming(*ev.Message)

	case models.EventConversationStatusChange:
		status := models.ParseConversationStatus(ev.Status)
		t.cfg.Sink.SetConversationStatus(status)
		t.cfg.Sink.AppendSystem(models.StatusLabel(status))

	default:
		log.Printf("transport: неизвестный тип события %q, пропускаем", ev.Type)
	}
}

// handleDisconnect обрабатывает разрыв соединения conn.
// Если соединение уже не текущее (например, Close() сработал раньше),
// ничего не делает.
func (t *Transport) handleDisconnect(conn *websocket.Conn) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.isConnected = false
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
	force := t.forceClosed
	if force {
		t.state = StateClosedFinal
	} else {
		t.state = StateClosedRecoverable
	}
	t.mu.Unlock()

	conn.Close()
	t.notifyStatus(false)

	if !force {
		t.scheduleReconnect()
	}
}

// scheduleReconnect ставит отложенную попытку подключения.
// Повторная постановка при уже взведенном таймере не происходит.
func (t *Transport) scheduleReconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.forceClosed || t.reconnectTimer != nil {
		return
	}
	t.reconnectTimer = time.AfterFunc(t.cfg.ReconnectDelay, func() {
		t.mu.Lock()
		t.reconnectTimer = nil
		force := t.forceClosed
		t.mu.Unlock()
		if force {
			return
		}
		t.connect(true)
	})
}

// Close явно завершает сессию: подавляет любые будущие переподключения,
// закрывает соединение и удаляет кэшированный токен. Это единственный
// путь инвалидации токена.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.forceClosed {
		t.mu.Unlock()
		return
	}
	t.forceClosed = true
	t.isConnected = false
	t.state = StateClosedFinal
	if t.reconnectTimer != nil {
		t.reconnectTimer.Stop()
		t.reconnectTimer = nil
	}
	conn := t.conn
	t.conn = nil
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	t.notifyStatus(false)

	if t.cfg.InvalidateToken != nil {
		t.cfg.InvalidateToken()
	}
	log.Printf("transport: сессия явно закрыта")
}

// SendJSON отправляет кадр в текущее соединение
func (t *Transport) SendJSON(v interface{}) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("транспорт не подключен")
	}
	return t.writeJSON(conn, v)
}

func (t *Transport) writeJSON(conn *websocket.Conn, v interface{}) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (t *Transport) notifyStatus(connected bool) {
	if t.cfg.OnStatus != nil {
		t.cfg.OnStatus(connected)
	}
}
