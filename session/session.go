// Package session — оркестратор сессии виджета: запуск, возобновление
// сохраненного диалога, подключение транспорта и модель диалога.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/egor/ecochatwidget/api"
	"github.com/egor/ecochatwidget/auth"
	"github.com/egor/ecochatwidget/config"
	"github.com/egor/ecochatwidget/hostcheck"
	"github.com/egor/ecochatwidget/models"
	"github.com/egor/ecochatwidget/storage"
	"github.com/egor/ecochatwidget/transport"
)

// ErrDomainNotAllowed — страница, в которую встроен виджет,
// не входит в список разрешенных доменов чат-бота
var ErrDomainNotAllowed = errors.New("домен не входит в список разрешенных")

// Session владеет состоянием виджета: диалогом, транспортом и лентой
// сообщений. Все зависимости передаются явно через конструктор —
// никакого глобального синглтона.
type Session struct {
	cfg    *config.Config
	store  storage.Store
	client *api.Client
	tokens *auth.TokenProvider
	ui     UI

	mu        sync.Mutex
	chatbot   *models.ChatbotRef
	customer  models.Customer
	conv      *models.ConversationRef
	tr        *transport.Transport
	messages  []models.Message
	seen      map[int64]struct{} // дедупликация по id сообщения
	openCount int
}

// New создает сессию виджета
func New(cfg *config.Config, store storage.Store, client *api.Client, ui UI) *Session {
	return &Session{
		cfg:    cfg,
		store:  store,
		client: client,
		tokens: auth.NewTokenProvider(store, client, cfg.PublicKey),
		ui:     ui,
		seen:   make(map[int64]struct{}),
	}
}

// Bootstrap получает публичную конфигурацию чат-бота и проверяет,
// разрешен ли виджет на странице pageURL. Пустой pageURL (не браузерный
// хост) проверку доменов пропускает.
func (s *Session) Bootstrap(ctx context.Context, pageURL string) error {
	chatbot, err := s.client.GetChatbotConfig(ctx, s.cfg.PublicKey)
	if err != nil {
		return fmt.Errorf("получение конфигурации чат-бота: %w", err)
	}

	if pageURL != "" && !hostcheck.Allowed(chatbot.AllowedDomains, pageURL) {
		return fmt.Errorf("%w: %s", ErrDomainNotAllowed, pageURL)
	}

	s.mu.Lock()
	s.chatbot = chatbot
	s.mu.Unlock()

	// Восстанавливаем сохраненный идентификатор посетителя, если был
	if uid, ok, err := s.store.Get(storage.UserIDKey(s.cfg.PublicKey)); err == nil && ok {
		s.mu.Lock()
		s.customer.UniqueID = uid
		s.mu.Unlock()
	}

	log.Printf("session: чат-бот %q (%s) готов", chatbot.Name, chatbot.UUID)
	return nil
}

// OnWidgetOpen выполняет bootstrap при первом открытии виджета:
// читает сохраненный uuid диалога, загружает историю и запускает транспорт.
// Повторные открытия — no-op, чтобы не плодить загрузки истории и
// транспорты при каждом клике по кнопке. Любая ошибка логируется и
// не выходит наружу: виджет обязан остаться работоспособным.
func (s *Session) OnWidgetOpen(ctx context.Context) {
	s.mu.Lock()
	s.openCount++
	if s.openCount > 1 {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	convUUID, ok, err := s.store.Get(storage.ConversationKey(s.cfg.PublicKey))
	if err != nil {
		log.Printf("session: ошибка чтения uuid диалога: %v", err)
		return
	}
	if !ok || convUUID == "" {
		// Диалога еще нет — UI показывает стартовый экран с приветствием
		log.Printf("session: сохраненного диалога нет")
		return
	}

	if err := s.loadHistory(ctx, convUUID); err != nil {
		log.Printf("session: ошибка загрузки истории диалога %s: %v", convUUID, err)
		return
	}
	s.ui.ScrollToLatest()

	// Best-effort: непрочитанное отмечаем просмотренным
	if err := s.client.MarkMessagesSeen(ctx, convUUID); err != nil {
		log.Printf("session: не удалось отметить сообщения прочитанными: %v", err)
	}

	if err := s.startTransport(ctx); err != nil {
		log.Printf("session: ошибка запуска транспорта: %v", err)
	}
}

// loadHistory загружает историю диалога и проигрывает сообщения в модель
// в порядке сервера (от старых к новым, без пересортировки)
func (s *Session) loadHistory(ctx context.Context, convUUID string) error {
	s.mu.Lock()
	chatbotUUID := ""
	if s.chatbot != nil {
		chatbotUUID = s.chatbot.UUID
	}
	s.mu.Unlock()

	resp, err := s.client.GetConversationMessages(ctx, convUUID, chatbotUUID)
	if err != nil {
		return err
	}

	s.setConversation(&resp.Conversation)
	for _, m := range resp.Messages {
		s.appendDeduped(m)
	}

	log.Printf("session: диалог %s возобновлен, сообщений: %d", convUUID, len(resp.Messages))
	return nil
}

// reloadHistory перечитывает историю после переподключения.
// Уже показанные сообщения отфильтровываются по id, поэтому гонка
// между перезагрузкой и живой доставкой дублей не дает.
func (s *Session) reloadHistory(ctx context.Context) {
	s.mu.Lock()
	convUUID := ""
	if s.conv != nil {
		convUUID = s.conv.UUID
	}
	s.mu.Unlock()
	if convUUID == "" {
		return
	}

	if err := s.loadHistory(ctx, convUUID); err != nil {
		log.Printf("session: ошибка перезагрузки истории: %v", err)
	}
}

// startTransport получает токен (cache-first) и запускает новый транспорт.
// Предыдущий транспорт, если был, закрывается до запроса токена:
// его явное закрытие инвалидирует старый токен.
func (s *Session) startTransport(ctx context.Context) error {
	s.mu.Lock()
	old := s.tr
	s.tr = nil
	chatbotUUID := ""
	if s.chatbot != nil {
		chatbotUUID = s.chatbot.UUID
	}
	convUUID := ""
	if s.conv != nil {
		convUUID = s.conv.UUID
	}
	uid := s.customer.UniqueID
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}

	token, err := s.tokens.GetOrCreateToken(ctx, chatbotUUID, convUUID, uid)
	if err != nil {
		return fmt.Errorf("получение сокет-токена: %w", err)
	}

	tr := transport.New(transport.Config{
		WSBaseURL:        s.cfg.WSBaseURL,
		Token:            token,
		ConversationUUID: s.ConversationUUID,
		Sink:             s,
		OnStatus:         s.ui.SetConnectionStatus,
		OnReload: func() {
			s.reloadHistory(context.Background())
		},
		InvalidateToken: func() {
			if err := s.tokens.Invalidate(); err != nil {
				log.Printf("session: ошибка удаления токена: %v", err)
			}
		},
		ReconnectDelay: s.cfg.ReconnectDelay,
	})
	s.setTransport(tr)
	return nil
}

// setConversation обновляет ссылку на диалог
func (s *Session) setConversation(conv *models.ConversationRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv = conv
}

// setTransport назначает текущий транспорт.
// Инвариант: старый транспорт не должен остаться переподключающимся
// в фоне — перед заменой он принудительно закрывается.
func (s *Session) setTransport(tr *transport.Transport) {
	s.mu.Lock()
	old := s.tr
	s.tr = tr
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Shutdown явно завершает сессию (закрытие вкладки, новый диалог)
func (s *Session) Shutdown() {
	s.mu.Lock()
	tr := s.tr
	s.tr = nil
	s.mu.Unlock()

	if tr != nil {
		tr.Close()
	}
}

// ResetConversation очищает текущий диалог: посетитель начинает новый.
// Транспорт закрывается (что удаляет и токен), сохраненный uuid стирается.
func (s *Session) ResetConversation() {
	s.Shutdown()

	if err := s.store.Delete(storage.ConversationKey(s.cfg.PublicKey)); err != nil {
		log.Printf("session: ошибка удаления uuid диалога: %v", err)
	}

	s.mu.Lock()
	s.conv = nil
	s.messages = nil
	s.seen = make(map[int64]struct{})
	s.mu.Unlock()
}

// ConversationUUID возвращает uuid текущего диалога (пустая строка — нет диалога).
// Транспорт читает его в момент подключения, а не при создании.
func (s *Session) ConversationUUID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil {
		return ""
	}
	return s.conv.UUID
}

// Messages возвращает копию ленты сообщений
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Transport возвращает текущий транспорт (nil до первого запуска)
func (s *Session) Transport() *transport.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tr
}

// ─────────────────────────────── transport.Sink

// AppendIncoming добавляет входящее сообщение с дедупликацией по id
func (s *Session) AppendIncoming(m models.Message) {
	if s.appendDeduped(m) {
		s.ui.NotifyIncoming(m)
	}
}

// AppendSystem добавляет служебное сообщение виджета
func (s *Session) AppendSystem(text string) {
	m := models.NewSystemMessage(text)
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
	s.ui.AppendMessage(m)
}

// SetConversationStatus обновляет статус диалога по событию сокета
func (s *Session) SetConversationStatus(status models.ConversationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv != nil {
		s.conv.Status = status
	}
}

// appendDeduped добавляет сообщение, если его id еще не встречался.
// Возвращает true, если сообщение действительно добавлено.
func (s *Session) appendDeduped(m models.Message) bool {
	s.mu.Lock()
	if m.ID != 0 {
		if _, dup := s.seen[m.ID]; dup {
			s.mu.Unlock()
			return false
		}
		s.seen[m.ID] = struct{}{}
	}
	s.messages = append(s.messages, m)
	s.mu.Unlock()

	s.ui.AppendMessage(m)
	return true
}
