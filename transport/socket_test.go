package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/egor/ecochatwidget/models"
)

// wsServer — тестовый WebSocket-сервер, записывающий подключения и кадры
type wsServer struct {
	t   *testing.T
	srv *httptest.Server

	mu          sync.Mutex
	dials       int
	dialTimes   []time.Time
	paths       []string
	conns       []*websocket.Conn
	frames      [][]string // кадры по каждому подключению
	closeOnJoin bool       // рвать соединение сразу после join_messages
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{t: t}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

// baseURL возвращает ws://-адрес сервера
func (s *wsServer) baseURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) handle(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.dials++
	idx := s.dials - 1
	s.dialTimes = append(s.dialTimes, time.Now())
	s.paths = append(s.paths, r.URL.String())
	s.conns = append(s.conns, conn)
	s.frames = append(s.frames, nil)
	closeOnJoin := s.closeOnJoin
	s.mu.Unlock()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.frames[idx] = append(s.frames[idx], string(raw))
		s.mu.Unlock()

		if closeOnJoin {
			conn.Close()
			return
		}
	}
}

func (s *wsServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *wsServer) framesOf(i int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.frames) {
		return nil
	}
	return append([]string(nil), s.frames[i]...)
}

// send отправляет событие в последнее подключение
func (s *wsServer) send(ev models.InboundEvent) {
	data, err := json.Marshal(ev)
	require.NoError(s.t, err)
	s.sendRaw(data)
}

func (s *wsServer) sendRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(s.t, s.conns)
	conn := s.conns[len(s.conns)-1]
	require.NoError(s.t, conn.WriteMessage(websocket.TextMessage, data))
}

// dropCurrent рвет последнее подключение со стороны сервера
func (s *wsServer) dropCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) > 0 {
		s.conns[len(s.conns)-1].Close()
	}
}

// recordSink записывает все, что транспорт отдал модели диалога
type recordSink struct {
	mu       sync.Mutex
	incoming []models.Message
	system   []string
	statuses []models.ConversationStatus
}

func (r *recordSink) AppendIncoming(m models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incoming = append(r.incoming, m)
}

func (r *recordSink) AppendSystem(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.system = append(r.system, text)
}

func (r *recordSink) SetConversationStatus(s models.ConversationStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recordSink) incomingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.incoming)
}

type harness struct {
	srv  *wsServer
	sink *recordSink
	tr   *Transport

	mu          sync.Mutex
	reloads     int
	invalidated int
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{srv: newWSServer(t), sink: &recordSink{}}

	cfg := Config{
		WSBaseURL:        h.srv.baseURL(),
		Token:            "test-token",
		ConversationUUID: func() string { return "c-123" },
		Sink:             h.sink,
		OnReload: func() {
			h.mu.Lock()
			h.reloads++
			h.mu.Unlock()
		},
		InvalidateToken: func() {
			h.mu.Lock()
			h.invalidated++
			h.mu.Unlock()
		},
		ReconnectDelay: 50 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h.tr = New(cfg)
	t.Cleanup(h.tr.Close)
	return h
}

func (h *harness) reloadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reloads
}

func (h *harness) invalidateCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.invalidated
}

func waitConnected(t *testing.T, tr *Transport) {
	t.Helper()
	require.Eventually(t, tr.IsConnected, 2*time.Second, 5*time.Millisecond)
}

func TestConstructorDoesNotBlock(t *testing.T) {
	h := newHarness(t, nil)
	// Сразу после конструктора рукопожатие еще не завершено
	require.Equal(t, StateConnecting, h.tr.State())
	waitConnected(t, h.tr)
	require.Equal(t, StateOpen, h.tr.State())
}

func TestDialURLContainsConversationAndToken(t *testing.T) {
	h := newHarness(t, nil)
	waitConnected(t, h.tr)

	h.srv.mu.Lock()
	path := h.srv.paths[0]
	h.srv.mu.Unlock()
	require.Equal(t, "/conversations/c-123/messages/?token=test-token", path)
}

func TestJoinFrameIsAlwaysFirst(t *testing.T) {
	h := newHarness(t, nil)
	waitConnected(t, h.tr)

	// Отправим свой кадр после подключения
	require.NoError(t, h.tr.SendJSON(models.OutboundFrame{Type: "typing"}))

	require.Eventually(t, func() bool {
		return len(h.srv.framesOf(0)) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	frames := h.srv.framesOf(0)
	require.JSONEq(t, `{"type":"join_messages"}`, frames[0])

	// И после переподключения join снова идет первым
	h.srv.dropCurrent()
	require.Eventually(t, func() bool {
		return h.srv.dialCount() >= 2 && len(h.srv.framesOf(1)) >= 1
	}, 2*time.Second, 5*time.Millisecond)
	require.JSONEq(t, `{"type":"join_messages"}`, h.srv.framesOf(1)[0])
}

func TestReconnectLoopFixedDelay(t *testing.T) {
	srv := newWSServer(t)
	srv.closeOnJoin = true // сервер рвет каждое соединение после join

	sink := &recordSink{}
	tr := New(Config{
		WSBaseURL:        srv.baseURL(),
		Token:            "test-token",
		ConversationUUID: func() string { return "c-123" },
		Sink:             sink,
		ReconnectDelay:   60 * time.Millisecond,
	})
	defer tr.Close()

	// N обрывов — ровно N переподключений, по одному за раз
	require.Eventually(t, func() bool {
		return srv.dialCount() >= 4
	}, 5*time.Second, 10*time.Millisecond)

	srv.mu.Lock()
	times := append([]time.Time(nil), srv.dialTimes...)
	srv.mu.Unlock()

	// Каждое переподключение ждет фиксированную паузу
	for i := 1; i < 4; i++ {
		gap := times[i].Sub(times[i-1])
		require.GreaterOrEqual(t, gap, 50*time.Millisecond,
			"переподключение %d пришло раньше паузы: %v", i, gap)
	}
}

func TestForceCloseSuppressesReconnectAndInvalidatesToken(t *testing.T) {
	h := newHarness(t, nil)
	waitConnected(t, h.tr)

	// Обрыв → CLOSED_RECOVERABLE, таймер переподключения взведен
	h.srv.dropCurrent()
	require.Eventually(t, func() bool {
		return h.tr.State() == StateClosedRecoverable
	}, 2*time.Second, 5*time.Millisecond)

	// Close в момент ожидания переподключения
	h.tr.Close()
	require.Equal(t, StateClosedFinal, h.tr.State())
	require.Equal(t, 1, h.invalidateCount())

	// Выжидаем несколько интервалов: новых подключений быть не должно
	time.Sleep(250 * time.Millisecond)
	require.Equal(t, 1, h.srv.dialCount())

	// Повторный Close идемпотентен и токен второй раз не трогает
	h.tr.Close()
	require.Equal(t, 1, h.invalidateCount())
}

func TestTransientDropDoesNotInvalidateToken(t *testing.T) {
	h := newHarness(t, nil)
	waitConnected(t, h.tr)

	h.srv.dropCurrent()
	require.Eventually(t, func() bool {
		return h.srv.dialCount() >= 2 && h.tr.IsConnected()
	}, 2*time.Second, 5*time.Millisecond)

	// Обрыв и переподключение токен не инвалидируют
	require.Equal(t, 0, h.invalidateCount())
}

func TestReconnectTriggersExactlyOneReload(t *testing.T) {
	h := newHarness(t, nil)
	waitConnected(t, h.tr)

	// Первый connect — не reconnect, перезагрузки нет
	require.Equal(t, 0, h.reloadCount())

	h.srv.dropCurrent()
	require.Eventually(t, func() bool {
		return h.srv.dialCount() >= 2 && h.tr.IsConnected()
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, 1, h.reloadCount())
}

func TestSelfEchoSuppressed(t *testing.T) {
	h := newHarness(t, nil)
	waitConnected(t, h.tr)

	// Самоэхо: new_message с отправителем USER отбрасывается
	h.srv.send(models.InboundEvent{
		Type:    models.EventNewMessage,
		Message: &models.Message{ID: 1, Content: "мое же сообщение", Sender: models.SenderUser},
	})
	// Сообщение оператора проходит
	h.srv.send(models.InboundEvent{
		Type:    models.EventNewMessage,
		Message: &models.Message{ID: 2, Content: "здравствуйте", Sender: models.SenderSupporter},
	})

	require.Eventually(t, func() bool {
		return h.sink.incomingCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	require.Equal(t, int64(2), h.sink.incoming[0].ID)
}

func TestAIResponseAlwaysIncoming(t *testing.T) {
	h := newHarness(t, nil)
	waitConnected(t, h.tr)

	h.srv.send(models.InboundEvent{
		Type:    models.EventAIResponse,
		Message: &models.Message{ID: 3, Content: "ответ ассистента", Sender: models.SenderAI},
	})

	require.Eventually(t, func() bool {
		return h.sink.incomingCount() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStatusChangeUpdatesAndAppendsSystem(t *testing.T) {
	h := newHarness(t, nil)
	waitConnected(t, h.tr)

	h.srv.send(models.InboundEvent{
		Type:   models.EventConversationStatusChange,
		Status: "SUPPORTER_CHAT",
	})

	require.Eventually(t, func() bool {
		h.sink.mu.Lock()
		defer h.sink.mu.Unlock()
		return len(h.sink.statuses) == 1 && len(h.sink.system) == 1
	}, 2*time.Second, 5*time.Millisecond)

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	require.Equal(t, models.StatusSupporterChat, h.sink.statuses[0])
}

func TestUnknownEventTypeIgnored(t *testing.T) {
	h := newHarness(t, nil)
	waitConnected(t, h.tr)

	h.srv.send(models.InboundEvent{Type: "totally_unknown"})
	// Соединение живо, следующие события обрабатываются
	h.srv.send(models.InboundEvent{
		Type:    models.EventAIResponse,
		Message: &models.Message{ID: 4, Content: "после неизвестного", Sender: models.SenderAI},
	})

	require.Eventually(t, func() bool {
		return h.sink.incomingCount() == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.True(t, h.tr.IsConnected())
}

func TestMalformedFrameDoesNotKillTransport(t *testing.T) {
	h := newHarness(t, nil)
	waitConnected(t, h.tr)

	h.srv.sendRaw([]byte("это не JSON{{{"))
	h.srv.send(models.InboundEvent{
		Type:    models.EventAIResponse,
		Message: &models.Message{ID: 5, Content: "живы", Sender: models.SenderAI},
	})

	require.Eventually(t, func() bool {
		return h.sink.incomingCount() == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.True(t, h.tr.IsConnected())
}

func TestConnectWaitsForConversationUUID(t *testing.T) {
	var mu sync.Mutex
	convUUID := ""

	h := newHarness(t, func(cfg *Config) {
		cfg.ConversationUUID = func() string {
			mu.Lock()
			defer mu.Unlock()
			return convUUID
		}
		cfg.ReconnectDelay = 30 * time.Millisecond
	})

	// Пока uuid пуст — подключений нет
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, h.srv.dialCount())

	// uuid появился после создания транспорта — подключение происходит
	mu.Lock()
	convUUID = "c-777"
	mu.Unlock()

	waitConnected(t, h.tr)
	require.Equal(t, 1, h.srv.dialCount())
}

func TestStatusObservableOnDropAndRecover(t *testing.T) {
	var mu sync.Mutex
	var statuses []bool

	h := newHarness(t, func(cfg *Config) {
		cfg.OnStatus = func(connected bool) {
			mu.Lock()
			statuses = append(statuses, connected)
			mu.Unlock()
		}
	})
	waitConnected(t, h.tr)

	h.srv.dropCurrent()
	require.Eventually(t, func() bool {
		return h.srv.dialCount() >= 2 && h.tr.IsConnected()
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	// открытие → обрыв → переподключение
	require.GreaterOrEqual(t, len(statuses), 3)
	require.True(t, statuses[0])
	require.False(t, statuses[1])
	require.True(t, statuses[len(statuses)-1])
}
