// Package mockserver — облегченный бэкенд EcoChat для локальной
// разработки и интеграционных тестов виджета: шесть REST-эндпоинтов
// и WebSocket-доставка событий, всё состояние в памяти.
package mockserver

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/egor/ecochatwidget/api"
	"github.com/egor/ecochatwidget/models"
)

// Options — настройки мок-сервера
type Options struct {
	PublicKey      string
	Chatbot        models.ChatbotRef
	JWTKey         []byte
	AutoReply      string        // канонический ответ «ассистента»; пусто — автоответчик выключен
	AutoReplyDelay time.Duration // имитация набора текста
}

// conversation — диалог со своими сообщениями и подписчиками
type conversation struct {
	ref      models.ConversationRef
	messages []models.Message
	clients  map[*wsClient]bool
}

// Server реализует REST и WebSocket API, которых ждет виджет
type Server struct {
	engine *gin.Engine
	opts   Options
	jwtKey []byte

	mu         sync.Mutex
	nextMsgID  int64
	nextConvID int64
	convs      map[string]*conversation
	feedback   map[int64]bool // messageID → liked
}

// New создает мок-сервер
func New(opts Options) *Server {
	if opts.AutoReplyDelay <= 0 {
		opts.AutoReplyDelay = 50 * time.Millisecond
	}
	if len(opts.JWTKey) == 0 {
		opts.JWTKey = []byte("временный_ключ_для_разработки_не_использовать_в_продакшене")
	}
	if opts.Chatbot.UUID == "" {
		opts.Chatbot.UUID = uuid.NewString()
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:   gin.New(),
		opts:     opts,
		jwtKey:   opts.JWTKey,
		convs:    make(map[string]*conversation),
		feedback: make(map[int64]bool),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(requestLogger())
	s.engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
	}))

	s.routes()
	return s
}

// Handler возвращает http.Handler для httptest.NewServer
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run запускает сервер на указанном адресе
func (s *Server) Run(addr string) error {
	log.Printf("mockserver: запущен на %s", addr)
	return s.engine.Run(addr)
}

func (s *Server) routes() {
	s.engine.GET("/v1/chatbot/public/:publicKey", s.getChatbotConfig)

	v2 := s.engine.Group("/v2/conversations")
	{
		v2.POST("/website/send-message/", s.sendMessage)
		v2.POST("/websocket/auth/", s.socketAuth)
		v2.GET("/website/conversations/:uuid/chatbot/:chatbotUuid/messages/", s.getMessages)
		// Литеральный сегмент "messages" (фидбек) соседствует с :uuid на
		// одном уровне дерева, поэтому разводим их внутри обработчика.
		v2.POST("/website/conversations/:uuid/messages/:action", s.conversationAction)
	}

	// WebSocket-эндпоинт: {wsBase}/conversations/{uuid}/messages/?token=...
	s.engine.GET("/conversations/:uuid/messages/", s.serveWs)
}

// requestLogger — компактный лог HTTP-запросов
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("[MOCK] %3d | %13v | %-7s %s",
			c.Writer.Status(), time.Since(start), c.Request.Method, c.Request.RequestURI)
	}
}

// ─────────────────────────────── HTTP-обработчики

func (s *Server) getChatbotConfig(c *gin.Context) {
	if c.Param("publicKey") != s.opts.PublicKey {
		c.JSON(http.StatusNotFound, gin.H{"error": "Чат-бот не найден"})
		return
	}
	c.JSON(http.StatusOK, s.opts.Chatbot)
}

func (s *Server) sendMessage(c *gin.Context) {
	var req api.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный формат данных"})
		return
	}
	if req.Content == "" || req.UserUniqueID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Необходимы поля content и userUniqueId"})
		return
	}

	s.mu.Lock()
	conv := s.convs[req.ConversationUUID]
	if conv == nil {
		// Первое сообщение создает диалог
		s.nextConvID++
		conv = &conversation{
			ref: models.ConversationRef{
				ID:     s.nextConvID,
				UUID:   uuid.NewString(),
				Status: models.StatusAIChat,
			},
			clients: make(map[*wsClient]bool),
		}
		s.convs[conv.ref.UUID] = conv
		log.Printf("mockserver: создан диалог %s", conv.ref.UUID)
	}

	s.nextMsgID++
	msg := models.Message{
		ID:        s.nextMsgID,
		Content:   req.Content,
		Sender:    models.SenderUser,
		CreatedAt: time.Now(),
	}
	conv.messages = append(conv.messages, msg)
	convUUID := conv.ref.UUID
	resp := api.SendMessageResponse{Conversation: conv.ref, Message: msg}
	s.mu.Unlock()

	// Сообщение уходит и в сокет — виджет обязан отбросить самоэхо
	s.broadcast(convUUID, models.InboundEvent{Type: models.EventNewMessage, Message: &msg})

	if s.opts.AutoReply != "" {
		go s.autoRespond(convUUID)
	}

	c.JSON(http.StatusOK, resp)
}

// autoRespond имитирует ответ ассистента с задержкой «набора текста»
func (s *Server) autoRespond(convUUID string) {
	time.Sleep(s.opts.AutoReplyDelay)

	s.mu.Lock()
	conv := s.convs[convUUID]
	if conv == nil {
		s.mu.Unlock()
		return
	}
	s.nextMsgID++
	msg := models.Message{
		ID:        s.nextMsgID,
		Content:   s.opts.AutoReply,
		Sender:    models.SenderAI,
		CreatedAt: time.Now(),
	}
	conv.messages = append(conv.messages, msg)
	s.mu.Unlock()

	s.broadcast(convUUID, models.InboundEvent{Type: models.EventAIResponse, Message: &msg})
}

func (s *Server) socketAuth(c *gin.Context) {
	var req api.SocketTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный формат данных"})
		return
	}

	token, err := s.issueToken(req.ConversationUUID, req.UserUniqueID)
	if err != nil {
		log.Printf("mockserver: ошибка выпуска токена: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка выпуска токена"})
		return
	}
	c.JSON(http.StatusOK, api.SocketTokenResponse{Token: token})
}

func (s *Server) getMessages(c *gin.Context) {
	convUUID := c.Param("uuid")

	s.mu.Lock()
	conv := s.convs[convUUID]
	if conv == nil {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "Диалог не найден"})
		return
	}
	out := api.ConversationMessagesResponse{
		Conversation: conv.ref,
		Messages:     append([]models.Message(nil), conv.messages...),
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, out)
}

func (s *Server) conversationAction(c *gin.Context) {
	switch {
	case c.Param("uuid") == "messages" && c.Param("action") == "feedback":
		s.messageFeedback(c)
	case c.Param("action") == "seen":
		s.markSeen(c)
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "Неизвестная операция"})
	}
}

func (s *Server) markSeen(c *gin.Context) {
	convUUID := c.Param("uuid")

	s.mu.Lock()
	conv := s.convs[convUUID]
	if conv != nil {
		for i := range conv.messages {
			conv.messages[i].Read = true
		}
	}
	s.mu.Unlock()

	if conv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Диалог не найден"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) messageFeedback(c *gin.Context) {
	var req api.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный формат данных"})
		return
	}

	s.mu.Lock()
	s.feedback[req.MessageID] = req.Liked
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ─────────────────────────────── хелперы для тестов

// CreateConversation заводит диалог с историей (для сценария возобновления)
func (s *Server) CreateConversation(messages []models.Message) models.ConversationRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextConvID++
	conv := &conversation{
		ref: models.ConversationRef{
			ID:     s.nextConvID,
			UUID:   uuid.NewString(),
			Status: models.StatusAIChat,
		},
		clients: make(map[*wsClient]bool),
	}
	for _, m := range messages {
		s.nextMsgID++
		m.ID = s.nextMsgID
		conv.messages = append(conv.messages, m)
	}
	s.convs[conv.ref.UUID] = conv
	return conv.ref
}

// PushStatusChange переводит диалог в новый статус и рассылает событие
func (s *Server) PushStatusChange(convUUID string, status models.ConversationStatus) {
	s.mu.Lock()
	if conv := s.convs[convUUID]; conv != nil {
		conv.ref.Status = status
	}
	s.mu.Unlock()

	s.broadcast(convUUID, models.InboundEvent{
		Type:   models.EventConversationStatusChange,
		Status: string(status),
	})
}

// PushSupporterMessage добавляет сообщение оператора и рассылает его
func (s *Server) PushSupporterMessage(convUUID, content string) models.Message {
	s.mu.Lock()
	conv := s.convs[convUUID]
	if conv == nil {
		s.mu.Unlock()
		return models.Message{}
	}
	s.nextMsgID++
	msg := models.Message{
		ID:        s.nextMsgID,
		Content:   content,
		Sender:    models.SenderSupporter,
		CreatedAt: time.Now(),
	}
	conv.messages = append(conv.messages, msg)
	s.mu.Unlock()

	s.broadcast(convUUID, models.InboundEvent{Type: models.EventNewMessage, Message: &msg})
	return msg
}

// Feedback возвращает сохраненную оценку сообщения
func (s *Server) Feedback(messageID int64) (liked, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	liked, ok = s.feedback[messageID]
	return liked, ok
}
