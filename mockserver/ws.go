package mockserver

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/egor/ecochatwidget/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// wsUpgrader апгрейдит HTTP→WebSocket; мок-сервер принимает любой Origin
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsClient представляет одно WebSocket-соединение виджета.
// Доставка событий начинается только после кадра join_messages —
// до него клиент не числится в conv.clients.
type wsClient struct {
	server   *Server
	conn     *websocket.Conn
	send     chan []byte
	convUUID string
	closed   bool // send закрыт; защищает от двойного close (под s.mu)
}

// serveWs обрабатывает WebSocket-подключение виджета
func (s *Server) serveWs(c *gin.Context) {
	convUUID := c.Param("uuid")
	token := c.Query("token")

	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Требуется токен"})
		return
	}
	claims, err := s.validateToken(token)
	if err != nil {
		log.Printf("mockserver: ошибка валидации токена: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Неверный токен"})
		return
	}
	if claims.ConversationUUID != "" && claims.ConversationUUID != convUUID {
		// Токен мог быть выпущен до создания диалога — не отклоняем,
		// но фиксируем расхождение
		log.Printf("mockserver: токен выпущен для диалога %s, подключение к %s",
			claims.ConversationUUID, convUUID)
	}

	s.mu.Lock()
	conv := s.convs[convUUID]
	s.mu.Unlock()
	if conv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Диалог не найден"})
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("mockserver: ошибка апгрейда соединения: %v", err)
		return
	}

	client := &wsClient{
		server:   s,
		conn:     conn,
		send:     make(chan []byte, 256),
		convUUID: convUUID,
	}

	go client.writePump()
	go client.readPump()

	log.Printf("mockserver: виджет подключился к диалогу %s", convUUID)
}

// readPump читает кадры виджета. Первый ожидаемый кадр — join_messages:
// до него клиент не зарегистрирован и событий не получает.
func (c *wsClient) readPump() {
	defer func() {
		c.server.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("mockserver: соединение неожиданно закрыто: %v", err)
			}
			break
		}

		var frame models.OutboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("mockserver: некорректный кадр от виджета: %s", raw)
			continue
		}

		switch frame.Type {
		case models.TypeJoinMessages:
			c.server.register(c)
		default:
			log.Printf("mockserver: кадр %q от виджета, игнорируем", frame.Type)
		}
	}
}

// writePump пишет из канала send и держит соединение живым ping/pong'ом
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// register включает клиента в доставку событий его диалога
func (s *Server) register(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.convs[c.convUUID]
	if conv == nil {
		return
	}
	conv.clients[c] = true
	log.Printf("mockserver: join_messages получен, подписчиков диалога %s: %d",
		c.convUUID, len(conv.clients))
}

// unregister убирает клиента из доставки и освобождает его писателя.
// Канал send закрывается и для клиента, который так и не отправил
// join_messages — иначе его writePump жил бы до первого неудачного ping.
func (s *Server) unregister(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv := s.convs[c.convUUID]; conv != nil {
		delete(conv.clients, c)
	}
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// broadcast рассылает событие всем подписчикам диалога
func (s *Server) broadcast(convUUID string, ev models.InboundEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("mockserver: ошибка маршализации события: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.convs[convUUID]
	if conv == nil {
		return
	}
	for client := range conv.clients {
		select {
		case client.send <- data:
		default:
			client.closed = true
			close(client.send)
			delete(conv.clients, client)
		}
	}
}
