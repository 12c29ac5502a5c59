package api

import (
	"context"
	"fmt"

	"github.com/egor/ecochatwidget/models"
)

// SendMessageRequest — тело запроса на отправку сообщения.
// ConversationUUID пустой при первом сообщении: сервер создаст диалог
// и вернет его в ответе.
type SendMessageRequest struct {
	PublicKey        string `json:"publicKey"`
	ChatbotUUID      string `json:"chatbotUuid"`
	ConversationUUID string `json:"conversationUuid,omitempty"`
	UserUniqueID     string `json:"userUniqueId"`
	Content          string `json:"content"`
}

// SendMessageResponse — ответ на отправку сообщения
type SendMessageResponse struct {
	Conversation models.ConversationRef `json:"conversation"`
	Message      models.Message         `json:"message"`
}

// SocketTokenRequest — тело запроса сокет-токена
type SocketTokenRequest struct {
	ChatbotUUID      string `json:"chatbotUuid"`
	ConversationUUID string `json:"conversationUuid"`
	UserUniqueID     string `json:"userUniqueId"`
}

// SocketTokenResponse — ответ с токеном авторизации WebSocket
type SocketTokenResponse struct {
	Token string `json:"token"`
}

// ConversationMessagesResponse — история диалога.
// Сообщения приходят в порядке от старых к новым, клиент их не пересортировывает.
type ConversationMessagesResponse struct {
	Conversation models.ConversationRef `json:"conversation"`
	Messages     []models.Message       `json:"messages"`
}

// FeedbackRequest — оценка сообщения ассистента
type FeedbackRequest struct {
	MessageID int64 `json:"messageId"`
	Liked     bool  `json:"liked"`
}

// GetChatbotConfig получает публичную конфигурацию чат-бота по публичному ключу
func (c *Client) GetChatbotConfig(ctx context.Context, publicKey string) (*models.ChatbotRef, error) {
	var out models.ChatbotRef
	path := fmt.Sprintf("/v1/chatbot/public/%s", publicKey)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage отправляет сообщение посетителя
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResponse, error) {
	var out SendMessageResponse
	if err := c.post(ctx, "/v2/conversations/website/send-message/", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestSocketToken запрашивает новый токен авторизации WebSocket
func (c *Client) RequestSocketToken(ctx context.Context, req SocketTokenRequest) (string, error) {
	var out SocketTokenResponse
	if err := c.post(ctx, "/v2/conversations/websocket/auth/", req, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// GetConversationMessages получает историю диалога
func (c *Client) GetConversationMessages(ctx context.Context, conversationUUID, chatbotUUID string) (*ConversationMessagesResponse, error) {
	var out ConversationMessagesResponse
	path := fmt.Sprintf("/v2/conversations/website/conversations/%s/chatbot/%s/messages/",
		conversationUUID, chatbotUUID)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkMessagesSeen отмечает сообщения диалога прочитанными
func (c *Client) MarkMessagesSeen(ctx context.Context, conversationUUID string) error {
	path := fmt.Sprintf("/v2/conversations/website/conversations/%s/messages/seen", conversationUUID)
	return c.post(ctx, path, nil, nil)
}

// SendMessageFeedback отправляет оценку сообщения ассистента
func (c *Client) SendMessageFeedback(ctx context.Context, req FeedbackRequest) error {
	return c.post(ctx, "/v2/conversations/website/conversations/messages/feedback", req, nil)
}
