package models

import (
	"time"

	"github.com/google/uuid"
)

// SenderType — тип отправителя сообщения
type SenderType string

const (
	SenderUser      SenderType = "USER"      // посетитель сайта
	SenderAI        SenderType = "AI"        // ИИ-ассистент
	SenderSupporter SenderType = "SUPPORTER" // живой оператор
	SenderSystem    SenderType = "SYSTEM"    // служебные сообщения виджета
)

// Message представляет собой сообщение диалога.
// ID назначается бэкендом; для оптимистично добавленных сообщений
// он равен нулю, и сообщение идентифицируется по LocalID.
type Message struct {
	ID        int64                  `json:"id,omitempty"`
	LocalID   uuid.UUID              `json:"localId,omitempty"`
	Content   string                 `json:"content"`
	Sender    SenderType             `json:"sender"`
	CreatedAt time.Time              `json:"createdAt"`
	Read      bool                   `json:"read"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewLocalMessage создает оптимистичное локальное сообщение посетителя
// до подтверждения сервером
func NewLocalMessage(content string) Message {
	return Message{
		LocalID:   uuid.New(),
		Content:   content,
		Sender:    SenderUser,
		CreatedAt: time.Now(),
		Read:      true,
	}
}

// NewSystemMessage создает служебное сообщение виджета (не уходит на сервер)
func NewSystemMessage(content string) Message {
	return Message{
		LocalID:   uuid.New(),
		Content:   content,
		Sender:    SenderSystem,
		CreatedAt: time.Now(),
		Read:      true,
	}
}
