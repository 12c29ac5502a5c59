package models

import "encoding/json"

// Типы входящих событий WebSocket
const (
	EventNewMessage               = "new_message"
	EventAIResponse               = "ai_response"
	EventConversationStatusChange = "conversation_status_change"
)

// TypeJoinMessages — тип первого кадра после открытия соединения.
// Сервер начинает доставку сообщений только после этого рукопожатия.
const TypeJoinMessages = "join_messages"

// InboundEvent представляет собой входящее событие WebSocket
// с дискриминантом type и полезной нагрузкой message/status
type InboundEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
	Status  string   `json:"status,omitempty"`
}

// OutboundFrame представляет собой исходящий кадр WebSocket
type OutboundFrame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// JoinFrame собирает кадр рукопожатия join_messages
func JoinFrame() OutboundFrame {
	return OutboundFrame{Type: TypeJoinMessages}
}

// DecodeInboundEvent разбирает сырой кадр в InboundEvent
func DecodeInboundEvent(raw []byte) (InboundEvent, error) {
	var ev InboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return InboundEvent{}, err
	}
	return ev, nil
}
