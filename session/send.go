package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/egor/ecochatwidget/api"
	"github.com/egor/ecochatwidget/models"
	"github.com/egor/ecochatwidget/storage"
)

// ErrInvalidUserID — идентификатор посетителя не прошел проверку формата
var ErrInvalidUserID = errors.New("некорректный формат идентификатора")

// userIDPattern — телефон: опциональный «+» и 7–15 цифр
var userIDPattern = regexp.MustCompile(`^\+?\d{7,15}$`)

// SendMessage отправляет сообщение посетителя.
//
// Предусловие: нужен идентификатор посетителя. Без него отправка
// приостанавливается — UI показывает форму ввода, сообщение в очередь
// НЕ ставится, посетитель отправляет его заново сам. Это ветка
// нормального потока, не ошибка.
//
// Сообщение добавляется в ленту оптимистично, до ответа сервера.
// Первый успешный ответ создает диалог, после чего запускается
// цепочка токен → транспорт.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	uid := s.customer.UniqueID
	chatbotUUID := ""
	if s.chatbot != nil {
		chatbotUUID = s.chatbot.UUID
	}
	convUUID := ""
	if s.conv != nil {
		convUUID = s.conv.UUID
	}
	s.mu.Unlock()

	if uid == "" {
		s.ui.RequestUserID()
		return nil
	}

	// Оптимистичное добавление: посетитель видит свое сообщение сразу
	local := models.NewLocalMessage(text)
	s.mu.Lock()
	s.messages = append(s.messages, local)
	s.mu.Unlock()
	s.ui.AppendMessage(local)

	resp, err := s.client.SendMessage(ctx, api.SendMessageRequest{
		PublicKey:        s.cfg.PublicKey,
		ChatbotUUID:      chatbotUUID,
		ConversationUUID: convUUID,
		UserUniqueID:     uid,
		Content:          text,
	})
	if err != nil {
		log.Printf("session: ошибка отправки сообщения: %v", err)
		s.ui.ShowAlert("Не удалось отправить сообщение, попробуйте еще раз")
		return fmt.Errorf("отправка сообщения: %w", err)
	}

	s.mu.Lock()
	firstMessage := s.conv == nil || s.conv.UUID == ""
	s.conv = &resp.Conversation
	if resp.Message.ID != 0 {
		// Запоминаем id подтвержденного сообщения: его самоэхо
		// или копия из перезагрузки истории будут отброшены
		s.seen[resp.Message.ID] = struct{}{}
	}
	s.mu.Unlock()

	if firstMessage {
		if err := s.store.Set(storage.ConversationKey(s.cfg.PublicKey), resp.Conversation.UUID); err != nil {
			log.Printf("session: ошибка сохранения uuid диалога: %v", err)
		}
		log.Printf("session: создан диалог %s", resp.Conversation.UUID)
		if err := s.startTransport(ctx); err != nil {
			log.Printf("session: ошибка запуска транспорта после первого сообщения: %v", err)
		}
	}

	return nil
}

// SetUserID сохраняет идентификатор посетителя (обычно телефон).
// Некорректный формат — блокирующее предупреждение и повторный ввод.
func (s *Session) SetUserID(userID string) error {
	userID = strings.TrimSpace(userID)
	if !userIDPattern.MatchString(userID) {
		s.ui.ShowAlert("Укажите корректный номер телефона")
		return fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}

	if err := s.store.Set(storage.UserIDKey(s.cfg.PublicKey), userID); err != nil {
		return fmt.Errorf("сохранение идентификатора: %w", err)
	}

	s.mu.Lock()
	s.customer.UniqueID = userID
	s.mu.Unlock()
	return nil
}

// SendFeedback отправляет оценку сообщения ассистента
func (s *Session) SendFeedback(ctx context.Context, messageID int64, liked bool) error {
	err := s.client.SendMessageFeedback(ctx, api.FeedbackRequest{
		MessageID: messageID,
		Liked:     liked,
	})
	if err != nil {
		log.Printf("session: ошибка отправки оценки: %v", err)
		return fmt.Errorf("отправка оценки: %w", err)
	}
	return nil
}
