// Package auth — получение и кэширование токена авторизации WebSocket.
package auth

import (
	"context"
	"fmt"
	"log"

	"github.com/egor/ecochatwidget/api"
	"github.com/egor/ecochatwidget/storage"
)

// TokenProvider выдает сокет-токены по схеме cache-first:
// кэшированный токен возвращается без обращения к сети и без проверки
// срока действия — он считается годным, пока подключение с ним не
// отвергнуто сервером.
type TokenProvider struct {
	store     storage.Store
	client    *api.Client
	publicKey string
}

// NewTokenProvider создает провайдера токенов для указанного виджета
func NewTokenProvider(store storage.Store, client *api.Client, publicKey string) *TokenProvider {
	return &TokenProvider{
		store:     store,
		client:    client,
		publicKey: publicKey,
	}
}

// GetOrCreateToken возвращает кэшированный токен или запрашивает новый.
// При промахе кэша — ровно один POST и ровно одна запись в хранилище.
// Ошибки сети/сервера уходят наверх как есть: повторы — дело HTTP-клиента,
// а решение, что делать дальше — дело оркестратора сессии.
func (p *TokenProvider) GetOrCreateToken(ctx context.Context, chatbotUUID, conversationUUID, userUniqueID string) (string, error) {
	key := storage.TokenKey(p.publicKey)

	cached, ok, err := p.store.Get(key)
	if err != nil {
		return "", fmt.Errorf("чтение токена из хранилища: %w", err)
	}
	if ok && cached != "" {
		return cached, nil
	}

	token, err := p.client.RequestSocketToken(ctx, api.SocketTokenRequest{
		ChatbotUUID:      chatbotUUID,
		ConversationUUID: conversationUUID,
		UserUniqueID:     userUniqueID,
	})
	if err != nil {
		return "", err
	}

	if err := p.store.Set(key, token); err != nil {
		return "", fmt.Errorf("сохранение токена: %w", err)
	}

	log.Printf("auth: получен новый сокет-токен для чат-бота %s", chatbotUUID)
	return token, nil
}

// Invalidate удаляет кэшированный токен.
// Вызывается только при явном закрытии транспорта: обрыв связи токен
// не инвалидирует, он всё ещё действителен.
func (p *TokenProvider) Invalidate() error {
	return p.store.Delete(storage.TokenKey(p.publicKey))
}
