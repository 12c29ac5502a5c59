// Package storage — локальное key-value хранилище виджета,
// аналог localStorage браузера. Хранит uuid диалога, сокет-токен
// и идентификатор посетителя, каждый под своим ключом.
package storage

import "fmt"

// Store — интерфейс хранилища.
// Get возвращает ok=false, если ключа нет — это не ошибка.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}

// Ключи скоупятся публичным ключом виджета, чтобы несколько
// виджетов на одной машине не затирали данные друг друга.

// ConversationKey — ключ сохраненного uuid диалога
func ConversationKey(publicKey string) string {
	return fmt.Sprintf("ecochat:%s:conversation_uuid", publicKey)
}

// TokenKey — ключ кэшированного сокет-токена
func TokenKey(publicKey string) string {
	return fmt.Sprintf("ecochat:%s:socket_token", publicKey)
}

// UserIDKey — ключ уникального идентификатора посетителя
func UserIDKey(publicKey string) string {
	return fmt.Sprintf("ecochat:%s:user_unique_id", publicKey)
}
