package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
)

// PebbleStore хранит значения в PebbleDB на диске,
// переживая перезапуски хоста
type PebbleStore struct {
	db *pebble.DB
	mu sync.Mutex
}

// OpenPebble открывает (или создает) хранилище в указанном каталоге
func OpenPebble(dir string) (*PebbleStore, error) {
	if dir == "" {
		return nil, errors.New("пустой каталог хранилища")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("создание каталога хранилища: %w", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble.Open: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// Get возвращает значение по ключу; ok=false если ключа нет
func (s *PebbleStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("чтение ключа %q: %w", key, err)
	}
	defer closer.Close()

	// copy: после closer.Close() буфер pebble недействителен
	out := string(value)
	return out, true, nil
}

// Set сохраняет значение по ключу
func (s *PebbleStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Set([]byte(key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("запись ключа %q: %w", key, err)
	}
	return nil
}

// Delete удаляет ключ; отсутствие ключа не является ошибкой
func (s *PebbleStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("удаление ключа %q: %w", key, err)
	}
	return nil
}

// Close закрывает базу (вызывайте defer store.Close())
func (s *PebbleStore) Close() error {
	return s.db.Close()
}
