package config

import (
	"os"
	"time"
)

// URL бэкенда по окружениям
const (
	prodAPIBaseURL = "https://api.ecochat.app"
	prodWSBaseURL  = "wss://ws.ecochat.app"
	devAPIBaseURL  = "http://localhost:8080"
	devWSBaseURL   = "ws://localhost:8080"
)

// Config содержит настройки виджета.
// Все значения читаются из переменных окружения с дефолтами,
// подходящими для локальной разработки.
type Config struct {
	Env        string // "dev" или "prod"
	APIBaseURL string
	WSBaseURL  string
	PublicKey  string // публичный ключ виджета, скоупит все ключи хранилища
	StorageDir string // каталог локального хранилища (PebbleDB)

	HTTPTimeout    time.Duration
	ReconnectDelay time.Duration // фиксированная задержка перед переподключением
}

// Load собирает конфигурацию из переменных окружения
func Load() *Config {
	environment := env("ECOCHAT_ENV", "dev")

	apiBase := devAPIBaseURL
	wsBase := devWSBaseURL
	if environment == "prod" {
		apiBase = prodAPIBaseURL
		wsBase = prodWSBaseURL
	}

	cfg := &Config{
		Env:            environment,
		APIBaseURL:     env("ECOCHAT_API_URL", apiBase),
		WSBaseURL:      env("ECOCHAT_WS_URL", wsBase),
		PublicKey:      os.Getenv("ECOCHAT_PUBLIC_KEY"),
		StorageDir:     env("ECOCHAT_STORAGE_DIR", ".ecochat"),
		HTTPTimeout:    30 * time.Second,
		ReconnectDelay: 3 * time.Second,
	}

	if t := os.Getenv("ECOCHAT_HTTP_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			cfg.HTTPTimeout = d
		}
	}

	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
