// Package api — HTTP-клиент виджета для REST API EcoChat.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	maxRetries = 2
	retryPause = 500 * time.Millisecond
)

// Error представляет собой ответ API с кодом вне диапазона 2xx
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("API error: status %d, body: %s", e.Status, e.Body)
}

// Client представляет клиента для взаимодействия с REST API EcoChat
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient создает нового клиента API с указанным базовым URL и таймаутом
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// get выполняет GET-запрос с ограниченным количеством повторов:
// повторяем только идемпотентные GET при сетевой ошибке или 5xx
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("api: повтор GET %s (попытка %d)", path, attempt+1)
			select {
			case <-time.After(retryPause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.do(ctx, http.MethodGet, path, nil, out)
		if err == nil {
			return nil
		}
		lastErr = err

		// 4xx не повторяем — ответ сервера окончательный
		if apiErr, ok := err.(*Error); ok && apiErr.Status < 500 {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return lastErr
}

// post выполняет POST-запрос без повторов
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// do выполняет один HTTP-запрос с JSON-телом и декодирует JSON-ответ в out
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return &Error{Status: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
