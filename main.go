package main

import (
	"bufio"
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/egor/ecochatwidget/api"
	"github.com/egor/ecochatwidget/config"
	"github.com/egor/ecochatwidget/mockserver"
	"github.com/egor/ecochatwidget/models"
	"github.com/egor/ecochatwidget/session"
	"github.com/egor/ecochatwidget/storage"
)

func main() {
	// Загружаем переменные окружения из .env файла
	if err := godotenv.Load(); err != nil {
		log.Println("Файл .env не найден, используем переменные окружения")
	}

	// Конфигурация из переменных окружения
	cfg := config.Load()
	if cfg.PublicKey == "" {
		cfg.PublicKey = "demo-public-key"
	}

	// В dev-режиме поднимаем встроенный мок-бэкенд,
	// чтобы виджет можно было пощупать без продакшен-сервера
	if cfg.Env == "dev" && os.Getenv("ECOCHAT_NO_MOCK") == "" {
		mock := mockserver.New(mockserver.Options{
			PublicKey: cfg.PublicKey,
			Chatbot: models.ChatbotRef{
				Name:           "EcoChat Demo",
				WelcomeMessage: "Здравствуйте! Чем можем помочь?",
			},
			AutoReply:      "Спасибо за сообщение! Оператор скоро подключится.\n\n*Это демонстрационный ответ.*",
			AutoReplyDelay: time.Second,
		})
		go func() {
			if err := mock.Run(":8080"); err != nil {
				log.Fatalf("Ошибка запуска мок-сервера: %v", err)
			}
		}()
		// Даем серверу подняться
		time.Sleep(200 * time.Millisecond)
	}

	// Локальное хранилище
	store, err := storage.OpenPebble(cfg.StorageDir)
	if err != nil {
		log.Fatalf("Ошибка открытия хранилища: %v", err)
	}
	defer store.Close()

	client := api.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout)
	ui := newTermUI()
	sess := session.New(cfg, store, client, ui)

	ctx := context.Background()
	if err := sess.Bootstrap(ctx, os.Getenv("ECOCHAT_PAGE_URL")); err != nil {
		log.Fatalf("Ошибка запуска виджета: %v", err)
	}

	// «Открываем» виджет: возобновление диалога и запуск транспорта
	sess.OnWidgetOpen(ctx)

	ui.printHelp()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			sess.Shutdown()
			return
		case line == "/new":
			sess.ResetConversation()
			ui.println("Диалог сброшен, можно начинать новый")
		case strings.HasPrefix(line, "/id "):
			if err := sess.SetUserID(strings.TrimPrefix(line, "/id ")); err == nil {
				ui.println("Идентификатор сохранен, отправьте сообщение еще раз")
			}
		default:
			if err := sess.SendMessage(ctx, line); err != nil {
				log.Printf("Ошибка отправки: %v", err)
			}
		}
	}

	sess.Shutdown()
}
