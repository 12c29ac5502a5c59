package main

import (
	"fmt"

	"github.com/egor/ecochatwidget/models"
	"github.com/egor/ecochatwidget/render"
)

// termUI — терминальная реализация session.UI для демо-хоста
type termUI struct {
	md *render.Markdown
}

func newTermUI() *termUI {
	return &termUI{md: render.NewMarkdown(80)}
}

func (u *termUI) AppendMessage(m models.Message) {
	switch m.Sender {
	case models.SenderUser:
		fmt.Printf("вы > %s\n", m.Content)
	case models.SenderSystem:
		fmt.Printf("── %s ──\n", m.Content)
	default:
		// Ответы ассистента и оператора — markdown
		fmt.Printf("%s:\n%s\n", senderLabel(m.Sender), u.md.Render(m.Content))
	}
}

func (u *termUI) NotifyIncoming(models.Message) {
	// Терминальный звонок вместо браузерного уведомления
	fmt.Print("\a")
}

func (u *termUI) ScrollToLatest() {}

func (u *termUI) SetConnectionStatus(connected bool) {
	if connected {
		fmt.Println("[соединение установлено]")
	} else {
		fmt.Println("[соединение потеряно, переподключаемся...]")
	}
}

func (u *termUI) RequestUserID() {
	fmt.Println("Укажите номер телефона командой: /id +79991234567")
}

func (u *termUI) ShowAlert(text string) {
	fmt.Printf("!! %s\n", text)
}

func (u *termUI) println(text string) {
	fmt.Println(text)
}

func (u *termUI) printHelp() {
	fmt.Println("EcoChat demo. Введите сообщение, /id <телефон>, /new, /quit")
}

func senderLabel(s models.SenderType) string {
	switch s {
	case models.SenderAI:
		return "ассистент"
	case models.SenderSupporter:
		return "оператор"
	default:
		return string(s)
	}
}
