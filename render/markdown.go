// Package render — отрисовка markdown-ответов ассистента для
// терминальных хостов.
package render

import (
	"log"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Markdown рендерит markdown в текст для терминала
type Markdown struct {
	renderer *glamour.TermRenderer
}

// NewMarkdown создает рендерер с указанной шириной строки.
// Ошибка инициализации не фатальна: Render вернет исходный текст.
func NewMarkdown(width int) *Markdown {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		log.Printf("render: ошибка инициализации glamour: %v", err)
		return &Markdown{}
	}
	return &Markdown{renderer: r}
}

// Render возвращает отрисованный markdown; при любой ошибке — исходный текст
func (m *Markdown) Render(text string) string {
	if m == nil || m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		log.Printf("render: ошибка рендеринга markdown: %v", err)
		return text
	}
	return strings.TrimRight(out, "\n")
}
