package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"pai-backend/internal/auth"
	"pai-backend/internal/database"

	"github.com/yuin/goldmark"
)

//go:embed templates/*.html
var templateFS embed.FS

type pageEntry struct {
	ID    uint
	Type  string
	Human bool
	Body  template.HTML
}

type chatPageData struct {
	UserID    string
	Username  string
	HistoryID uint
	Entries   []pageEntry
}

type pageRenderer struct {
	chat     *template.Template
	markdown goldmark.Markdown
}

func newPageRenderer() *pageRenderer {
	return &pageRenderer{
		chat:     template.Must(template.ParseFS(templateFS, "templates/chat.html")),
		markdown: goldmark.New(),
	}
}

// render converts markdown to HTML. Raw HTML in the source is not passed
// through, so the result is safe to embed.
func (p *pageRenderer) render(source string) template.HTML {
	var buf bytes.Buffer
	if err := p.markdown.Convert([]byte(source), &buf); err != nil {
		slog.Warn("error rendering markdown, falling back to text", "error", err)
		return template.HTML(template.HTMLEscapeString(source))
	}
	return template.HTML(buf.String())
}

func (p *pageRenderer) renderChat(w http.ResponseWriter, identity auth.Identity, history database.History, chats []database.ChatEntry) error {
	data := chatPageData{
		UserID:    "guest",
		Username:  identity.Username,
		HistoryID: history.ID,
	}
	if identity.Authenticated() {
		data.UserID = fmt.Sprint(*identity.UserID)
	}

	for _, c := range chats {
		switch c.Type {
		case database.ChatHuman:
			data.Entries = append(data.Entries, pageEntry{ID: c.ID, Type: c.Type, Human: true, Body: template.HTML(template.HTMLEscapeString(c.Content))})
		case database.ChatAI:
			data.Entries = append(data.Entries, pageEntry{ID: c.ID, Type: c.Type, Body: p.render(c.Content)})
		}
	}

	var buf bytes.Buffer
	if err := p.chat.Execute(&buf, data); err != nil {
		return fmt.Errorf("error rendering chat page: %w", err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err := buf.WriteTo(w)
	return err
}
