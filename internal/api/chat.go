package api

import (
	"errors"
	"iter"
	"net/http"
	"strings"
	"time"

	"pai-backend/internal/auth"
	"pai-backend/internal/chat"
	"pai-backend/internal/database"
	"pai-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const requestTimeout = 60 * time.Second

type ChatService struct {
	chat     *chat.Service
	sessions *auth.Sessions
	pages    *pageRenderer
}

func NewChatService(service *chat.Service, sessions *auth.Sessions) *ChatService {
	return &ChatService{
		chat:     service,
		sessions: sessions,
		pages:    newPageRenderer(),
	}
}

func (s *ChatService) AddRoutes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.Use(s.sessions.Middleware)

		// Runs as long as the agent keeps replying.
		r.Post("/stream", StreamHandler(s.Stream))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/", s.Interface)
			r.Post("/delete", RestHandler(s.DeleteMessage))
			r.Get("/new", s.NewChat)
			r.Post("/new", s.NewChat)
			r.Get("/histories", RestHandler(s.ListHistories))
			r.Get("/histories/current", s.CurrentHistory)
		})
	})
}

// chatError maps chat errors to HTTP status codes.
func chatError(err error) error {
	switch {
	case errors.Is(err, chat.ErrHistoryNotFound):
		return CodedError(http.StatusNotFound, err)
	case errors.Is(err, chat.ErrSessionRequired):
		return CodedErrorf(http.StatusForbidden, "Session expired")
	case errors.Is(err, chat.ErrEmptyMessage):
		return CodedErrorf(http.StatusBadRequest, "Missing data")
	default:
		return err
	}
}

func historyItem(h database.History) api.HistoryItem {
	return api.HistoryItem{
		HistoryID:   h.ID,
		OrderNum:    h.OrderNum,
		Description: h.Description,
		CreatedAt:   h.CreatedAt,
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// Interface renders the chat page. Users land in their latest conversation;
// guests get a new, empty one on every visit.
func (s *ChatService) Interface(w http.ResponseWriter, r *http.Request) {
	params, err := ParseRequestQueryParams[api.InterfaceParams](r)
	if err != nil {
		writeError(w, err)
		return
	}

	identity, err := s.sessions.EnsureGuest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	var history database.History
	if params.HistoryID != 0 {
		history, err = s.chat.SelectHistory(r.Context(), identity.Owner(), params.HistoryID)
	} else {
		history, err = s.chat.ResolveHistory(r.Context(), identity.Owner(), chat.FreshForGuests)
	}
	if err != nil {
		writeError(w, chatError(err))
		return
	}

	chats, err := s.chat.ListChats(r.Context(), history.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	var userId any = "guest"
	if identity.Authenticated() {
		userId = *identity.UserID
	}

	if wantsJSON(r) {
		items := make([]api.ChatItem, 0, len(chats))
		for _, c := range chats {
			items = append(items, api.ChatItem{
				ChatID:    c.ID,
				Type:      c.Type,
				Content:   c.Content,
				OrderNum:  c.OrderNum,
				CreatedAt: c.CreatedAt,
			})
		}
		WriteJsonResponse(w, api.InterfaceResponse{
			UserID:            userId,
			SelectedHistoryID: history.ID,
			ChatHistory:       items,
		})
		return
	}

	if err := s.pages.renderChat(w, identity, history, chats); err != nil {
		writeError(w, err)
	}
}

func streamLine(ev chat.Event) any {
	switch ev.Type {
	case chat.EventUserMessageID:
		return api.UserMessageIDLine{Type: string(ev.Type), ChatID: ev.ChatID}
	case chat.EventToken:
		return api.TokenLine{Type: string(ev.Type), Content: ev.Content}
	case chat.EventToolCall:
		return api.ToolCallLine{Type: string(ev.Type), ToolName: ev.ToolName}
	case chat.EventToolResult:
		return api.ToolResultLine{Type: string(ev.Type), Length: ev.Length}
	default:
		return api.ErrorLine{Type: string(chat.EventError), Message: ev.Message}
	}
}

func (s *ChatService) Stream(r *http.Request) (iter.Seq[any], error) {
	req, err := ParseRequest[api.StreamRequest](r)
	if err != nil {
		return nil, err
	}

	if req.Message == "" || req.HistoryID == 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "Missing data")
	}

	identity := auth.FromContext(r.Context())

	events, err := s.chat.Stream(r.Context(), identity.Owner(), uint(req.HistoryID), req.Message)
	if err != nil {
		return nil, chatError(err)
	}

	return func(yield func(any) bool) {
		for ev := range events {
			if !yield(streamLine(ev)) {
				return
			}
		}
	}, nil
}

// DeleteMessage reports ownership and type problems in the response body
// rather than as HTTP errors.
func (s *ChatService) DeleteMessage(r *http.Request) (any, error) {
	req, err := ParseRequest[api.DeleteRequest](r)
	if err != nil {
		return nil, err
	}

	identity := auth.FromContext(r.Context())

	err = s.chat.DeleteMessage(r.Context(), identity.Owner(), uint(req.MessageID))
	switch {
	case err == nil:
		return api.DeleteResponse{Status: api.StatusSuccess}, nil
	case errors.Is(err, chat.ErrChatNotFound):
		return api.DeleteResponse{Status: api.StatusFailed, Message: "Message not found or unauthorized"}, nil
	case errors.Is(err, chat.ErrNotDeletable):
		return api.DeleteResponse{Status: api.StatusFailed, Message: "Can only delete HUMAN messages"}, nil
	default:
		return nil, err
	}
}

func (s *ChatService) NewChat(w http.ResponseWriter, r *http.Request) {
	identity, err := s.sessions.EnsureGuest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.chat.NewHistory(r.Context(), identity.Owner()); err != nil {
		writeError(w, chatError(err))
		return
	}

	// Relative to /chat/new, so it works wherever the routes are mounted.
	http.Redirect(w, r, "./", http.StatusSeeOther)
}

func (s *ChatService) ListHistories(r *http.Request) (any, error) {
	identity := auth.FromContext(r.Context())

	histories, err := s.chat.ListHistories(r.Context(), identity.Owner())
	if err != nil {
		return nil, err
	}

	items := make([]api.HistoryItem, 0, len(histories))
	for _, h := range histories {
		items = append(items, historyItem(h))
	}
	return items, nil
}

func (s *ChatService) CurrentHistory(w http.ResponseWriter, r *http.Request) {
	identity, err := s.sessions.EnsureGuest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	history, err := s.chat.ResolveHistory(r.Context(), identity.Owner(), chat.ReuseLatest)
	if err != nil {
		writeError(w, chatError(err))
		return
	}

	WriteJsonResponse(w, historyItem(history))
}
