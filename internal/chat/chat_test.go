package chat_test

import (
	"context"
	"errors"
	"iter"
	"testing"

	"pai-backend/internal/agent"
	"pai-backend/internal/chat"
	"pai-backend/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

func ptr[T any](v T) *T {
	return &v
}

// fakeAgent replays a fixed list of events and records what it was called with.
type fakeAgent struct {
	events   []agent.Event
	err      error
	cfg      agent.RunConfig
	messages []llms.MessageContent
}

func (f *fakeAgent) Stream(ctx context.Context, cfg agent.RunConfig, messages []llms.MessageContent) iter.Seq2[agent.Event, error] {
	f.cfg = cfg
	f.messages = messages
	return func(yield func(agent.Event, error) bool) {
		for _, ev := range f.events {
			if !yield(ev, nil) {
				return
			}
		}
		if f.err != nil {
			yield(agent.Event{}, f.err)
		}
	}
}

func token(s string) agent.Event {
	return agent.Event{Node: agent.NodeAgent, Message: agent.Message{Content: s}}
}

func calls(c ...agent.ToolCall) agent.Event {
	return agent.Event{Node: agent.NodeAgent, Message: agent.Message{ToolCalls: c}}
}

func result(id, name, content string) agent.Event {
	return agent.Event{Node: agent.NodeTools, Message: agent.Message{Content: content, ToolCallID: id, ToolName: name}}
}

func drain(seq iter.Seq[chat.Event]) []chat.Event {
	var events []chat.Event
	for ev := range seq {
		events = append(events, ev)
	}
	return events
}

func loadChats(t *testing.T, db *gorm.DB, historyId uint) []database.ChatEntry {
	chats, err := database.ListChats(context.Background(), db, historyId)
	require.NoError(t, err)
	return chats
}

var alice = database.Owner{UserID: ptr(uint(1))}

func aliceDB(t *testing.T, create ...any) *gorm.DB {
	base := []any{
		&database.User{ID: 1, Username: "alice"},
		&database.History{ID: 1, UserID: ptr(uint(1)), OrderNum: 1},
	}
	return createDB(t, append(base, create...)...)
}

func TestStreamFirstMessage(t *testing.T) {
	db := aliceDB(t)
	fake := &fakeAgent{events: []agent.Event{token("Hel"), token("lo")}}
	service := chat.NewService(db, fake, "be nice")

	seq, err := service.Stream(context.Background(), alice, 1, "hi")
	require.NoError(t, err)
	events := drain(seq)

	chats := loadChats(t, db, 1)
	require.Len(t, chats, 2)
	assert.Equal(t, database.ChatHuman, chats[0].Type)
	assert.Equal(t, "hi", chats[0].Content)
	assert.Equal(t, 1, chats[0].OrderNum)
	assert.Equal(t, database.ChatAI, chats[1].Type)
	assert.Equal(t, "Hello", chats[1].Content)
	assert.Equal(t, 2, chats[1].OrderNum)

	assert.Equal(t, []chat.Event{
		{Type: chat.EventUserMessageID, ChatID: chats[0].ID},
		{Type: chat.EventToken, Content: "Hel"},
		{Type: chat.EventToken, Content: "lo"},
	}, events)

	assert.Equal(t, "1", fake.cfg.ThreadID)
	require.Len(t, fake.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.messages[0].Role)
	assert.Equal(t, llms.TextParts(llms.ChatMessageTypeHuman, "hi"), fake.messages[1])
}

func TestStreamWithTools(t *testing.T) {
	db := aliceDB(t,
		&database.ChatEntry{HistoryID: 1, Type: database.ChatHuman, Content: "earlier", OrderNum: 1},
		&database.ChatEntry{HistoryID: 1, Type: database.ChatAI, Content: "reply", OrderNum: 2},
	)
	fake := &fakeAgent{events: []agent.Event{
		calls(agent.ToolCall{ID: "c1", Name: "calculator", Arguments: `{"input":"6*7"}`}),
		calls(agent.ToolCall{ID: "c1", Name: "calculator"}, agent.ToolCall{ID: "c2", Name: "search"}),
		result("c1", "calculator", "42"),
		result("c2", "search", "héllo"),
		token("It is "),
		token("42."),
	}}
	service := chat.NewService(db, fake, "")

	seq, err := service.Stream(context.Background(), alice, 1, "what is 6*7?")
	require.NoError(t, err)
	events := drain(seq)

	chats := loadChats(t, db, 1)
	require.Len(t, chats, 6)

	assert.Equal(t, []chat.Event{
		{Type: chat.EventUserMessageID, ChatID: chats[2].ID},
		{Type: chat.EventToolCall, ToolName: "calculator"},
		{Type: chat.EventToolCall, ToolName: "search"},
		{Type: chat.EventToolResult, Length: 2},
		{Type: chat.EventToolResult, Length: 5},
		{Type: chat.EventToken, Content: "It is "},
		{Type: chat.EventToken, Content: "42."},
	}, events)

	for i, c := range chats {
		assert.Equal(t, i+1, c.OrderNum)
	}
	assert.Equal(t, []string{database.ChatHuman, database.ChatAI, database.ChatHuman, database.ChatTools, database.ChatTools, database.ChatAI},
		[]string{chats[0].Type, chats[1].Type, chats[2].Type, chats[3].Type, chats[4].Type, chats[5].Type})
	assert.Equal(t, "42", chats[3].Content)
	assert.JSONEq(t, `{"tool_call_id":"c1","tool_name":"calculator","arguments":"{\"input\":\"6*7\"}"}`, string(chats[3].Metadata))
	assert.Equal(t, "It is 42.", chats[5].Content)

	// The prior turn is part of the agent's context.
	require.Len(t, fake.messages, 3)
	assert.Equal(t, llms.TextParts(llms.ChatMessageTypeAI, "reply"), fake.messages[1])
}

func TestStreamNoTextSavesNoAIEntry(t *testing.T) {
	db := aliceDB(t)
	fake := &fakeAgent{events: []agent.Event{calls(agent.ToolCall{ID: "c1", Name: "calculator"}), result("c1", "calculator", "1")}}
	service := chat.NewService(db, fake, "")

	seq, err := service.Stream(context.Background(), alice, 1, "hi")
	require.NoError(t, err)
	drain(seq)

	chats := loadChats(t, db, 1)
	require.Len(t, chats, 2)
	assert.Equal(t, database.ChatTools, chats[1].Type)
}

func TestStreamAgentErrorKeepsSavedEntries(t *testing.T) {
	db := aliceDB(t)
	fake := &fakeAgent{
		events: []agent.Event{token("partial"), calls(agent.ToolCall{ID: "c1", Name: "calculator"}), result("c1", "calculator", "1")},
		err:    errors.New("model unavailable"),
	}
	service := chat.NewService(db, fake, "")

	seq, err := service.Stream(context.Background(), alice, 1, "hi")
	require.NoError(t, err)
	events := drain(seq)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, chat.EventError, last.Type)
	assert.Equal(t, "model unavailable", last.Message)

	chats := loadChats(t, db, 1)
	require.Len(t, chats, 2)
	assert.Equal(t, database.ChatHuman, chats[0].Type)
	assert.Equal(t, database.ChatTools, chats[1].Type)
}

func TestStreamRejects(t *testing.T) {
	db := aliceDB(t, &database.History{ID: 2, SessionID: ptr("guest"), OrderNum: 1})
	service := chat.NewService(db, &fakeAgent{}, "")
	ctx := context.Background()

	_, err := service.Stream(ctx, alice, 1, "")
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)

	_, err = service.Stream(ctx, alice, 2, "hi")
	assert.ErrorIs(t, err, chat.ErrHistoryNotFound)

	_, err = service.Stream(ctx, database.Owner{}, 2, "hi")
	assert.ErrorIs(t, err, chat.ErrSessionRequired)

	_, err = service.Stream(ctx, database.Owner{SessionKey: "guest"}, 1, "hi")
	assert.ErrorIs(t, err, chat.ErrHistoryNotFound)

	assert.Empty(t, loadChats(t, db, 1))
	assert.Empty(t, loadChats(t, db, 2))
}

func TestStreamStopsWhenConsumerBreaks(t *testing.T) {
	db := aliceDB(t)
	service := chat.NewService(db, &fakeAgent{events: []agent.Event{token("a"), token("b")}}, "")

	seq, err := service.Stream(context.Background(), alice, 1, "hi")
	require.NoError(t, err)
	for ev := range seq {
		if ev.Type == chat.EventToken {
			break
		}
	}

	// The reply was never completed, so only the question is saved.
	chats := loadChats(t, db, 1)
	require.Len(t, chats, 1)
}

func TestDeleteMessage(t *testing.T) {
	ctx := context.Background()

	fixture := func(t *testing.T) *gorm.DB {
		return aliceDB(t,
			&database.History{ID: 2, SessionID: ptr("guest"), OrderNum: 1},
			&database.ChatEntry{ID: 1, HistoryID: 1, Type: database.ChatHuman, Content: "q1", OrderNum: 1},
			&database.ChatEntry{ID: 2, HistoryID: 1, Type: database.ChatTools, Content: "t1", OrderNum: 2},
			&database.ChatEntry{ID: 3, HistoryID: 1, Type: database.ChatAI, Content: "a1", OrderNum: 3},
			&database.ChatEntry{ID: 4, HistoryID: 1, Type: database.ChatHuman, Content: "q2", OrderNum: 4},
			&database.ChatEntry{ID: 5, HistoryID: 1, Type: database.ChatAI, Content: "a2", OrderNum: 5},
			&database.ChatEntry{ID: 6, HistoryID: 2, Type: database.ChatHuman, Content: "g1", OrderNum: 1},
		)
	}

	t.Run("Turn", func(t *testing.T) {
		db := fixture(t)
		service := chat.NewService(db, &fakeAgent{}, "")
		require.NoError(t, service.DeleteMessage(ctx, alice, 1))

		chats := loadChats(t, db, 1)
		require.Len(t, chats, 2)
		assert.Equal(t, uint(4), chats[0].ID)
		assert.Equal(t, uint(5), chats[1].ID)
	})

	t.Run("NotHuman", func(t *testing.T) {
		db := fixture(t)
		service := chat.NewService(db, &fakeAgent{}, "")
		assert.ErrorIs(t, service.DeleteMessage(ctx, alice, 3), chat.ErrNotDeletable)
		assert.Len(t, loadChats(t, db, 1), 5)
	})

	t.Run("Unauthorized", func(t *testing.T) {
		db := fixture(t)
		service := chat.NewService(db, &fakeAgent{}, "")
		assert.ErrorIs(t, service.DeleteMessage(ctx, alice, 6), chat.ErrChatNotFound)
		assert.ErrorIs(t, service.DeleteMessage(ctx, database.Owner{SessionKey: "guest"}, 1), chat.ErrChatNotFound)
		assert.ErrorIs(t, service.DeleteMessage(ctx, database.Owner{}, 6), chat.ErrChatNotFound)
		assert.ErrorIs(t, service.DeleteMessage(ctx, alice, 404), chat.ErrChatNotFound)
	})

	t.Run("Guest", func(t *testing.T) {
		db := fixture(t)
		service := chat.NewService(db, &fakeAgent{}, "")
		require.NoError(t, service.DeleteMessage(ctx, database.Owner{SessionKey: "guest"}, 6))
		assert.Empty(t, loadChats(t, db, 2))
	})
}
