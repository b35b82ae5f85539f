package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maikyonn/optimat-core/internal/geo"
	"github.com/maikyonn/optimat-core/internal/match"
	"github.com/maikyonn/optimat-core/internal/store"
	"github.com/maikyonn/optimat-core/internal/tools"
)

// scriptedModel returns canned contents in order, like a recorded session.
type scriptedModel struct {
	mu        sync.Mutex
	script    []*genai.Content
	errs      []error
	callCount int
	histories [][]*genai.Content
}

func (m *scriptedModel) Generate(_ context.Context, history []*genai.Content, _ []*genai.Tool) (*genai.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.histories = append(m.histories, history)
	idx := m.callCount
	m.callCount++

	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx < len(m.script) {
		return m.script[idx], nil
	}
	// Keep repeating the last scripted content (used by the loop-bound test).
	if len(m.script) > 0 {
		return m.script[len(m.script)-1], nil
	}
	return nil, errors.New("script exhausted")
}

func (m *scriptedModel) GenerateTitle(context.Context, string) (string, error) {
	return "Trip Planning", nil
}

// memStore is an in-memory ConversationStore.
type memStore struct {
	mu        sync.Mutex
	conv      store.Conversation
	messages  []store.Message
	toolCalls []store.ToolCallRecord
	nextID    int
}

func newMemStore() *memStore {
	return &memStore{conv: store.Conversation{ID: "conv-1", UserID: 7, CreatedAt: time.Now()}}
}

func (s *memStore) GetConversationByID(_ context.Context, convID string, userID int64) (*store.Conversation, error) {
	if convID != s.conv.ID || userID != s.conv.UserID {
		return nil, store.ErrNotFound
	}
	conv := s.conv
	return &conv, nil
}

func (s *memStore) UpdateConversationTitle(_ context.Context, convID string, _ int64, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv.Title = &title
	return nil
}

func (s *memStore) GetMessagesByConversationID(_ context.Context, convID string) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Message, len(s.messages))
	copy(out, s.messages)
	return out, nil
}

func (s *memStore) CreateMessage(_ context.Context, msg *store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg.ID = fmt.Sprintf("msg-%d", s.nextID)
	msg.CreatedAt = time.Now()
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *memStore) SaveToolCall(_ context.Context, rec *store.ToolCallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = fmt.Sprintf("tc-%d", s.nextID)
	rec.CreatedAt = time.Now()
	s.toolCalls = append(s.toolCalls, *rec)
	return nil
}

type orchGeocoder struct{}

func (orchGeocoder) Geocode(_ context.Context, address string) (match.Address, error) {
	return match.Address{Label: address, Point: geo.Point{Lng: -122, Lat: 38}}, nil
}

func (orchGeocoder) SearchAddresses(_ context.Context, query string, _ int) ([]match.Address, error) {
	return []match.Address{{Label: query, Point: geo.Point{Lng: -122, Lat: 38}}}, nil
}

type orchProviders struct{}

func (orchProviders) ListProviders(context.Context) ([]store.Provider, error) {
	return nil, nil
}

func newTestDispatcher() *tools.Dispatcher {
	engine := match.NewEngine(orchProviders{}, orchGeocoder{}, nil, false, false)
	return tools.NewDispatcher(
		tools.NewProviderSearchTool(engine),
		tools.NewAddressSearchTool(orchGeocoder{}),
		tools.NewProviderInfoTool(orchProviders{}),
		tools.NewWebSearchTool(nil),
	)
}

func textContent(text string) *genai.Content {
	return &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(text)}}
}

func callContent(name string, args map[string]interface{}) *genai.Content {
	return &genai.Content{Role: "model", Parts: []genai.Part{genai.FunctionCall{Name: name, Args: args}}}
}

func TestRunTurnPlainAnswer(t *testing.T) {
	st := newMemStore()
	model := &scriptedModel{script: []*genai.Content{textContent("Hello! Where would you like to go?")}}
	orch := NewOrchestrator(st, model, newTestDispatcher(), 5)

	result, err := orch.RunTurn(context.Background(), "conv-1", 7, "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello! Where would you like to go?", result.Message.Content)
	assert.Empty(t, result.Attachments)

	// Exactly one user and one assistant message, no tool rows.
	require.Len(t, st.messages, 2)
	assert.Equal(t, "user", st.messages[0].Role)
	assert.Equal(t, "assistant", st.messages[1].Role)
	assert.Empty(t, st.toolCalls)
}

func TestRunTurnWithToolRound(t *testing.T) {
	st := newMemStore()
	model := &scriptedModel{script: []*genai.Content{
		callContent(store.ToolAddressSearch, map[string]interface{}{"query": "Walnut Creek BART"}),
		textContent("I found the station address."),
	}}
	orch := NewOrchestrator(st, model, newTestDispatcher(), 5)

	result, err := orch.RunTurn(context.Background(), "conv-1", 7, "where is the BART station?")
	require.NoError(t, err)
	assert.Equal(t, "I found the station address.", result.Message.Content)
	require.Len(t, result.Attachments, 1)
	assert.Equal(t, store.ToolAddressSearch, result.Attachments[0].Type)

	require.Len(t, st.toolCalls, 1)
	assert.Equal(t, store.ToolAddressSearch, st.toolCalls[0].Tool)

	// The second model invocation saw the tool round appended to history.
	require.Len(t, model.histories, 2)
	second := model.histories[1]
	require.GreaterOrEqual(t, len(second), 3)
	assert.Equal(t, "function", second[len(second)-1].Role)
}

func TestRunTurnFailedValidationLeavesNoRecord(t *testing.T) {
	st := newMemStore()
	model := &scriptedModel{script: []*genai.Content{
		callContent(store.ToolProviderSearch, map[string]interface{}{"source_address": "only one field"}),
		textContent("I need a destination and travel times."),
	}}
	orch := NewOrchestrator(st, model, newTestDispatcher(), 5)

	result, err := orch.RunTurn(context.Background(), "conv-1", 7, "find me a ride")
	require.NoError(t, err)
	assert.Empty(t, result.Attachments)
	assert.Empty(t, st.toolCalls, "validation failures are not logged")
}

func TestRunTurnToolLoopExceeded(t *testing.T) {
	st := newMemStore()
	// The model keeps asking for the same tool forever.
	model := &scriptedModel{script: []*genai.Content{
		callContent(store.ToolAddressSearch, map[string]interface{}{"query": "somewhere"}),
	}}
	orch := NewOrchestrator(st, model, newTestDispatcher(), 3)

	result, err := orch.RunTurn(context.Background(), "conv-1", 7, "loop please")
	require.NoError(t, err)
	assert.Equal(t, fallbackAnswer, result.Message.Content)
	assert.Empty(t, result.Attachments)

	// No more tool rows than the round bound, and the fallback was persisted.
	assert.LessOrEqual(t, len(st.toolCalls), 3)
	require.Len(t, st.messages, 2)
	assert.Equal(t, fallbackAnswer, st.messages[1].Content)
}

func TestRunTurnModelExhaustionIsFatal(t *testing.T) {
	st := newMemStore()
	boom := errors.New("model unreachable")
	model := &scriptedModel{errs: []error{boom, boom, boom}}
	orch := NewOrchestrator(st, model, newTestDispatcher(), 5)

	_, err := orch.RunTurn(context.Background(), "conv-1", 7, "hello?")
	require.Error(t, err)

	// The user message was committed, but no assistant message was.
	require.Len(t, st.messages, 1)
	assert.Equal(t, "user", st.messages[0].Role)
}

func TestRunTurnUnknownConversation(t *testing.T) {
	st := newMemStore()
	model := &scriptedModel{script: []*genai.Content{textContent("hi")}}
	orch := NewOrchestrator(st, model, newTestDispatcher(), 5)

	_, err := orch.RunTurn(context.Background(), "missing", 7, "hi")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
