package replay

import (
	"context"
	"fmt"
	"log"

	"github.com/maikyonn/optimat-core/internal/store"
)

// Store is the slice of persistence replay regeneration needs.
type Store interface {
	GetMessagesByConversationID(ctx context.Context, convID string) ([]store.Message, error)
	GetToolCallsByConversation(ctx context.Context, convID string) (map[string][]store.ToolCallRecord, error)
	ReplaceReplayStates(ctx context.Context, convID string, states []store.ReplayState) error
	GetReplayStates(ctx context.Context, convID string) ([]store.ReplayState, error)
}

// Service wires the pure reconstructor to persistence: it fetches a
// conversation's history, rebuilds the snapshots, and swaps the stored rows.
type Service struct {
	store Store
}

func NewService(st Store) *Service {
	return &Service{store: st}
}

// Regenerate recomputes the replay states for a conversation and replaces any
// previously stored rows. Safe to run arbitrarily often: identical source
// data yields identical rows.
func (s *Service) Regenerate(ctx context.Context, convID string) ([]store.ReplayState, error) {
	messages, err := s.store.GetMessagesByConversationID(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	toolCalls, err := s.store.GetToolCallsByConversation(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tool calls: %w", err)
	}

	states, warnings := BuildStates(messages, toolCalls)
	for _, w := range warnings {
		log.Printf("replay %s: skipped %s call %s: %s", convID, w.Tool, w.ToolCallID, w.Reason)
	}

	if err := s.store.ReplaceReplayStates(ctx, convID, states); err != nil {
		return nil, fmt.Errorf("failed to store replay states: %w", err)
	}
	return states, nil
}

// States returns the stored replay states for playback.
func (s *Service) States(ctx context.Context, convID string) ([]store.ReplayState, error) {
	return s.store.GetReplayStates(ctx, convID)
}
