// Package replay deterministically rebuilds UI-facing snapshots from a
// conversation's stored messages and tool-call logs. It powers demo playback
// and lets stored replay rows be regenerated at any time without drift.
package replay

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/maikyonn/optimat-core/internal/store"
)

// Snapshot is the cumulative "what the UI should show" state at one point in
// a conversation.
type Snapshot struct {
	Providers       []interface{}          `json:"providers"`
	Addresses       []interface{}          `json:"addresses"`
	Origin          interface{}            `json:"origin,omitempty"`
	Destination     interface{}            `json:"destination,omitempty"`
	ProviderDetails map[string]interface{} `json:"provider_details"`
	Transit         interface{}            `json:"transit,omitempty"`
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		Providers:       []interface{}{},
		Addresses:       []interface{}{},
		ProviderDetails: map[string]interface{}{},
	}
}

// Hints tell a playback consumer what changed at one step. A given kind of
// result is surfaced only once, on the first message where it newly appears.
type Hints struct {
	ShowProviders bool `json:"show_providers"`
	ShowAddresses bool `json:"show_addresses"`
	FocusMap      bool `json:"focus_map"`
}

// Warning records a malformed or unusable tool-call entry that was skipped
// during reconstruction. Warnings never abort the walk.
type Warning struct {
	ToolCallID string `json:"tool_call_id"`
	Tool       string `json:"tool"`
	Reason     string `json:"reason"`
}

// BuildStates walks the transcript in timestamp order and emits one
// ReplayState per conversational message, applying each tool call exactly
// once at the first message whose timestamp is at or past it. The function is
// pure: identical inputs yield byte-identical output.
func BuildStates(messages []store.Message, toolCallsByType map[string][]store.ToolCallRecord) ([]store.ReplayState, []Warning) {
	ordered := make([]store.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}
		ordered = append(ordered, msg)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	var timeline []store.ToolCallRecord
	for _, tool := range store.ToolNames {
		timeline = append(timeline, toolCallsByType[tool]...)
	}
	sort.SliceStable(timeline, func(i, j int) bool {
		if timeline[i].CreatedAt.Equal(timeline[j].CreatedAt) {
			return timeline[i].ID < timeline[j].ID
		}
		return timeline[i].CreatedAt.Before(timeline[j].CreatedAt)
	})

	var (
		states     []store.ReplayState
		warnings   []Warning
		snapshot   = newSnapshot()
		next       = 0
		surfaced   = map[string]bool{}
		convID     string
	)
	if len(ordered) > 0 {
		convID = ordered[0].ConversationID
	}

	for i, msg := range ordered {
		applied := map[string]bool{}
		for next < len(timeline) && !timeline[next].CreatedAt.After(msg.CreatedAt) {
			rec := timeline[next]
			next++
			if err := applyToolCall(snapshot, rec); err != nil {
				warnings = append(warnings, Warning{ToolCallID: rec.ID, Tool: rec.Tool, Reason: err.Error()})
				continue
			}
			applied[rec.Tool] = true
		}

		hints := Hints{}
		if msg.Role == "assistant" {
			if applied[store.ToolProviderSearch] && !surfaced[store.ToolProviderSearch] {
				surfaced[store.ToolProviderSearch] = true
				hints.ShowProviders = true
				hints.FocusMap = true
			}
			if applied[store.ToolAddressSearch] && !surfaced[store.ToolAddressSearch] {
				surfaced[store.ToolAddressSearch] = true
				hints.ShowAddresses = true
			}
		}

		snapshotJSON, err := json.Marshal(snapshot)
		if err != nil {
			// Snapshot contents come from json.Unmarshal, so this cannot
			// happen with well-formed inputs; skip defensively.
			warnings = append(warnings, Warning{Tool: "snapshot", Reason: err.Error()})
			snapshotJSON = []byte("{}")
		}
		hintsJSON, _ := json.Marshal(hints)

		states = append(states, store.ReplayState{
			ConversationID: convID,
			Seq:            i + 1,
			MessageID:      msg.ID,
			Role:           msg.Role,
			Snapshot:       snapshotJSON,
			Hints:          hintsJSON,
		})
	}

	return states, warnings
}

// applyToolCall folds one tool-call output into the cumulative snapshot.
func applyToolCall(s *Snapshot, rec store.ToolCallRecord) error {
	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Output, &payload); err != nil {
		return fmt.Errorf("malformed output payload: %v", err)
	}

	switch rec.Tool {
	case store.ToolProviderSearch:
		providers, ok := payload["providers"].([]interface{})
		if !ok {
			return fmt.Errorf("output has no providers list")
		}
		// A later search of the same kind replaces the shown list.
		s.Providers = providers
		if origin, ok := payload["origin"]; ok {
			s.Origin = origin
		}
		if destination, ok := payload["destination"]; ok {
			s.Destination = destination
		}
		if transit, ok := payload["transit"]; ok {
			s.Transit = transit
		}
	case store.ToolAddressSearch:
		addresses, ok := payload["addresses"].([]interface{})
		if !ok {
			return fmt.Errorf("output has no addresses list")
		}
		s.Addresses = append(s.Addresses, addresses...)
	case store.ToolProviderInfo:
		providers, ok := payload["providers"].([]interface{})
		if !ok {
			return fmt.Errorf("output has no providers list")
		}
		for _, p := range providers {
			detail, ok := p.(map[string]interface{})
			if !ok {
				return fmt.Errorf("provider detail is not an object")
			}
			name, _ := detail["name"].(string)
			if name == "" {
				return fmt.Errorf("provider detail has no name")
			}
			s.ProviderDetails[name] = detail
		}
	case store.ToolWebSearch:
		// Web answers live in the transcript text; nothing to fold in.
	default:
		return fmt.Errorf("unknown tool %q", rec.Tool)
	}
	return nil
}
