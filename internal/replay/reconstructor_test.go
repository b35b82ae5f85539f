package replay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maikyonn/optimat-core/internal/store"
)

var base = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func msg(id, role string, offset time.Duration) store.Message {
	return store.Message{
		ID:             id,
		ConversationID: "conv-1",
		Role:           role,
		Content:        "...",
		CreatedAt:      base.Add(offset),
	}
}

func call(id, tool, output string, offset time.Duration) store.ToolCallRecord {
	return store.ToolCallRecord{
		ID:             id,
		ConversationID: "conv-1",
		Tool:           tool,
		Input:          json.RawMessage(`{}`),
		Output:         json.RawMessage(output),
		CreatedAt:      base.Add(offset),
	}
}

const providerSearchOutput = `{
	"providers": [{"id": "p1", "name": "East Bay Paratransit", "has_zone": true}],
	"origin": {"label": "123 Main St", "point": {"lng": -122.06, "lat": 37.9}},
	"destination": {"label": "456 Oak Ave", "point": {"lng": -122.03, "lat": 37.97}},
	"transit": {"duration": "42m0s", "distance": "10 km"}
}`

func decodeSnapshot(t *testing.T, st store.ReplayState) Snapshot {
	t.Helper()
	var snap Snapshot
	require.NoError(t, json.Unmarshal(st.Snapshot, &snap))
	return snap
}

func decodeHints(t *testing.T, st store.ReplayState) Hints {
	t.Helper()
	var hints Hints
	require.NoError(t, json.Unmarshal(st.Hints, &hints))
	return hints
}

func TestBuildStatesNoToolCalls(t *testing.T) {
	messages := []store.Message{
		msg("m1", "user", 0),
		msg("m2", "assistant", time.Minute),
	}

	states, warnings := BuildStates(messages, nil)
	require.Empty(t, warnings)
	require.Len(t, states, 2)

	empty, err := json.Marshal(newSnapshot())
	require.NoError(t, err)

	for i, st := range states {
		assert.Equal(t, i+1, st.Seq)
		assert.JSONEq(t, string(empty), string(st.Snapshot))
		assert.Equal(t, Hints{}, decodeHints(t, st))
	}
}

func TestBuildStatesIsPureAndByteIdentical(t *testing.T) {
	messages := []store.Message{
		msg("m1", "user", 0),
		msg("m2", "assistant", 2*time.Minute),
		msg("m3", "user", 3*time.Minute),
		msg("m4", "assistant", 5*time.Minute),
	}
	toolCalls := map[string][]store.ToolCallRecord{
		store.ToolProviderSearch: {call("t1", store.ToolProviderSearch, providerSearchOutput, time.Minute)},
		store.ToolAddressSearch:  {call("t2", store.ToolAddressSearch, `{"addresses": [{"label": "456 Oak Ave"}]}`, 4*time.Minute)},
	}

	first, _ := BuildStates(messages, toolCalls)
	second, _ := BuildStates(messages, toolCalls)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, string(first[i].Snapshot), string(second[i].Snapshot))
		assert.Equal(t, string(first[i].Hints), string(second[i].Hints))
		assert.Equal(t, i+1, first[i].Seq)
	}
}

func TestBuildStatesAppliesCallsAtTheRightStep(t *testing.T) {
	messages := []store.Message{
		msg("m1", "user", 0),
		msg("m2", "assistant", 2*time.Minute), // provider search lands here
		msg("m3", "user", 3*time.Minute),
	}
	toolCalls := map[string][]store.ToolCallRecord{
		store.ToolProviderSearch: {call("t1", store.ToolProviderSearch, providerSearchOutput, time.Minute)},
	}

	states, warnings := BuildStates(messages, toolCalls)
	require.Empty(t, warnings)
	require.Len(t, states, 3)

	// Before the call's timestamp: empty state.
	assert.Empty(t, decodeSnapshot(t, states[0]).Providers)

	// At the assistant message: providers shown, hints set.
	snap := decodeSnapshot(t, states[1])
	require.Len(t, snap.Providers, 1)
	assert.NotNil(t, snap.Origin)
	assert.NotNil(t, snap.Transit)
	hints := decodeHints(t, states[1])
	assert.True(t, hints.ShowProviders)
	assert.True(t, hints.FocusMap)

	// State accumulates monotonically; the hint fires only once.
	snap = decodeSnapshot(t, states[2])
	require.Len(t, snap.Providers, 1)
	assert.Equal(t, Hints{}, decodeHints(t, states[2]))
}

func TestBuildStatesLaterSearchReplacesProviders(t *testing.T) {
	messages := []store.Message{
		msg("m1", "assistant", time.Minute),
		msg("m2", "assistant", 3*time.Minute),
	}
	second := `{"providers": [{"id": "p2", "name": "Other Rides"}, {"id": "p3", "name": "Third"}]}`
	toolCalls := map[string][]store.ToolCallRecord{
		store.ToolProviderSearch: {
			call("t1", store.ToolProviderSearch, providerSearchOutput, 0),
			call("t2", store.ToolProviderSearch, second, 2*time.Minute),
		},
	}

	states, warnings := BuildStates(messages, toolCalls)
	require.Empty(t, warnings)
	require.Len(t, states, 2)
	assert.Len(t, decodeSnapshot(t, states[0]).Providers, 1)
	assert.Len(t, decodeSnapshot(t, states[1]).Providers, 2)

	// Only the first surfacing sets the hint.
	assert.True(t, decodeHints(t, states[0]).ShowProviders)
	assert.False(t, decodeHints(t, states[1]).ShowProviders)
}

func TestBuildStatesAddressesAccumulate(t *testing.T) {
	messages := []store.Message{
		msg("m1", "assistant", time.Minute),
		msg("m2", "assistant", 3*time.Minute),
	}
	toolCalls := map[string][]store.ToolCallRecord{
		store.ToolAddressSearch: {
			call("t1", store.ToolAddressSearch, `{"addresses": [{"label": "A"}]}`, 0),
			call("t2", store.ToolAddressSearch, `{"addresses": [{"label": "B"}]}`, 2*time.Minute),
		},
	}

	states, _ := BuildStates(messages, toolCalls)
	require.Len(t, states, 2)
	assert.Len(t, decodeSnapshot(t, states[0]).Addresses, 1)
	assert.Len(t, decodeSnapshot(t, states[1]).Addresses, 2)
	assert.True(t, decodeHints(t, states[0]).ShowAddresses)
	assert.False(t, decodeHints(t, states[1]).ShowAddresses)
}

func TestBuildStatesSkipsMalformedEntries(t *testing.T) {
	messages := []store.Message{
		msg("m1", "assistant", time.Minute),
	}
	toolCalls := map[string][]store.ToolCallRecord{
		store.ToolProviderSearch: {
			call("t1", store.ToolProviderSearch, `not json`, 0),
			call("t2", store.ToolProviderSearch, providerSearchOutput, 30*time.Second),
		},
	}

	states, warnings := BuildStates(messages, toolCalls)
	require.Len(t, warnings, 1)
	assert.Equal(t, "t1", warnings[0].ToolCallID)

	// The walk continued past the malformed entry.
	require.Len(t, states, 1)
	assert.Len(t, decodeSnapshot(t, states[0]).Providers, 1)
}

func TestBuildStatesExcludesSystemMessages(t *testing.T) {
	messages := []store.Message{
		msg("m0", "system", 0),
		msg("m1", "user", time.Minute),
	}

	states, _ := BuildStates(messages, nil)
	require.Len(t, states, 1)
	assert.Equal(t, "m1", states[0].MessageID)
	assert.Equal(t, 1, states[0].Seq)
}

func TestBuildStatesProviderDetailsCache(t *testing.T) {
	messages := []store.Message{
		msg("m1", "assistant", time.Minute),
	}
	toolCalls := map[string][]store.ToolCallRecord{
		store.ToolProviderInfo: {
			call("t1", store.ToolProviderInfo, `{"providers": [{"name": "East Bay Paratransit", "has_zone": true}]}`, 0),
		},
	}

	states, warnings := BuildStates(messages, toolCalls)
	require.Empty(t, warnings)
	snap := decodeSnapshot(t, states[0])
	require.Contains(t, snap.ProviderDetails, "East Bay Paratransit")

	// Detail lookups alone set no hints.
	assert.Equal(t, Hints{}, decodeHints(t, states[0]))
}
