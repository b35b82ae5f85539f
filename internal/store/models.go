package store

import (
	"encoding/json"
	"time"
)

// Tool names form a closed set; every tool-call log row belongs to exactly one.
const (
	ToolProviderSearch = "provider_search"
	ToolAddressSearch  = "address_search"
	ToolProviderInfo   = "provider_info"
	ToolWebSearch      = "web_search"
)

// ToolNames lists the registered tools in a fixed order.
var ToolNames = []string{ToolProviderSearch, ToolAddressSearch, ToolProviderInfo, ToolWebSearch}

type User struct {
	ID             int64     `json:"id"`
	ExternalUserID string    `json:"external_user_id"`
	PasswordHash   string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt      time.Time `json:"created_at"`
}

type Conversation struct {
	ID        string    `json:"id"` // Using UUID for external ID
	UserID    int64     `json:"user_id"`
	Title     *string   `json:"title"` // Nullable
	CreatedAt time.Time `json:"created_at"`
}

// Message is one conversational turn entry. Within a conversation, creation
// timestamps are non-decreasing in insertion order and are the sole
// sequencing authority for both the orchestrator and the replay builder.
type Message struct {
	ID             string    `json:"id"` // Using UUID for external ID
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // "user", "assistant" or "system"
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// ToolCallRecord logs one executed tool invocation. Calls that fail
// validation before execution are never recorded.
type ToolCallRecord struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Tool           string          `json:"tool"`
	Input          json.RawMessage `json:"input"`
	Output         json.RawMessage `json:"output"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Provider is a paratransit provider record. ServiceZone holds a GeoJSON
// Polygon/MultiPolygon (nil when the provider has no mapped zone) and
// ServiceHours a JSON list of service-hour windows; both are decoded by the
// matching engine, not here. Provider rows are read-only for this service.
type Provider struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	ProviderType    string          `json:"provider_type"`
	EligibilityType string          `json:"eligibility_type"`
	ScheduleType    string          `json:"schedule_type"`
	ServiceZone     json.RawMessage `json:"service_zone,omitempty"`
	ServiceHours    json.RawMessage `json:"service_hours"`
}

// ReplayState is one derived playback snapshot. Rows are wholly regenerable
// from messages plus tool-call logs and are replaced, never appended to.
type ReplayState struct {
	ConversationID string          `json:"conversation_id"`
	Seq            int             `json:"sequence_number"` // 1-based, contiguous
	MessageID      string          `json:"message_id"`
	Role           string          `json:"role"`
	Snapshot       json.RawMessage `json:"state_snapshot"`
	Hints          json.RawMessage `json:"ui_hints"`
}
