package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrNotFound is returned when a specific record is not found.
var ErrNotFound = errors.New("record not found")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        external_user_id TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        title TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        conversation_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
        content TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );

    CREATE TABLE IF NOT EXISTS providers (
        id TEXT PRIMARY KEY, -- UUID
        name TEXT NOT NULL,
        provider_type TEXT NOT NULL DEFAULT '',
        eligibility_type TEXT NOT NULL DEFAULT '',
        schedule_type TEXT NOT NULL DEFAULT '',
        service_zone TEXT, -- GeoJSON Polygon/MultiPolygon, nullable
        service_hours TEXT NOT NULL DEFAULT '[]' -- JSON list of windows
    );

    CREATE TABLE IF NOT EXISTS replay_states (
        conversation_id TEXT NOT NULL,
        seq INTEGER NOT NULL,
        message_id TEXT NOT NULL,
        role TEXT NOT NULL,
        snapshot TEXT NOT NULL,
        hints TEXT NOT NULL,
        PRIMARY KEY (conversation_id, seq),
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );
    `
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// One log table per tool type, all the same shape.
	for _, tool := range ToolNames {
		stmt := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s_calls (
            id TEXT PRIMARY KEY, -- UUID
            conversation_id TEXT NOT NULL,
            input_json TEXT NOT NULL,
            output_json TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY (conversation_id) REFERENCES conversations (id)
        );`, tool)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create %s_calls table: %w", tool, err)
		}
	}
	return nil
}

// User methods

func (s *SQLiteStore) GetUserByExternalID(ctx context.Context, externalUserID string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, "SELECT id, external_user_id, password_hash, created_at FROM users WHERE external_user_id = ?", externalUserID).
		Scan(&user.ID, &user.ExternalUserID, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, externalUserID, passwordHash string) (*User, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO users (external_user_id, password_hash) VALUES (?, ?)", externalUserID, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.getUserByID(ctx, id)
}

func (s *SQLiteStore) getUserByID(ctx context.Context, id int64) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, "SELECT id, external_user_id, password_hash, created_at FROM users WHERE id = ?", id).
		Scan(&user.ID, &user.ExternalUserID, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// Conversation methods

func (s *SQLiteStore) CreateConversation(ctx context.Context, userID int64, title *string) (*Conversation, error) {
	convID := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, "INSERT INTO conversations (id, user_id, title, created_at) VALUES (?, ?, ?, ?)",
		convID, userID, title, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return &Conversation{ID: convID, UserID: userID, Title: title, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetConversationByID(ctx context.Context, convID string, userID int64) (*Conversation, error) {
	var conv Conversation
	var title sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT id, user_id, title, created_at FROM conversations WHERE id = ? AND user_id = ?", convID, userID).
		Scan(&conv.ID, &conv.UserID, &title, &conv.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if title.Valid {
		conv.Title = &title.String
	}
	return &conv, nil
}

func (s *SQLiteStore) GetConversationsByUserID(ctx context.Context, userID int64) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, user_id, title, created_at FROM conversations WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var conv Conversation
		var title sql.NullString
		if err := rows.Scan(&conv.ID, &conv.UserID, &title, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		if title.Valid {
			conv.Title = &title.String
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

func (s *SQLiteStore) UpdateConversationTitle(ctx context.Context, convID string, userID int64, title string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE conversations SET title = ? WHERE id = ? AND user_id = ?", title, convID, userID)
	if err != nil {
		return fmt.Errorf("failed to update conversation title: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversation removes the conversation and cascades to its messages,
// tool-call logs and replay states.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, convID string, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ? AND user_id = ?", convID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", convID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM replay_states WHERE conversation_id = ?", convID); err != nil {
		return fmt.Errorf("failed to delete replay states: %w", err)
	}
	for _, tool := range ToolNames {
		stmt := fmt.Sprintf("DELETE FROM %s_calls WHERE conversation_id = ?", tool)
		if _, err := tx.ExecContext(ctx, stmt, convID); err != nil {
			return fmt.Errorf("failed to delete %s calls: %w", tool, err)
		}
	}
	return tx.Commit()
}

// Message methods

func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) error {
	msg.ID = uuid.NewString() // Ensure ID is set
	msg.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, "INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// GetMessagesByConversationID returns the full transcript in creation order.
func (s *SQLiteStore) GetMessagesByConversationID(ctx context.Context, convID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC", convID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Tool-call log methods

func toolTable(tool string) (string, error) {
	switch tool {
	case ToolProviderSearch, ToolAddressSearch, ToolProviderInfo, ToolWebSearch:
		return tool + "_calls", nil
	default:
		return "", fmt.Errorf("unknown tool %q", tool)
	}
}

func (s *SQLiteStore) SaveToolCall(ctx context.Context, rec *ToolCallRecord) error {
	table, err := toolTable(rec.Tool)
	if err != nil {
		return err
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()

	stmt := fmt.Sprintf("INSERT INTO %s (id, conversation_id, input_json, output_json, created_at) VALUES (?, ?, ?, ?, ?)", table)
	_, err = s.db.ExecContext(ctx, stmt, rec.ID, rec.ConversationID, string(rec.Input), string(rec.Output), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert %s call: %w", rec.Tool, err)
	}
	return nil
}

// GetToolCallsByConversation reads every tool-call log for the conversation,
// grouped by tool type, each group in creation order.
func (s *SQLiteStore) GetToolCallsByConversation(ctx context.Context, convID string) (map[string][]ToolCallRecord, error) {
	result := make(map[string][]ToolCallRecord, len(ToolNames))
	for _, tool := range ToolNames {
		table, err := toolTable(tool)
		if err != nil {
			return nil, err
		}
		stmt := fmt.Sprintf("SELECT id, conversation_id, input_json, output_json, created_at FROM %s WHERE conversation_id = ? ORDER BY created_at ASC, id ASC", table)
		rows, err := s.db.QueryContext(ctx, stmt, convID)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s calls: %w", tool, err)
		}

		var records []ToolCallRecord
		for rows.Next() {
			rec := ToolCallRecord{Tool: tool}
			var input, output string
			if err := rows.Scan(&rec.ID, &rec.ConversationID, &input, &output, &rec.CreatedAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan %s call row: %w", tool, err)
			}
			rec.Input = json.RawMessage(input)
			rec.Output = json.RawMessage(output)
			records = append(records, rec)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to read %s call rows: %w", tool, err)
		}
		rows.Close()
		result[tool] = records
	}
	return result, nil
}

// CountToolCallsByConversation returns the total number of tool-call rows
// across every log table for the conversation.
func (s *SQLiteStore) CountToolCallsByConversation(ctx context.Context, convID string) (int, error) {
	total := 0
	for _, tool := range ToolNames {
		table, _ := toolTable(tool)
		stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE conversation_id = ?", table)
		var n int
		if err := s.db.QueryRowContext(ctx, stmt, convID).Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to count %s calls: %w", tool, err)
		}
		total += n
	}
	return total, nil
}

// Provider methods

func (s *SQLiteStore) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, provider_type, eligibility_type, schedule_type, service_zone, service_hours FROM providers ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	var providers []Provider
	for rows.Next() {
		var p Provider
		var zone sql.NullString
		var hours string
		if err := rows.Scan(&p.ID, &p.Name, &p.ProviderType, &p.EligibilityType, &p.ScheduleType, &zone, &hours); err != nil {
			return nil, fmt.Errorf("failed to scan provider row: %w", err)
		}
		if zone.Valid && zone.String != "" {
			p.ServiceZone = json.RawMessage(zone.String)
		}
		p.ServiceHours = json.RawMessage(hours)
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

func (s *SQLiteStore) createProvider(ctx context.Context, p *Provider) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	var zone interface{}
	if len(p.ServiceZone) > 0 {
		zone = string(p.ServiceZone)
	}
	hours := "[]"
	if len(p.ServiceHours) > 0 {
		hours = string(p.ServiceHours)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO providers (id, name, provider_type, eligibility_type, schedule_type, service_zone, service_hours) VALUES (?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.Name, p.ProviderType, p.EligibilityType, p.ScheduleType, zone, hours)
	if err != nil {
		return fmt.Errorf("failed to insert provider: %w", err)
	}
	return nil
}

// IngestProvidersFromFile replaces the provider table with the records in a
// JSON fixture file (an array of provider objects).
func (s *SQLiteStore) IngestProvidersFromFile(ctx context.Context, filePath string) (int, error) {
	contentBytes, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read provider file %s: %w", filePath, err)
	}

	var providers []Provider
	if err := json.Unmarshal(contentBytes, &providers); err != nil {
		return 0, fmt.Errorf("failed to decode provider file %s: %w", filePath, err)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM providers"); err != nil {
		return 0, fmt.Errorf("failed to clear providers: %w", err)
	}

	count := 0
	for i := range providers {
		if providers[i].Name == "" {
			return count, fmt.Errorf("provider %d has no name", i)
		}
		if err := s.createProvider(ctx, &providers[i]); err != nil {
			return count, fmt.Errorf("provider %d (%s): %w", i, providers[i].Name, err)
		}
		count++
	}
	return count, nil
}

// Replay-state methods

// ReplaceReplayStates atomically swaps the stored replay states for a
// conversation with a freshly computed set.
func (s *SQLiteStore) ReplaceReplayStates(ctx context.Context, convID string, states []ReplayState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM replay_states WHERE conversation_id = ?", convID); err != nil {
		return fmt.Errorf("failed to clear replay states: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO replay_states (conversation_id, seq, message_id, role, snapshot, hints) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare replay state insert: %w", err)
	}
	defer stmt.Close()

	for _, st := range states {
		if _, err := stmt.ExecContext(ctx, convID, st.Seq, st.MessageID, st.Role, string(st.Snapshot), string(st.Hints)); err != nil {
			return fmt.Errorf("failed to insert replay state %d: %w", st.Seq, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetReplayStates(ctx context.Context, convID string) ([]ReplayState, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT conversation_id, seq, message_id, role, snapshot, hints FROM replay_states WHERE conversation_id = ? ORDER BY seq ASC", convID)
	if err != nil {
		return nil, fmt.Errorf("failed to query replay states: %w", err)
	}
	defer rows.Close()

	var states []ReplayState
	for rows.Next() {
		var st ReplayState
		var snapshot, hints string
		if err := rows.Scan(&st.ConversationID, &st.Seq, &st.MessageID, &st.Role, &snapshot, &hints); err != nil {
			return nil, fmt.Errorf("failed to scan replay state row: %w", err)
		}
		st.Snapshot = json.RawMessage(snapshot)
		st.Hints = json.RawMessage(hints)
		states = append(states, st)
	}
	return states, rows.Err()
}
