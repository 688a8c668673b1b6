// Package ledger provides an append-only history of fade sessions.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightfade/internal/eventbus"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64
	SessionID string
	EventType eventbus.EventType
	Timestamp time.Time
	Payload   map[string]any
}

// Ledger provides append-only event logging
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append adds a new event to the ledger
func (l *Ledger) Append(sessionID string, eventType eventbus.EventType, payload map[string]any) error {
	var payloadJSON []byte
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	now := time.Now().UTC().UnixMilli()

	_, err = l.db.Exec(
		`INSERT INTO session_ledger (session_id, event_type, timestamp, payload) VALUES (?, ?, ?, ?)`,
		sessionID, string(eventType), now, string(payloadJSON),
	)
	return err
}

// Record is an eventbus.Handler that appends session events.
// Successful steps are not recorded; only failures are worth keeping.
func (l *Ledger) Record(event eventbus.Event) {
	if event.Type == eventbus.EventStep {
		return
	}

	sessionID, _ := event.Data["session_id"].(string)

	payload := make(map[string]any, len(event.Data))
	for k, v := range event.Data {
		if k == "session_id" {
			continue
		}
		payload[k] = v
	}

	if err := l.Append(sessionID, event.Type, payload); err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to append ledger entry")
	}
}

// GetBySession returns all entries for a session in insertion order
func (l *Ledger) GetBySession(sessionID string) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, session_id, event_type, timestamp, payload
		FROM session_ledger
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// GetByType returns the most recent entries of a type
func (l *Ledger) GetByType(eventType eventbus.EventType, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, session_id, event_type, timestamp, payload
		FROM session_ledger
		WHERE event_type = ?
		ORDER BY id DESC
		LIMIT ?
	`, string(eventType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().UnixMilli()
	result, err := l.db.Exec(`DELETE FROM session_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr sql.NullString
		var timestamp int64

		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.EventType, &timestamp, &payloadStr); err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(timestamp).UTC()

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
