// Package history keeps an audit trail of the statements answered per lab.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultLimit is the number of entries Recent returns when limit <= 0
const DefaultLimit = 20

// Entry is one answered question
type Entry struct {
	ID         string    `json:"id"`
	LabID      int64     `json:"lab_id"`
	UserID     string    `json:"user_id,omitempty"`
	Prompt     string    `json:"prompt"`
	Mode       string    `json:"mode"`
	Statement  string    `json:"statement"`
	Summary    string    `json:"summary,omitempty"`
	RowCount   int       `json:"row_count"`
	Cached     bool      `json:"cached"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store records and lists history entries
type Store interface {
	Record(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, labID int64, limit int) ([]Entry, error)
}

func prepare(entry *Entry, now time.Time) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
}

// MemoryStore keeps entries in process, newest last
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
	now     func() time.Time
}

// NewMemoryStore keeps at most max entries; max <= 0 means 1000
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 1000
	}
	return &MemoryStore{max: max, now: time.Now}
}

// Record appends an entry, evicting the oldest when full
func (s *MemoryStore) Record(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepare(&entry, s.now())
	s.entries = append(s.entries, entry)
	if len(s.entries) > s.max {
		s.entries = s.entries[len(s.entries)-s.max:]
	}
	return nil
}

// Recent returns the lab's newest entries first
func (s *MemoryStore) Recent(ctx context.Context, labID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].LabID == labID {
			out = append(out, s.entries[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// PostgresStore persists entries in the query_history table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open database
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Record inserts one entry
func (s *PostgresStore) Record(ctx context.Context, entry Entry) error {
	prepare(&entry, time.Now().UTC())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_history (id, lab_id, user_id, prompt, mode, statement, summary, row_count, cached, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.LabID, entry.UserID, entry.Prompt, entry.Mode, entry.Statement,
		entry.Summary, entry.RowCount, entry.Cached, entry.DurationMs, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}
	return nil
}

// Recent returns the lab's newest entries first
func (s *PostgresStore) Recent(ctx context.Context, labID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lab_id, user_id, prompt, mode, statement, summary, row_count, cached, duration_ms, created_at
		FROM query_history
		WHERE lab_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, labID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.LabID, &e.UserID, &e.Prompt, &e.Mode, &e.Statement,
			&e.Summary, &e.RowCount, &e.Cached, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return entries, nil
}
