package moderation

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/francisco-leal/ModBot/farcaster"
	"github.com/francisco-leal/ModBot/rules"
)

// SimulationIDPrefix marks log entries that were never persisted
const SimulationIDPrefix = "sim-"

// SystemActor is the actor of every automated decision
const SystemActor = "system"

// LogEntry records one action taken (or that would be taken) and why.
// Entries are immutable once written.
type LogEntry struct {
	ID                    string           `json:"id"`
	ChannelID             string           `json:"channelId"`
	Action                rules.ActionType `json:"action"`
	Actor                 string           `json:"actor"`
	Reason                string           `json:"reason"`
	AffectedUserFID       int64            `json:"affectedUserFid"`
	AffectedUsername      string           `json:"affectedUsername"`
	AffectedUserAvatarURL string           `json:"affectedUserAvatarUrl,omitempty"`
	CastHash              string           `json:"castHash"`
	CastText              string           `json:"castText"`
	// Rule is the JSON snapshot of the deciding rule, "{}" when none
	Rule      string    `json:"rule"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsSimulated reports whether the entry came from a simulation
func (e *LogEntry) IsSimulated() bool {
	return strings.HasPrefix(e.ID, SimulationIDPrefix)
}

// LogStore persists live log entries
type LogStore interface {
	Create(ctx context.Context, entry *LogEntry) error
	// ListByChannel returns the newest entries first
	ListByChannel(ctx context.Context, channelID string, limit int) ([]*LogEntry, error)
	// ListByCasts returns the entries recorded for any of the cast hashes
	ListByCasts(ctx context.Context, channelID string, castHashes []string) ([]*LogEntry, error)
}

// LogWriter builds log entries and persists them in live mode. Both modes
// build the entry the same way; only the id scheme and persistence differ.
type LogWriter struct {
	store LogStore
	now   func() time.Time
}

// NewLogWriter creates a writer persisting live entries to store
func NewLogWriter(store LogStore) *LogWriter {
	return &LogWriter{store: store, now: time.Now}
}

// Write records that action was taken against user for reason. rule is the
// deciding rule and may be nil.
func (w *LogWriter) Write(ctx context.Context, mode ExecutionMode, channelID string, action rules.ActionType, reason string, user *farcaster.User, cast *farcaster.Cast, rule rules.Rule) (*LogEntry, error) {
	snapshot, err := rules.EncodeRule(rule)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot rule: %w", err)
	}

	entry := &LogEntry{
		ChannelID:             channelID,
		Action:                action,
		Actor:                 SystemActor,
		Reason:                reason,
		AffectedUserFID:       user.FID,
		AffectedUsername:      user.Handle(),
		AffectedUserAvatarURL: user.PfpURL,
		Rule:                  string(snapshot),
		CreatedAt:             w.now().UTC(),
	}
	if cast != nil {
		entry.CastHash = cast.Hash
		entry.CastText = cast.Text
	}

	if mode == ModeSimulation {
		entry.ID = SimulationIDPrefix + uuid.NewString()
		return entry, nil
	}

	entry.ID = uuid.NewString()
	if w.store != nil {
		if err := w.store.Create(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to write moderation log: %w", err)
		}
	}
	return entry, nil
}

// InMemoryLogStore implements LogStore using an in-memory slice
type InMemoryLogStore struct {
	entries []*LogEntry
	mu      sync.RWMutex
}

// NewInMemoryLogStore creates a new in-memory log store
func NewInMemoryLogStore() *InMemoryLogStore {
	return &InMemoryLogStore{}
}

func (s *InMemoryLogStore) Create(ctx context.Context, entry *LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *InMemoryLogStore) ListByChannel(ctx context.Context, channelID string, limit int) ([]*LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*LogEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].ChannelID != channelID {
			continue
		}
		cp := *s.entries[i]
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryLogStore) ListByCasts(ctx context.Context, channelID string, castHashes []string) ([]*LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(castHashes))
	for _, h := range castHashes {
		wanted[h] = struct{}{}
	}

	var out []*LogEntry
	for _, e := range s.entries {
		if _, ok := wanted[e.CastHash]; ok && e.ChannelID == channelID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PostgresLogStore implements LogStore backed by PostgreSQL
type PostgresLogStore struct {
	db *sql.DB
}

// NewPostgresLogStore creates a new PostgreSQL-backed log store
func NewPostgresLogStore(db *sql.DB) *PostgresLogStore {
	return &PostgresLogStore{db: db}
}

const logColumns = `id, channel_id, action, actor, reason, affected_user_fid, affected_username,
	affected_user_avatar_url, cast_hash, cast_text, rule, created_at`

func (s *PostgresLogStore) Create(ctx context.Context, e *LogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO moderation_logs (`+logColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, e.ChannelID, e.Action, e.Actor, e.Reason, e.AffectedUserFID, e.AffectedUsername,
		e.AffectedUserAvatarURL, e.CastHash, e.CastText, e.Rule, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert moderation log: %w", err)
	}
	return nil
}

func (s *PostgresLogStore) ListByChannel(ctx context.Context, channelID string, limit int) ([]*LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+logColumns+`
		FROM moderation_logs
		WHERE channel_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list moderation logs: %w", err)
	}
	return scanLogs(rows)
}

func (s *PostgresLogStore) ListByCasts(ctx context.Context, channelID string, castHashes []string) ([]*LogEntry, error) {
	if len(castHashes) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+logColumns+`
		FROM moderation_logs
		WHERE channel_id = $1 AND cast_hash = ANY($2)
		ORDER BY created_at ASC
	`, channelID, pq.Array(castHashes))
	if err != nil {
		return nil, fmt.Errorf("failed to list moderation logs: %w", err)
	}
	return scanLogs(rows)
}

func scanLogs(rows *sql.Rows) ([]*LogEntry, error) {
	defer rows.Close()

	var out []*LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.ChannelID, &e.Action, &e.Actor, &e.Reason, &e.AffectedUserFID,
			&e.AffectedUsername, &e.AffectedUserAvatarURL, &e.CastHash, &e.CastText, &e.Rule, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan moderation log: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating moderation logs: %w", err)
	}
	return out, nil
}
