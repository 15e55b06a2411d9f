package actions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrCooldownNotFound is returned when deactivating a restriction that does
// not exist
var ErrCooldownNotFound = errors.New("cooldown not found")

// CooldownKind distinguishes the restrictions kept in the cooldown table
type CooldownKind string

const (
	KindBan      CooldownKind = "ban"
	KindCooldown CooldownKind = "cooldown"
	KindMute     CooldownKind = "mute"
)

// Cooldown restricts a user in a channel. A nil ExpiresAt never expires.
type Cooldown struct {
	AffectedUserID int64        `json:"affectedUserId"`
	ChannelID      string       `json:"channelId"`
	Kind           CooldownKind `json:"kind"`
	Active         bool         `json:"active"`
	ExpiresAt      *time.Time   `json:"expiresAt"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// InEffect reports whether the restriction applies at now
func (c *Cooldown) InEffect(now time.Time) bool {
	return c.Active && (c.ExpiresAt == nil || c.ExpiresAt.After(now))
}

// CooldownStore persists bans, mutes and cooldowns. A user holds at most one
// restriction per channel; a new one replaces the old.
type CooldownStore interface {
	Upsert(ctx context.Context, c *Cooldown) error
	// ListActive returns restrictions in effect at now, oldest first
	ListActive(ctx context.Context, channelID string, now time.Time) ([]*Cooldown, error)
	Deactivate(ctx context.Context, channelID string, fid int64) error
}

type cooldownKey struct {
	channelID string
	fid       int64
}

// InMemoryCooldownStore implements CooldownStore using an in-memory map
type InMemoryCooldownStore struct {
	cooldowns map[cooldownKey]*Cooldown
	mu        sync.RWMutex
}

// NewInMemoryCooldownStore creates a new in-memory cooldown store
func NewInMemoryCooldownStore() *InMemoryCooldownStore {
	return &InMemoryCooldownStore{
		cooldowns: make(map[cooldownKey]*Cooldown),
	}
}

func (s *InMemoryCooldownStore) Upsert(ctx context.Context, c *Cooldown) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cooldownKey{channelID: c.ChannelID, fid: c.AffectedUserID}
	now := time.Now().UTC()
	cp := *c
	cp.UpdatedAt = now
	if existing, ok := s.cooldowns[key]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	s.cooldowns[key] = &cp
	return nil
}

func (s *InMemoryCooldownStore) ListActive(ctx context.Context, channelID string, now time.Time) ([]*Cooldown, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Cooldown
	for key, c := range s.cooldowns {
		if key.channelID == channelID && c.InEffect(now) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].AffectedUserID < out[j].AffectedUserID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryCooldownStore) Deactivate(ctx context.Context, channelID string, fid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cooldowns[cooldownKey{channelID: channelID, fid: fid}]
	if !ok {
		return fmt.Errorf("%w: %d in %s", ErrCooldownNotFound, fid, channelID)
	}
	c.Active = false
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// PostgresCooldownStore implements CooldownStore backed by PostgreSQL
type PostgresCooldownStore struct {
	db *sql.DB
}

// NewPostgresCooldownStore creates a new PostgreSQL-backed cooldown store
func NewPostgresCooldownStore(db *sql.DB) *PostgresCooldownStore {
	return &PostgresCooldownStore{db: db}
}

func (s *PostgresCooldownStore) Upsert(ctx context.Context, c *Cooldown) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cooldowns (affected_user_id, channel_id, kind, active, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (affected_user_id, channel_id)
		DO UPDATE SET kind = EXCLUDED.kind, active = EXCLUDED.active, expires_at = EXCLUDED.expires_at, updated_at = NOW()
	`, c.AffectedUserID, c.ChannelID, c.Kind, c.Active, c.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert cooldown: %w", err)
	}
	return nil
}

func (s *PostgresCooldownStore) ListActive(ctx context.Context, channelID string, now time.Time) ([]*Cooldown, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT affected_user_id, channel_id, kind, active, expires_at, created_at, updated_at
		FROM cooldowns
		WHERE channel_id = $1 AND active = true AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at ASC, affected_user_id ASC
	`, channelID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list cooldowns: %w", err)
	}
	defer rows.Close()

	var out []*Cooldown
	for rows.Next() {
		var c Cooldown
		var expires sql.NullTime
		if err := rows.Scan(&c.AffectedUserID, &c.ChannelID, &c.Kind, &c.Active, &expires,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cooldown: %w", err)
		}
		if expires.Valid {
			c.ExpiresAt = &expires.Time
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cooldowns: %w", err)
	}
	return out, nil
}

func (s *PostgresCooldownStore) Deactivate(ctx context.Context, channelID string, fid int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cooldowns
		SET active = false, updated_at = NOW()
		WHERE channel_id = $1 AND affected_user_id = $2
	`, channelID, fid)
	if err != nil {
		return fmt.Errorf("failed to deactivate cooldown: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %d in %s", ErrCooldownNotFound, fid, channelID)
	}
	return nil
}
