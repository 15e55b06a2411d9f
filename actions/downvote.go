package actions

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Downvote is one voter's vote against a cast
type Downvote struct {
	CastHash       string    `json:"castHash"`
	ChannelID      string    `json:"channelId"`
	FID            int64     `json:"fid"`
	VoterFID       int64     `json:"voterFid"`
	VoterUsername  string    `json:"voterUsername"`
	VoterAvatarURL string    `json:"voterAvatarUrl"`
	CreatedAt      time.Time `json:"createdAt"`
}

// DownvoteStore records downvotes. A voter counts once per cast.
type DownvoteStore interface {
	Add(ctx context.Context, d *Downvote) error
	// Count returns the number of distinct voters against a cast
	Count(ctx context.Context, castHash string) (int, error)
}

type downvoteKey struct {
	castHash string
	voterFID int64
}

// InMemoryDownvoteStore implements DownvoteStore using an in-memory map
type InMemoryDownvoteStore struct {
	votes map[downvoteKey]Downvote
	mu    sync.RWMutex
}

// NewInMemoryDownvoteStore creates a new in-memory downvote store
func NewInMemoryDownvoteStore() *InMemoryDownvoteStore {
	return &InMemoryDownvoteStore{votes: make(map[downvoteKey]Downvote)}
}

func (s *InMemoryDownvoteStore) Add(ctx context.Context, d *Downvote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := downvoteKey{castHash: d.CastHash, voterFID: d.VoterFID}
	if _, exists := s.votes[key]; exists {
		return nil
	}
	cp := *d
	cp.CreatedAt = time.Now().UTC()
	s.votes[key] = cp
	return nil
}

func (s *InMemoryDownvoteStore) Count(ctx context.Context, castHash string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for key := range s.votes {
		if key.castHash == castHash {
			n++
		}
	}
	return n, nil
}

// PostgresDownvoteStore implements DownvoteStore backed by PostgreSQL
type PostgresDownvoteStore struct {
	db *sql.DB
}

// NewPostgresDownvoteStore creates a new PostgreSQL-backed downvote store
func NewPostgresDownvoteStore(db *sql.DB) *PostgresDownvoteStore {
	return &PostgresDownvoteStore{db: db}
}

func (s *PostgresDownvoteStore) Add(ctx context.Context, d *Downvote) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downvotes (cast_hash, voter_fid, channel_id, fid, voter_username, voter_avatar_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cast_hash, voter_fid) DO NOTHING
	`, d.CastHash, d.VoterFID, d.ChannelID, d.FID, d.VoterUsername, d.VoterAvatarURL)
	if err != nil {
		return fmt.Errorf("failed to insert downvote: %w", err)
	}
	return nil
}

func (s *PostgresDownvoteStore) Count(ctx context.Context, castHash string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM downvotes WHERE cast_hash = $1`, castHash).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count downvotes: %w", err)
	}
	return n, nil
}
