package channels

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Plan limits how much moderation an owner's channels may consume
type Plan struct {
	Name        string
	MaxChannels int
	// MaxCasts is the number of casts processed per calendar month
	MaxCasts int64
}

// Plans are the subscription plans an owner may hold
var Plans = map[string]Plan{
	"basic": {Name: "basic", MaxChannels: 3, MaxCasts: 3000},
	"prime": {Name: "prime", MaxChannels: 5, MaxCasts: 25000},
	"ultra": {Name: "ultra", MaxChannels: 50, MaxCasts: 250000},
}

// MonthYear formats t as the usage period key, e.g. "2024-06"
func MonthYear(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// IsOverUsage reports whether totalCasts has reached the plan's monthly
// allowance grown by buffer (0.1 allows 10% over). Owners without a known
// plan are never over usage.
func IsOverUsage(planName string, totalCasts int64, buffer float64) bool {
	plan, ok := Plans[planName]
	if !ok {
		return false
	}
	return float64(totalCasts) >= float64(plan.MaxCasts)*(1+buffer)
}

// UsageStore counts processed casts per channel and month
type UsageStore interface {
	// Increment adds n processed casts to the channel's month
	Increment(ctx context.Context, channelID string, ownerID int64, monthYear string, n int64) error

	// OwnerTotal sums every channel of the owner for the month
	OwnerTotal(ctx context.Context, ownerID int64, monthYear string) (int64, error)
}

type usageKey struct {
	channelID string
	monthYear string
}

type usageRow struct {
	ownerID int64
	casts   int64
}

// InMemoryUsageStore implements UsageStore using an in-memory map
type InMemoryUsageStore struct {
	usage map[usageKey]*usageRow
	mu    sync.Mutex
}

// NewInMemoryUsageStore creates a new in-memory usage store
func NewInMemoryUsageStore() *InMemoryUsageStore {
	return &InMemoryUsageStore{
		usage: make(map[usageKey]*usageRow),
	}
}

func (s *InMemoryUsageStore) Increment(ctx context.Context, channelID string, ownerID int64, monthYear string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey{channelID: channelID, monthYear: monthYear}
	row, ok := s.usage[key]
	if !ok {
		row = &usageRow{ownerID: ownerID}
		s.usage[key] = row
	}
	row.casts += n
	return nil
}

func (s *InMemoryUsageStore) OwnerTotal(ctx context.Context, ownerID int64, monthYear string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for key, row := range s.usage {
		if key.monthYear == monthYear && row.ownerID == ownerID {
			total += row.casts
		}
	}
	return total, nil
}

// PostgresUsageStore implements UsageStore backed by PostgreSQL
type PostgresUsageStore struct {
	db *sql.DB
}

// NewPostgresUsageStore creates a new PostgreSQL-backed usage store
func NewPostgresUsageStore(db *sql.DB) *PostgresUsageStore {
	return &PostgresUsageStore{db: db}
}

func (s *PostgresUsageStore) Increment(ctx context.Context, channelID string, ownerID int64, monthYear string, n int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage (channel_id, user_id, month_year, casts_processed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (channel_id, month_year)
		DO UPDATE SET casts_processed = usage.casts_processed + EXCLUDED.casts_processed
	`, channelID, ownerID, monthYear, n)
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return nil
}

func (s *PostgresUsageStore) OwnerTotal(ctx context.Context, ownerID int64, monthYear string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(casts_processed), 0)
		FROM usage
		WHERE user_id = $1 AND month_year = $2
	`, ownerID, monthYear).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage: %w", err)
	}
	return total, nil
}
