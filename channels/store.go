// Package channels owns the persisted moderation configuration of each
// channel: its stores, the cached lookup used on the hot path, validation of
// edited configurations and the monthly usage gate.
package channels

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/francisco-leal/ModBot/rules"
)

var (
	// ErrNotFound is returned when a channel does not exist
	ErrNotFound = errors.New("channel not found")
	// ErrExists is returned when creating a channel whose id is taken
	ErrExists = errors.New("channel already exists")
)

// Store manages channel persistence and retrieval
type Store interface {
	// Create adds a new channel
	Create(ctx context.Context, channel *rules.ModeratedChannel) error

	// Get a channel by id
	Get(ctx context.Context, id string) (*rules.ModeratedChannel, error)

	// GetByURL finds the channel whose parent url is url
	GetByURL(ctx context.Context, url string) (*rules.ModeratedChannel, error)

	// List all channels ordered by id
	List(ctx context.Context) ([]*rules.ModeratedChannel, error)

	// Update replaces an existing channel's configuration
	Update(ctx context.Context, channel *rules.ModeratedChannel) error

	// AddExcludedUser puts fid on the channel's bypass list
	AddExcludedUser(ctx context.Context, channelID string, fid int64) error
}

// InMemoryStore implements Store using an in-memory map
type InMemoryStore struct {
	channels map[string]*rules.ModeratedChannel
	mu       sync.RWMutex
}

// NewInMemoryStore creates a new in-memory channel store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		channels: make(map[string]*rules.ModeratedChannel),
	}
}

// clone copies the mutable parts of a channel. Rule sets are replaced
// wholesale on update and never modified in place.
func clone(c *rules.ModeratedChannel) *rules.ModeratedChannel {
	cp := *c
	cp.ExcludedUserIDs = rules.NewFIDSet(c.ExcludedUserIDs.Sorted()...)
	return &cp
}

// Create adds a channel and sets its timestamps
func (s *InMemoryStore) Create(ctx context.Context, channel *rules.ModeratedChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.channels[channel.ID]; exists {
		return fmt.Errorf("%w: %s", ErrExists, channel.ID)
	}

	now := time.Now().UTC()
	channel.CreatedAt = now
	channel.UpdatedAt = now
	s.channels[channel.ID] = clone(channel)
	return nil
}

// Get returns a copy of the channel stored under id
func (s *InMemoryStore) Get(ctx context.Context, id string) (*rules.ModeratedChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channel, exists := s.channels[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(channel), nil
}

// GetByURL scans for the channel with the given parent url
func (s *InMemoryStore) GetByURL(ctx context.Context, url string) (*rules.ModeratedChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, channel := range s.channels {
		if channel.URL != "" && channel.URL == url {
			return clone(channel), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
}

// List returns every channel ordered by id
func (s *InMemoryStore) List(ctx context.Context) ([]*rules.ModeratedChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*rules.ModeratedChannel, 0, len(s.channels))
	for _, channel := range s.channels {
		out = append(out, clone(channel))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Update replaces a channel, preserving its original CreatedAt
func (s *InMemoryStore) Update(ctx context.Context, channel *rules.ModeratedChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.channels[channel.ID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, channel.ID)
	}

	channel.CreatedAt = existing.CreatedAt
	channel.UpdatedAt = time.Now().UTC()
	s.channels[channel.ID] = clone(channel)
	return nil
}

// AddExcludedUser adds fid to the bypass list. Adding a present fid is a no-op.
func (s *InMemoryStore) AddExcludedUser(ctx context.Context, channelID string, fid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	channel, exists := s.channels[channelID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, channelID)
	}
	if channel.ExcludedUserIDs == nil {
		channel.ExcludedUserIDs = rules.NewFIDSet()
	}
	if channel.ExcludedUserIDs.Add(fid) {
		channel.UpdatedAt = time.Now().UTC()
	}
	return nil
}
