package channels

import (
	"context"
	"fmt"

	"github.com/francisco-leal/ModBot/internal/logger"
	"github.com/francisco-leal/ModBot/rules"
)

// Manager is the entry point for channel configuration. Reads go through a
// cache; every mutation is validated, persisted, then invalidates the cache.
type Manager struct {
	store     Store
	cache     Cache
	validator *Validator
}

// NewManager creates a manager over store. A nil cache disables caching and a
// nil validator stores configurations unchecked.
func NewManager(store Store, cache Cache, validator *Validator) *Manager {
	return &Manager{
		store:     store,
		cache:     cache,
		validator: validator,
	}
}

// SetValidator replaces the validator. It exists for wiring where the
// action registry itself depends on the manager.
func (m *Manager) SetValidator(validator *Validator) {
	m.validator = validator
}

func idKey(id string) string   { return "id:" + id }
func urlKey(url string) string { return "url:" + url }

// Get returns the channel stored under id
func (m *Manager) Get(ctx context.Context, id string) (*rules.ModeratedChannel, error) {
	return m.cached(idKey(id), func() (*rules.ModeratedChannel, error) {
		return m.store.Get(ctx, id)
	})
}

// GetByURL returns the channel whose parent url is url
func (m *Manager) GetByURL(ctx context.Context, url string) (*rules.ModeratedChannel, error) {
	return m.cached(urlKey(url), func() (*rules.ModeratedChannel, error) {
		return m.store.GetByURL(ctx, url)
	})
}

func (m *Manager) cached(key string, load func() (*rules.ModeratedChannel, error)) (*rules.ModeratedChannel, error) {
	if m.cache != nil {
		if channel, ok := m.cache.Get(key); ok {
			return channel, nil
		}
	}

	channel, err := load()
	if err != nil {
		return nil, err
	}
	if m.cache != nil {
		m.cache.Set(key, channel)
	}
	return channel, nil
}

// List returns every channel, bypassing the cache
func (m *Manager) List(ctx context.Context) ([]*rules.ModeratedChannel, error) {
	return m.store.List(ctx)
}

// Create validates and stores a new channel
func (m *Manager) Create(ctx context.Context, channel *rules.ModeratedChannel) error {
	if err := m.validate(channel); err != nil {
		return err
	}
	if err := m.store.Create(ctx, channel); err != nil {
		return fmt.Errorf("failed to create channel %s: %w", channel.ID, err)
	}

	m.invalidate()
	logger.Info("Channel created", "channel", channel.ID, "owner", channel.OwnerID)
	return nil
}

// Update validates and replaces a channel's configuration
func (m *Manager) Update(ctx context.Context, channel *rules.ModeratedChannel) error {
	if err := m.validate(channel); err != nil {
		return err
	}
	if err := m.store.Update(ctx, channel); err != nil {
		return fmt.Errorf("failed to update channel %s: %w", channel.ID, err)
	}

	m.invalidate()
	logger.Info("Channel updated", "channel", channel.ID)
	return nil
}

// AddExcludedUser puts fid on the channel's bypass list
func (m *Manager) AddExcludedUser(ctx context.Context, channelID string, fid int64) error {
	if err := m.store.AddExcludedUser(ctx, channelID, fid); err != nil {
		return fmt.Errorf("failed to add %d to bypass list of %s: %w", fid, channelID, err)
	}

	m.invalidate()
	logger.Debug("User added to bypass list", "channel", channelID, "fid", fid)
	return nil
}

func (m *Manager) validate(channel *rules.ModeratedChannel) error {
	if m.validator == nil {
		return nil
	}
	return m.validator.Validate(channel)
}

// invalidate drops the whole cache since entries are keyed by both id and url
func (m *Manager) invalidate() {
	if m.cache != nil {
		m.cache.Invalidate()
	}
}
