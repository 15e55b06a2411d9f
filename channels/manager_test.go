package channels

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/francisco-leal/ModBot/rules"
)

type countingStore struct {
	*InMemoryStore
	gets int
}

func (s *countingStore) Get(ctx context.Context, id string) (*rules.ModeratedChannel, error) {
	s.gets++
	return s.InMemoryStore.Get(ctx, id)
}

// TestManagerCachesReads verifies repeated reads are served from the cache
func TestManagerCachesReads(t *testing.T) {
	store := &countingStore{InMemoryStore: NewInMemoryStore()}
	manager := NewManager(store, NewLRUCache(DefaultCacheConfig()), nil)
	ctx := context.Background()

	if err := manager.Create(ctx, testChannel("degen")); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := manager.Get(ctx, "degen"); err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
	}
	if store.gets != 1 {
		t.Errorf("Store was hit %d times, want 1", store.gets)
	}
}

// TestManagerInvalidatesOnMutation verifies writes are visible to later reads
func TestManagerInvalidatesOnMutation(t *testing.T) {
	manager := NewManager(NewInMemoryStore(), NewLRUCache(DefaultCacheConfig()), nil)
	ctx := context.Background()

	_ = manager.Create(ctx, testChannel("degen"))
	if _, err := manager.Get(ctx, "degen"); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	if err := manager.AddExcludedUser(ctx, "degen", 77); err != nil {
		t.Fatalf("AddExcludedUser() failed: %v", err)
	}
	channel, _ := manager.Get(ctx, "degen")
	if !channel.ExcludedUserIDs.Contains(77) {
		t.Error("Bypass addition not visible after invalidation")
	}

	channel.Plan = "ultra"
	if err := manager.Update(ctx, channel); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	byURL, _ := manager.GetByURL(ctx, channel.URL)
	if byURL.Plan != "ultra" {
		t.Errorf("Plan = %q after update, want ultra", byURL.Plan)
	}
}

// TestManagerValidates verifies invalid configurations never reach the store
func TestManagerValidates(t *testing.T) {
	store := NewInMemoryStore()
	manager := NewManager(store, nil, newTestValidator())
	ctx := context.Background()

	channel := testChannel("degen")
	channel.OwnerID = 0
	if err := manager.Create(ctx, channel); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Expected ErrInvalidConfig, got %v", err)
	}
	if _, err := store.Get(ctx, "degen"); !errors.Is(err, ErrNotFound) {
		t.Error("Invalid channel was stored")
	}
}

// TestLRUCacheExpiry verifies entries disappear after the TTL
func TestLRUCacheExpiry(t *testing.T) {
	cache := NewLRUCache(CacheConfig{Size: 10, TTL: 20 * time.Millisecond})
	cache.Set("id:degen", testChannel("degen"))

	if _, ok := cache.Get("id:degen"); !ok {
		t.Fatal("Expected a cache hit right after Set")
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := cache.Get("id:degen"); ok {
		t.Error("Expected the entry to expire")
	}
}

// TestLRUCacheInvalidate verifies Invalidate clears every entry
func TestLRUCacheInvalidate(t *testing.T) {
	cache := NewLRUCache(DefaultCacheConfig())
	cache.Set("id:a", testChannel("a"))
	cache.Set("url:b", testChannel("b"))

	cache.Invalidate()

	if _, ok := cache.Get("id:a"); ok {
		t.Error("id:a survived Invalidate")
	}
	if _, ok := cache.Get("url:b"); ok {
		t.Error("url:b survived Invalidate")
	}
}
