package channels

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/francisco-leal/ModBot/rules"
)

func testChannel(id string) *rules.ModeratedChannel {
	return &rules.ModeratedChannel{
		ID:              id,
		OwnerID:         3,
		URL:             "chain://eip155:7777777/erc721:0x" + id,
		Active:          true,
		Plan:            "basic",
		ExcludedUserIDs: rules.NewFIDSet(5),
		InclusionRuleSet: &rules.RuleSet{
			Active: true,
			Target: rules.TargetAll,
			Rule: &rules.Logical{Operation: rules.OpAnd, Conditions: []rules.Rule{
				&rules.Condition{Name: "hasMinFollowers", Args: rules.Args{"minFollowers": 10.0}},
			}},
			Actions: []rules.Action{{Type: "like"}},
		},
	}
}

// TestInMemoryStoreInterface verifies the in-memory store satisfies Store
func TestInMemoryStoreInterface(t *testing.T) {
	var _ Store = (*InMemoryStore)(nil)
	var _ Store = (*PostgresStore)(nil)
}

// TestInMemoryStoreCreate verifies basic Create and Get functionality
func TestInMemoryStoreCreate(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	channel := testChannel("degen")
	if err := store.Create(ctx, channel); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if channel.CreatedAt.IsZero() || !channel.CreatedAt.Equal(channel.UpdatedAt) {
		t.Errorf("Create() should set equal timestamps, got %v / %v", channel.CreatedAt, channel.UpdatedAt)
	}

	retrieved, err := store.Get(ctx, "degen")
	if err != nil {
		t.Fatalf("Get() failed after Create(): %v", err)
	}
	if retrieved.OwnerID != 3 || !retrieved.InclusionRuleSet.HasRules() {
		t.Errorf("Retrieved channel = %+v", retrieved)
	}

	byURL, err := store.GetByURL(ctx, channel.URL)
	if err != nil || byURL.ID != "degen" {
		t.Errorf("GetByURL() = (%v, %v)", byURL, err)
	}
}

// TestInMemoryStoreCreateDuplicate verifies duplicate ids are rejected
func TestInMemoryStoreCreateDuplicate(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, testChannel("degen")); err != nil {
		t.Fatalf("First Create() should succeed: %v", err)
	}
	err := store.Create(ctx, testChannel("degen"))
	if !errors.Is(err, ErrExists) {
		t.Errorf("Second Create() should return ErrExists, got %v", err)
	}
}

// TestInMemoryStoreNotFound verifies lookups of unknown channels
func TestInMemoryStoreNotFound(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() should return ErrNotFound, got %v", err)
	}
	if _, err := store.GetByURL(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByURL(\"\") should return ErrNotFound, got %v", err)
	}
	if err := store.Update(ctx, testChannel("nope")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() should return ErrNotFound, got %v", err)
	}
	if err := store.AddExcludedUser(ctx, "nope", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddExcludedUser() should return ErrNotFound, got %v", err)
	}
}

// TestInMemoryStoreUpdate verifies CreatedAt survives an update
func TestInMemoryStoreUpdate(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	channel := testChannel("degen")
	if err := store.Create(ctx, channel); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	created := channel.CreatedAt

	updated := testChannel("degen")
	updated.Plan = "prime"
	if err := store.Update(ctx, updated); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	retrieved, _ := store.Get(ctx, "degen")
	if retrieved.Plan != "prime" {
		t.Errorf("Plan = %q, want prime", retrieved.Plan)
	}
	if !retrieved.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed from %v to %v", created, retrieved.CreatedAt)
	}
}

// TestInMemoryStoreIsolation verifies callers cannot mutate stored channels
func TestInMemoryStoreIsolation(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	channel := testChannel("degen")
	_ = store.Create(ctx, channel)
	channel.ExcludedUserIDs.Add(99)

	retrieved, _ := store.Get(ctx, "degen")
	if retrieved.ExcludedUserIDs.Contains(99) {
		t.Error("Mutating the created channel leaked into the store")
	}
	retrieved.ExcludedUserIDs.Add(100)

	again, _ := store.Get(ctx, "degen")
	if again.ExcludedUserIDs.Contains(100) {
		t.Error("Mutating a retrieved channel leaked into the store")
	}
}

// TestInMemoryStoreAddExcludedUser verifies bypass list additions are idempotent
func TestInMemoryStoreAddExcludedUser(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	_ = store.Create(ctx, testChannel("degen"))

	for i := 0; i < 2; i++ {
		if err := store.AddExcludedUser(ctx, "degen", 42); err != nil {
			t.Fatalf("AddExcludedUser() failed: %v", err)
		}
	}

	retrieved, _ := store.Get(ctx, "degen")
	if got := retrieved.ExcludedUserIDs.Sorted(); len(got) != 2 || got[0] != 5 || got[1] != 42 {
		t.Errorf("Bypass list = %v, want [5 42]", got)
	}
}

// TestInMemoryStoreList verifies channels are listed by id
func TestInMemoryStoreList(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"memes", "degen", "base"} {
		_ = store.Create(ctx, testChannel(id))
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 3 || list[0].ID != "base" || list[2].ID != "memes" {
		t.Errorf("List() order = %v", []string{list[0].ID, list[1].ID, list[2].ID})
	}
}

// TestInMemoryStoreConcurrentAccess verifies the store is safe for concurrent use
func TestInMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	_ = store.Create(ctx, testChannel("degen"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(fid int64) {
			defer wg.Done()
			_ = store.AddExcludedUser(ctx, "degen", fid)
		}(int64(i))
		go func() {
			defer wg.Done()
			_, _ = store.Get(ctx, "degen")
		}()
	}
	wg.Wait()

	retrieved, _ := store.Get(ctx, "degen")
	if got := len(retrieved.ExcludedUserIDs); got != 50 {
		t.Errorf("Bypass list has %d entries, want 50", got)
	}
}
