//go:build integration

package actions_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francisco-leal/ModBot/actions"
	"github.com/francisco-leal/ModBot/internal/testdb"
)

func TestPostgresCooldownStore(t *testing.T) {
	db := testdb.New(t)
	store := actions.NewPostgresCooldownStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	expires := now.Add(time.Hour)
	require.NoError(t, store.Upsert(ctx, &actions.Cooldown{AffectedUserID: 1, ChannelID: "degen", Kind: actions.KindCooldown, Active: true, ExpiresAt: &expires}))
	require.NoError(t, store.Upsert(ctx, &actions.Cooldown{AffectedUserID: 2, ChannelID: "degen", Kind: actions.KindBan, Active: true}))
	require.NoError(t, store.Upsert(ctx, &actions.Cooldown{AffectedUserID: 3, ChannelID: "memes", Kind: actions.KindMute, Active: true}))

	active, err := store.ListActive(ctx, "degen", now)
	require.NoError(t, err)
	require.Len(t, active, 2)

	active, err = store.ListActive(ctx, "degen", now.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(2), active[0].AffectedUserID)
	assert.Nil(t, active[0].ExpiresAt)

	// upsert replaces the restriction for the same user
	require.NoError(t, store.Upsert(ctx, &actions.Cooldown{AffectedUserID: 1, ChannelID: "degen", Kind: actions.KindBan, Active: true}))
	active, _ = store.ListActive(ctx, "degen", now.Add(2*time.Hour))
	assert.Len(t, active, 2)

	require.NoError(t, store.Deactivate(ctx, "degen", 2))
	active, _ = store.ListActive(ctx, "degen", now)
	require.Len(t, active, 1)
	assert.Equal(t, int64(1), active[0].AffectedUserID)

	assert.ErrorIs(t, store.Deactivate(ctx, "degen", 99), actions.ErrCooldownNotFound)
}

func TestPostgresDownvoteStore(t *testing.T) {
	db := testdb.New(t)
	store := actions.NewPostgresDownvoteStore(db)
	ctx := context.Background()

	vote := &actions.Downvote{CastHash: "0xabc", ChannelID: "degen", FID: 42, VoterFID: 7, VoterUsername: "bob"}
	require.NoError(t, store.Add(ctx, vote))
	require.NoError(t, store.Add(ctx, vote))
	require.NoError(t, store.Add(ctx, &actions.Downvote{CastHash: "0xabc", ChannelID: "degen", FID: 42, VoterFID: 8}))

	n, err := store.Count(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
