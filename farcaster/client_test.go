package farcaster_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francisco-leal/ModBot/actions"
	"github.com/francisco-leal/ModBot/farcaster"
	"github.com/francisco-leal/ModBot/rules/predicates"
)

var (
	_ predicates.Graph       = (*farcaster.Client)(nil)
	_ predicates.TokenOracle = (*farcaster.Client)(nil)
	_ actions.Protocol       = (*farcaster.Client)(nil)
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cache farcaster.CacheStore) *farcaster.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return farcaster.NewClient(farcaster.ClientConfig{
		BaseURL:  srv.URL,
		APIKey:   "secret",
		RetryMax: 2,
		Timeout:  5 * time.Second,
		Cache:    cache,
	})
}

func TestIsCohostCachesChannel(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v2/farcaster/channel", r.URL.Path)
		assert.Equal(t, "degen", r.URL.Query().Get("id"))
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		w.Write([]byte(`{"channel":{"id":"degen","hosts":[{"fid":3},{"fid":42}]}}`))
	}, farcaster.NewMemCacheStore(100, time.Minute))
	ctx := context.Background()

	ok, err := client.IsCohost(ctx, "degen", 42)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.IsCohost(ctx, "degen", 7)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, int32(1), calls.Load(), "second lookup is served from the cache")
}

func TestIsFollowedBy(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/farcaster/user/by_username", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("viewer_fid"))
		follows := r.URL.Query().Get("username") == "dwr"
		json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{"viewer_context": map[string]any{"followed_by": follows}},
		})
	}, nil)

	ok, err := client.IsFollowedBy(context.Background(), 42, "dwr")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.IsFollowedBy(context.Background(), 42, "v")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestERC20BalanceSumsAddresses(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xa,0xb", r.URL.Query().Get("addresses"))
		assert.Equal(t, "8453", r.URL.Query().Get("chain_id"))
		w.Write([]byte(`{"balances":[{"address":"0xa","balance":"1000000000000000000000"},{"address":"0xb","balance":"5"}]}`))
	}, nil)

	balance, err := client.ERC20Balance(context.Background(), "8453", "0xtoken", []string{"0xa", "0xb"})
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("1000000000000000000005", 10)
	assert.Equal(t, 0, want.Cmp(balance), balance.String())
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"users":[{"fid":42,"username":"alice","follower_count":10}]}`))
	}, nil)

	user, err := client.User(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, int64(10), user.FollowerCount)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRateLimitIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}, nil)

	_, err := client.IsCohost(context.Background(), "degen", 1)
	var apiErr *farcaster.APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "slow down", apiErr.Body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestModerationCalls(t *testing.T) {
	type call struct {
		path string
		body map[string]any
	}
	var calls []call
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		calls = append(calls, call{path: r.URL.Path, body: body})
		w.Write([]byte(`{"success":true}`))
	}, nil)
	ctx := context.Background()
	cast := &farcaster.Cast{Hash: "0xabc"}

	require.NoError(t, client.Like(ctx, "degen", cast))
	require.NoError(t, client.Unlike(ctx, "degen", cast))
	require.NoError(t, client.Ban(ctx, "degen", 42))
	require.NoError(t, client.GrantRole(ctx, "degen", "member", 42))

	require.Len(t, calls, 4)
	assert.Equal(t, "/v2/farcaster/channel/curate", calls[0].path)
	assert.Equal(t, "like", calls[0].body["action"])
	assert.Equal(t, "0xabc", calls[0].body["cast_hash"])
	assert.Equal(t, "unlike", calls[1].body["action"])
	assert.Equal(t, "/v2/farcaster/channel/ban", calls[2].path)
	assert.Equal(t, 42.0, calls[2].body["fid"])
	assert.Equal(t, "/v2/farcaster/channel/member/role", calls[3].path)
	assert.Equal(t, "member", calls[3].body["role"])
}

func TestMemCacheStore(t *testing.T) {
	store := farcaster.NewMemCacheStore(10, time.Minute)
	ctx := context.Background()

	val, err := store.Get(ctx, "user", "42")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, store.Set(ctx, "user", "42", `{"fid":42}`))
	val, err = store.Get(ctx, "user", "42")
	require.NoError(t, err)
	assert.Equal(t, `{"fid":42}`, val)

	require.NoError(t, store.Purge(ctx, "user", "42"))
	val, _ = store.Get(ctx, "user", "42")
	assert.Empty(t, val)
}
