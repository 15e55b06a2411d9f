package farcaster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// APIError is a non-2xx response from the Farcaster API
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("farcaster api %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// ClientConfig configures a Client
type ClientConfig struct {
	BaseURL  string
	APIKey   string
	RetryMax int
	Timeout  time.Duration
	// Cache stores lookup responses; nil disables caching
	Cache  CacheStore
	Logger *slog.Logger
}

// Client talks to the Farcaster API. It answers the social graph and token
// balance lookups predicates need and performs channel moderation.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	cache   CacheStore
}

type leveledSlog struct {
	inner *slog.Logger
}

// re-writes HTTP client ERROR to WARN level (because of retries)
func (l leveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Info(msg, keysAndValues...)
}

func (l leveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

// NewClient creates a client retrying connection errors and 5xx responses
// up to RetryMax times. 429 responses are not retried.
func NewClient(config ClientConfig) *Client {
	log := config.Logger
	if log == nil {
		log = slog.Default()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = config.RetryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: log.With("subsystem", "farcaster")})
	retryClient.CheckRetry = retryPolicy

	client := retryClient.StandardClient()
	client.Timeout = config.Timeout
	if client.Timeout == 0 {
		client.Timeout = 20 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		http:    client,
		cache:   config.Cache,
	}
}

func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("farcaster api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// cached serves out from the cache entry name/key or fills it with fetch
func (c *Client) cached(ctx context.Context, name, key string, out any, fetch func() error) error {
	if c.cache != nil {
		if val, err := c.cache.Get(ctx, name, key); err == nil && val != "" {
			if err := json.Unmarshal([]byte(val), out); err == nil {
				return nil
			}
		}
	}

	if err := fetch(); err != nil {
		return err
	}

	if c.cache != nil {
		raw, err := json.Marshal(out)
		if err == nil {
			// a failed cache write only costs a refetch
			_ = c.cache.Set(ctx, name, key, string(raw))
		}
	}
	return nil
}

// User looks up a user by fid
func (c *Client) User(ctx context.Context, fid int64) (*User, error) {
	var resp struct {
		Users []User `json:"users"`
	}
	key := strconv.FormatInt(fid, 10)
	err := c.cached(ctx, "user", key, &resp, func() error {
		return c.do(ctx, http.MethodGet, "/v2/farcaster/user/bulk", url.Values{"fids": {key}}, nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Users) == 0 {
		return nil, &APIError{Method: http.MethodGet, Path: "/v2/farcaster/user/bulk", StatusCode: http.StatusNotFound, Body: "user " + key + " not found"}
	}
	return &resp.Users[0], nil
}

type channelHosts struct {
	Channel struct {
		Hosts []struct {
			FID int64 `json:"fid"`
		} `json:"hosts"`
	} `json:"channel"`
}

// IsCohost reports whether fid hosts channelID alongside its lead
func (c *Client) IsCohost(ctx context.Context, channelID string, fid int64) (bool, error) {
	var resp channelHosts
	err := c.cached(ctx, "channel", channelID, &resp, func() error {
		return c.do(ctx, http.MethodGet, "/v2/farcaster/channel", url.Values{"id": {channelID}}, nil, &resp)
	})
	if err != nil {
		return false, err
	}
	for _, host := range resp.Channel.Hosts {
		if host.FID == fid {
			return true, nil
		}
	}
	return false, nil
}

// IsFollowedBy reports whether username follows fid
func (c *Client) IsFollowedBy(ctx context.Context, fid int64, username string) (bool, error) {
	var resp struct {
		User struct {
			ViewerContext struct {
				FollowedBy bool `json:"followed_by"`
			} `json:"viewer_context"`
		} `json:"user"`
	}
	viewer := strconv.FormatInt(fid, 10)
	err := c.cached(ctx, "followed_by", viewer+"/"+username, &resp, func() error {
		return c.do(ctx, http.MethodGet, "/v2/farcaster/user/by_username", url.Values{
			"username":   {username},
			"viewer_fid": {viewer},
		}, nil, &resp)
	})
	if err != nil {
		return false, err
	}
	return resp.User.ViewerContext.FollowedBy, nil
}

// ERC20Balance sums the token balance held by addresses. Balances are
// returned as decimal strings in the token's smallest unit.
func (c *Client) ERC20Balance(ctx context.Context, chainID, contractAddress string, addresses []string) (*big.Int, error) {
	var resp struct {
		Balances []struct {
			Address string `json:"address"`
			Balance string `json:"balance"`
		} `json:"balances"`
	}
	err := c.do(ctx, http.MethodGet, "/v2/token/balances", url.Values{
		"chain_id":         {chainID},
		"contract_address": {contractAddress},
		"addresses":        {strings.Join(addresses, ",")},
	}, nil, &resp)
	if err != nil {
		return nil, err
	}

	total := new(big.Int)
	for _, b := range resp.Balances {
		v, ok := new(big.Int).SetString(b.Balance, 10)
		if !ok {
			return nil, fmt.Errorf("invalid balance %q for %s", b.Balance, b.Address)
		}
		total.Add(total, v)
	}
	return total, nil
}

type curateRequest struct {
	ChannelID string `json:"channel_id"`
	CastHash  string `json:"cast_hash"`
	Action    string `json:"action"`
}

// Like curates cast into the channel feed
func (c *Client) Like(ctx context.Context, channelID string, cast *Cast) error {
	return c.do(ctx, http.MethodPost, "/v2/farcaster/channel/curate", nil, curateRequest{ChannelID: channelID, CastHash: cast.Hash, Action: "like"}, nil)
}

// Unlike removes cast from the channel feed
func (c *Client) Unlike(ctx context.Context, channelID string, cast *Cast) error {
	return c.do(ctx, http.MethodPost, "/v2/farcaster/channel/curate", nil, curateRequest{ChannelID: channelID, CastHash: cast.Hash, Action: "unlike"}, nil)
}

// Ban bans fid from channelID
func (c *Client) Ban(ctx context.Context, channelID string, fid int64) error {
	return c.do(ctx, http.MethodPost, "/v2/farcaster/channel/ban", nil, map[string]any{
		"channel_id": channelID,
		"fid":        fid,
	}, nil)
}

// GrantRole gives fid roleID in channelID
func (c *Client) GrantRole(ctx context.Context, channelID, roleID string, fid int64) error {
	return c.do(ctx, http.MethodPost, "/v2/farcaster/channel/member/role", nil, map[string]any{
		"channel_id": channelID,
		"role":       roleID,
		"fid":        fid,
	}, nil)
}
