// Package farcaster holds the protocol value objects the moderation engine
// evaluates (users and casts) and an HTTP client for the lookups predicates
// and actions need.
package farcaster

import (
	"strconv"
	"time"
)

// User is a Farcaster account as seen by the moderation engine.
type User struct {
	FID               int64     `json:"fid"`
	Username          string    `json:"username"`
	DisplayName       string    `json:"display_name,omitempty"`
	PfpURL            string    `json:"pfp_url,omitempty"`
	Bio               string    `json:"bio,omitempty"`
	FollowerCount     int64     `json:"follower_count"`
	FollowingCount    int64     `json:"following_count"`
	PowerBadge        bool      `json:"power_badge,omitempty"`
	VerifiedAddresses []string  `json:"verified_addresses,omitempty"`
	RegisteredAt      time.Time `json:"registered_at,omitempty"`
}

// Handle returns the username, falling back to the fid when the account has
// no username yet.
func (u *User) Handle() string {
	if u == nil {
		return "unknown"
	}
	if u.Username != "" {
		return u.Username
	}
	if u.FID != 0 {
		return strconv.FormatInt(u.FID, 10)
	}
	return "unknown"
}

// AccountAge is the time elapsed since the account was registered, relative
// to now. A zero RegisteredAt yields zero.
func (u *User) AccountAge(now time.Time) time.Duration {
	if u == nil || u.RegisteredAt.IsZero() {
		return 0
	}
	return now.Sub(u.RegisteredAt)
}

// Cast is a piece of content posted into a channel.
type Cast struct {
	Hash          string    `json:"hash"`
	Text          string    `json:"text"`
	ParentHash    string    `json:"parent_hash,omitempty"`
	ParentURL     string    `json:"parent_url,omitempty"`
	RootParentURL string    `json:"root_parent_url,omitempty"`
	Author        User      `json:"author"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
}

// IsReply reports whether the cast replies to another cast. Root casts in a
// channel only carry a parent URL.
func (c *Cast) IsReply() bool {
	return c != nil && c.ParentHash != ""
}
