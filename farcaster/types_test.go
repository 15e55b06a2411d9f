package farcaster

import (
	"testing"
	"time"
)

// TestUserHandle verifies the username fallback chain used in audit entries
func TestUserHandle(t *testing.T) {
	tests := []struct {
		name     string
		user     *User
		expected string
	}{
		{"username", &User{FID: 3, Username: "dwr"}, "dwr"},
		{"fid fallback", &User{FID: 1234}, "1234"},
		{"empty user", &User{}, "unknown"},
		{"nil user", nil, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.Handle(); got != tt.expected {
				t.Errorf("Handle() = %q, want %q", got, tt.expected)
			}
		})
	}
}

// TestUserAccountAge verifies account age is measured from RegisteredAt
func TestUserAccountAge(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	user := &User{RegisteredAt: now.Add(-72 * time.Hour)}
	if got := user.AccountAge(now); got != 72*time.Hour {
		t.Errorf("AccountAge() = %v, want 72h", got)
	}

	unknown := &User{}
	if got := unknown.AccountAge(now); got != 0 {
		t.Errorf("AccountAge() with zero RegisteredAt = %v, want 0", got)
	}
}

// TestCastIsReply verifies replies are detected by parent hash only
func TestCastIsReply(t *testing.T) {
	tests := []struct {
		name     string
		cast     *Cast
		expected bool
	}{
		{"root cast in channel", &Cast{Hash: "0x1", ParentURL: "https://warpcast.com/~/channel/degen"}, false},
		{"reply", &Cast{Hash: "0x2", ParentHash: "0x1"}, true},
		{"nil cast", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cast.IsReply(); got != tt.expected {
				t.Errorf("IsReply() = %v, want %v", got, tt.expected)
			}
		})
	}
}
