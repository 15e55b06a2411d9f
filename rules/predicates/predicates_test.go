package predicates

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/francisco-leal/ModBot/farcaster"
	"github.com/francisco-leal/ModBot/rules"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeGraph struct {
	cohosts   map[int64]bool
	followers map[string]bool
	err       error
}

func (g *fakeGraph) IsCohost(ctx context.Context, channelID string, fid int64) (bool, error) {
	return g.cohosts[fid], g.err
}

func (g *fakeGraph) IsFollowedBy(ctx context.Context, fid int64, username string) (bool, error) {
	return g.followers[username], g.err
}

type fakeTokens struct {
	balance   *big.Int
	addresses []string
}

func (t *fakeTokens) ERC20Balance(ctx context.Context, chainID, contract string, addresses []string) (*big.Int, error) {
	t.addresses = addresses
	return t.balance, nil
}

func newTestRegistry(graph Graph, tokens TokenOracle) *rules.Registry {
	return NewRegistry(Dependencies{
		Graph:  graph,
		Tokens: tokens,
		Now:    func() time.Time { return testNow },
	})
}

func check(t *testing.T, registry *rules.Registry, name rules.RuleName, args rules.Args, user *farcaster.User, cast *farcaster.Cast) (rules.CheckResult, error) {
	t.Helper()
	fn, err := registry.Lookup(name)
	if err != nil {
		t.Fatalf("Lookup(%s) failed: %v", name, err)
	}
	return fn.Check(context.Background(), rules.CheckContext{
		Channel: &rules.ModeratedChannel{ID: "degen"},
		User:    user,
		Cast:    cast,
		Rule:    &rules.Condition{Name: name, Args: args},
	})
}

// TestRegistryContents verifies every predicate in the library is registered
func TestRegistryContents(t *testing.T) {
	registry := newTestRegistry(nil, nil)

	names := []rules.RuleName{
		"alwaysInclude", "containsText", "textMatchesPattern", "castLength",
		"hasMinFollowers", "notNewAccount", "userFidInRange", "userProfileContainsText",
		"userDisplayNameContainsText", "userHasPowerBadge", "userIsCohost",
		"userFollowedBy", "requiresErc20", "celExpression",
	}
	for _, name := range names {
		if _, ok := registry.Definition(name); !ok {
			t.Errorf("Predicate %s is not registered", name)
		}
	}
	if got := len(registry.Definitions()); got != len(names) {
		t.Errorf("Registry has %d predicates, want %d", got, len(names))
	}
}

// TestContainsText verifies case handling of the text predicate
func TestContainsText(t *testing.T) {
	registry := newTestRegistry(nil, nil)
	user := &farcaster.User{FID: 1, Username: "alice"}
	cast := &farcaster.Cast{Text: "GM frens"}

	tests := []struct {
		name string
		args rules.Args
		want bool
	}{
		{"case insensitive", rules.Args{"searchText": "gm"}, true},
		{"case sensitive miss", rules.Args{"searchText": "gm", "caseSensitive": true}, false},
		{"case sensitive hit", rules.Args{"searchText": "GM", "caseSensitive": "on"}, true},
		{"absent", rules.Args{"searchText": "wagmi"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := check(t, registry, "containsText", tt.args, user, cast)
			if err != nil {
				t.Fatalf("Check failed: %v", err)
			}
			if res.Result != tt.want {
				t.Errorf("Result = %v, want %v (%s)", res.Result, tt.want, res.Message)
			}
		})
	}
}

// TestMissingArgument verifies absent required arguments are configuration errors
func TestMissingArgument(t *testing.T) {
	registry := newTestRegistry(nil, nil)

	_, err := check(t, registry, "containsText", rules.Args{}, &farcaster.User{FID: 1}, &farcaster.Cast{})
	if !errors.Is(err, rules.ErrConfiguration) {
		t.Errorf("Expected configuration error, got %v", err)
	}

	_, err = check(t, registry, "hasMinFollowers", rules.Args{"minFollowers": "lots"}, &farcaster.User{FID: 1}, nil)
	if !errors.Is(err, rules.ErrConfiguration) {
		t.Errorf("Expected configuration error for invalid number, got %v", err)
	}
}

// TestTextMatchesPattern verifies regular expressions and invalid patterns
func TestTextMatchesPattern(t *testing.T) {
	registry := newTestRegistry(nil, nil)
	user := &farcaster.User{FID: 1}

	res, err := check(t, registry, "textMatchesPattern", rules.Args{"pattern": `^\$[A-Z]+`}, user, &farcaster.Cast{Text: "$DEGEN to the moon"})
	if err != nil || !res.Result {
		t.Errorf("Expected match, got (%+v, %v)", res, err)
	}

	_, err = check(t, registry, "textMatchesPattern", rules.Args{"pattern": `(`}, user, &farcaster.Cast{Text: "x"})
	if !errors.Is(err, rules.ErrConfiguration) {
		t.Errorf("Invalid pattern should be a configuration error, got %v", err)
	}
}

// TestCastLength verifies both bounds are optional and inclusive
func TestCastLength(t *testing.T) {
	registry := newTestRegistry(nil, nil)
	user := &farcaster.User{FID: 1}
	cast := &farcaster.Cast{Text: "hello"}

	tests := []struct {
		args rules.Args
		want bool
	}{
		{rules.Args{"min": 5.0}, true},
		{rules.Args{"min": 6.0}, false},
		{rules.Args{"max": 5.0}, true},
		{rules.Args{"max": 4.0}, false},
		{rules.Args{}, true},
	}
	for _, tt := range tests {
		res, err := check(t, registry, "castLength", tt.args, user, cast)
		if err != nil {
			t.Fatalf("Check(%v) failed: %v", tt.args, err)
		}
		if res.Result != tt.want {
			t.Errorf("castLength(%v) = %v, want %v", tt.args, res.Result, tt.want)
		}
	}
}

// TestHasMinFollowers verifies the follower threshold and its messages
func TestHasMinFollowers(t *testing.T) {
	registry := newTestRegistry(nil, nil)

	res, err := check(t, registry, "hasMinFollowers", rules.Args{"minFollowers": 100.0}, &farcaster.User{FID: 1, FollowerCount: 100}, nil)
	if err != nil || !res.Result {
		t.Fatalf("Expected pass, got (%+v, %v)", res, err)
	}
	if res.Message != "has at least 100 followers" {
		t.Errorf("Message = %q", res.Message)
	}

	res, err = check(t, registry, "hasMinFollowers", rules.Args{"minFollowers": "100"}, &farcaster.User{FID: 1, FollowerCount: 12}, nil)
	if err != nil || res.Result {
		t.Fatalf("Expected fail, got (%+v, %v)", res, err)
	}
	if res.Message != "has 12 followers, fewer than 100" {
		t.Errorf("Message = %q", res.Message)
	}
}

// TestNotNewAccount verifies account age is measured against the clock
func TestNotNewAccount(t *testing.T) {
	registry := newTestRegistry(nil, nil)

	old := &farcaster.User{FID: 1, RegisteredAt: testNow.Add(-30 * 24 * time.Hour)}
	res, err := check(t, registry, "notNewAccount", rules.Args{"days": 7.0}, old, nil)
	if err != nil || !res.Result {
		t.Errorf("30 day old account should pass, got (%+v, %v)", res, err)
	}

	fresh := &farcaster.User{FID: 2, RegisteredAt: testNow.Add(-2 * 24 * time.Hour)}
	res, err = check(t, registry, "notNewAccount", rules.Args{"days": 7.0}, fresh, nil)
	if err != nil || res.Result {
		t.Fatalf("2 day old account should fail, got (%+v, %v)", res, err)
	}
	if res.Message != "account is 2 days old, newer than 7 days" {
		t.Errorf("Message = %q", res.Message)
	}

	res, err = check(t, registry, "notNewAccount", rules.Args{"days": 7.0}, &farcaster.User{FID: 3}, nil)
	if err != nil || res.Result {
		t.Errorf("Unknown registration should fail, got (%+v, %v)", res, err)
	}
}

// TestUserFidInRange verifies the fid bounds
func TestUserFidInRange(t *testing.T) {
	registry := newTestRegistry(nil, nil)
	args := rules.Args{"minFid": 10.0, "maxFid": 20.0}

	for fid, want := range map[int64]bool{9: false, 10: true, 20: true, 21: false} {
		res, err := check(t, registry, "userFidInRange", args, &farcaster.User{FID: fid}, nil)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if res.Result != want {
			t.Errorf("fid %d: Result = %v, want %v", fid, res.Result, want)
		}
	}
}

// TestProfilePredicates verifies the bio, display name and power badge checks
func TestProfilePredicates(t *testing.T) {
	registry := newTestRegistry(nil, nil)
	user := &farcaster.User{FID: 1, Username: "alice", DisplayName: "Alice 🎩", Bio: "building onchain", PowerBadge: true}

	res, _ := check(t, registry, "userProfileContainsText", rules.Args{"searchText": "ONCHAIN"}, user, nil)
	if !res.Result {
		t.Error("Bio should contain onchain")
	}
	res, _ = check(t, registry, "userDisplayNameContainsText", rules.Args{"searchText": "🎩"}, user, nil)
	if !res.Result {
		t.Error("Display name should contain the hat")
	}
	res, _ = check(t, registry, "userHasPowerBadge", nil, user, nil)
	if !res.Result || !strings.Contains(res.Message, "@alice") {
		t.Errorf("Power badge = %+v", res)
	}
}

// TestGraphPredicates verifies cohost and follow checks use the graph
func TestGraphPredicates(t *testing.T) {
	graph := &fakeGraph{
		cohosts:   map[int64]bool{7: true},
		followers: map[string]bool{"dwr": true},
	}
	registry := newTestRegistry(graph, nil)

	res, err := check(t, registry, "userIsCohost", nil, &farcaster.User{FID: 7}, nil)
	if err != nil || !res.Result {
		t.Errorf("fid 7 should be a cohost, got (%+v, %v)", res, err)
	}
	res, err = check(t, registry, "userIsCohost", nil, &farcaster.User{FID: 8}, nil)
	if err != nil || res.Result {
		t.Errorf("fid 8 should not be a cohost, got (%+v, %v)", res, err)
	}

	res, err = check(t, registry, "userFollowedBy", rules.Args{"username": "@dwr"}, &farcaster.User{FID: 8}, nil)
	if err != nil || !res.Result {
		t.Errorf("Should be followed by dwr, got (%+v, %v)", res, err)
	}

	graph.err = errors.New("hub unavailable")
	if _, err := check(t, registry, "userIsCohost", nil, &farcaster.User{FID: 7}, nil); err == nil {
		t.Error("Expected lookup error to propagate")
	}
}

// TestGraphPredicatesWithoutGraph verifies a missing client is a configuration error
func TestGraphPredicatesWithoutGraph(t *testing.T) {
	registry := newTestRegistry(nil, nil)

	_, err := check(t, registry, "userIsCohost", nil, &farcaster.User{FID: 7}, nil)
	if !errors.Is(err, rules.ErrConfiguration) {
		t.Errorf("Expected configuration error, got %v", err)
	}
}

// TestRequiresErc20 verifies balances are compared against the minimum
func TestRequiresErc20(t *testing.T) {
	tokens := &fakeTokens{balance: big.NewInt(500)}
	registry := newTestRegistry(nil, tokens)
	user := &farcaster.User{FID: 1, VerifiedAddresses: []string{"0xabc", "0xdef"}}
	args := rules.Args{"chainId": "8453", "contractAddress": "0x4ed4", "minBalance": "100"}

	res, err := check(t, registry, "requiresErc20", args, user, nil)
	if err != nil || !res.Result {
		t.Fatalf("Expected pass, got (%+v, %v)", res, err)
	}
	if len(tokens.addresses) != 2 {
		t.Errorf("Oracle received %v, want both addresses", tokens.addresses)
	}

	args["minBalance"] = "1000"
	res, err = check(t, registry, "requiresErc20", args, user, nil)
	if err != nil || res.Result {
		t.Errorf("Expected fail, got (%+v, %v)", res, err)
	}

	res, err = check(t, registry, "requiresErc20", args, &farcaster.User{FID: 2}, nil)
	if err != nil || res.Result {
		t.Errorf("User without addresses should fail, got (%+v, %v)", res, err)
	}
}

// TestCELExpression verifies expressions see the user and cast
func TestCELExpression(t *testing.T) {
	registry := newTestRegistry(nil, nil)
	user := &farcaster.User{FID: 42, Username: "alice", FollowerCount: 250}
	cast := &farcaster.Cast{Text: "gm", ParentHash: "0x01"}

	tests := []struct {
		expression string
		want       bool
	}{
		{`user.followerCount > 100 && cast.isReply`, true},
		{`user.username == "bob"`, false},
		{`cast.text.contains("gm")`, true},
		{`user.fid`, false},
	}
	for _, tt := range tests {
		res, err := check(t, registry, "celExpression", rules.Args{"expression": tt.expression}, user, cast)
		if err != nil {
			t.Fatalf("celExpression(%s) failed: %v", tt.expression, err)
		}
		if res.Result != tt.want {
			t.Errorf("celExpression(%s) = %v, want %v", tt.expression, res.Result, tt.want)
		}
	}

	_, err := check(t, registry, "celExpression", rules.Args{"expression": "user.("}, user, cast)
	if !errors.Is(err, rules.ErrConfiguration) {
		t.Errorf("Invalid expression should be a configuration error, got %v", err)
	}
}

// TestValidateExpression verifies expressions can be checked before saving
func TestValidateExpression(t *testing.T) {
	if err := ValidateExpression(`user.followerCount > 10`); err != nil {
		t.Errorf("Valid expression rejected: %v", err)
	}
	if err := ValidateExpression(`user.(`); err == nil {
		t.Error("Invalid expression accepted")
	}
}
