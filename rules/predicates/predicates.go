// Package predicates is the library of named checks a channel's rule tree can
// reference. Every check is registered once in a rules.Registry at startup.
package predicates

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/francisco-leal/ModBot/rules"
)

// Graph answers social-graph questions about a user
type Graph interface {
	// IsCohost reports whether fid holds a cohost role in the channel
	IsCohost(ctx context.Context, channelID string, fid int64) (bool, error)
	// IsFollowedBy reports whether the account named username follows fid
	IsFollowedBy(ctx context.Context, fid int64, username string) (bool, error)
}

// TokenOracle reports token balances across a set of addresses
type TokenOracle interface {
	ERC20Balance(ctx context.Context, chainID, contractAddress string, addresses []string) (*big.Int, error)
}

// Dependencies are the external lookups predicates may use. Nil lookups make
// the predicates that need them fail with a configuration error.
type Dependencies struct {
	Graph  Graph
	Tokens TokenOracle
	// Now defaults to time.Now
	Now func() time.Time
}

// NewRegistry returns a registry holding every predicate in the library
func NewRegistry(deps Dependencies) *rules.Registry {
	registry := rules.NewRegistry()
	Register(registry, deps)
	return registry
}

// Register adds every predicate in the library to registry
func Register(registry *rules.Registry, deps Dependencies) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	lib := &library{deps: deps, cel: newCELCache()}

	textArgs := map[string]rules.ArgDefinition{
		"searchText":    {Type: "string", FriendlyName: "Search Text", Required: true},
		"caseSensitive": {Type: "boolean", FriendlyName: "Case Sensitive"},
	}

	registry.Register(rules.Definition{
		Name:         "alwaysInclude",
		FriendlyName: "Everyone",
		Description:  "Matches every user",
	}, rules.CheckFunc(lib.alwaysInclude))

	registry.Register(rules.Definition{
		Name:         "containsText",
		FriendlyName: "Contains Text",
		Description:  "Check if the cast contains specific text",
		Invertable:   true,
		Args:         textArgs,
	}, rules.CheckFunc(lib.containsText))

	registry.Register(rules.Definition{
		Name:         "textMatchesPattern",
		FriendlyName: "Matches Pattern (Advanced)",
		Description:  "Check if the cast text matches a regular expression",
		Invertable:   true,
		Args: map[string]rules.ArgDefinition{
			"pattern": {Type: "string", FriendlyName: "Pattern", Required: true},
		},
	}, rules.CheckFunc(lib.textMatchesPattern))

	registry.Register(rules.Definition{
		Name:         "castLength",
		FriendlyName: "Cast Length",
		Description:  "Check if the cast length is within a range",
		Invertable:   true,
		Args: map[string]rules.ArgDefinition{
			"min": {Type: "number", FriendlyName: "Minimum Length"},
			"max": {Type: "number", FriendlyName: "Maximum Length"},
		},
	}, rules.CheckFunc(lib.castLength))

	registry.Register(rules.Definition{
		Name:         "hasMinFollowers",
		FriendlyName: "Minimum Followers",
		Description:  "Check if the user has at least a number of followers",
		Invertable:   true,
		Args: map[string]rules.ArgDefinition{
			"minFollowers": {Type: "number", FriendlyName: "Minimum Followers", Required: true},
		},
	}, rules.CheckFunc(lib.hasMinFollowers))

	registry.Register(rules.Definition{
		Name:         "notNewAccount",
		FriendlyName: "Account Age",
		Description:  "Check if the account is older than a number of days",
		Invertable:   true,
		Args: map[string]rules.ArgDefinition{
			"days": {Type: "number", FriendlyName: "Days", Required: true},
		},
	}, rules.CheckFunc(lib.notNewAccount))

	registry.Register(rules.Definition{
		Name:         "userFidInRange",
		FriendlyName: "FID Range",
		Description:  "Check if the user's FID is within a range",
		Invertable:   true,
		Args: map[string]rules.ArgDefinition{
			"minFid": {Type: "number", FriendlyName: "Min FID"},
			"maxFid": {Type: "number", FriendlyName: "Max FID"},
		},
	}, rules.CheckFunc(lib.userFidInRange))

	registry.Register(rules.Definition{
		Name:         "userProfileContainsText",
		FriendlyName: "Profile Contains Text",
		Description:  "Check if the user's bio contains specific text",
		Invertable:   true,
		Args:         textArgs,
	}, rules.CheckFunc(lib.userProfileContainsText))

	registry.Register(rules.Definition{
		Name:         "userDisplayNameContainsText",
		FriendlyName: "Display Name Contains Text",
		Description:  "Check if the user's display name contains specific text",
		Invertable:   true,
		Args:         textArgs,
	}, rules.CheckFunc(lib.userDisplayNameContainsText))

	registry.Register(rules.Definition{
		Name:         "userHasPowerBadge",
		FriendlyName: "Has Power Badge",
		Description:  "Check if the user has a power badge",
		Invertable:   true,
	}, rules.CheckFunc(lib.userHasPowerBadge))

	registry.Register(rules.Definition{
		Name:         "userIsCohost",
		FriendlyName: "Is Cohost",
		Description:  "Check if the user is a cohost of the channel",
		Invertable:   true,
	}, rules.CheckFunc(lib.userIsCohost))

	registry.Register(rules.Definition{
		Name:         "userFollowedBy",
		FriendlyName: "Followed By",
		Description:  "Check if the user is followed by a specific account",
		Invertable:   true,
		Args: map[string]rules.ArgDefinition{
			"username": {Type: "string", FriendlyName: "Username", Required: true},
		},
	}, rules.CheckFunc(lib.userFollowedBy))

	registry.Register(rules.Definition{
		Name:         "requiresErc20",
		FriendlyName: "Holds ERC-20",
		Description:  "Check if the user's verified addresses hold an ERC-20 token",
		Invertable:   true,
		Args: map[string]rules.ArgDefinition{
			"chainId":         {Type: "string", FriendlyName: "Chain", Required: true},
			"contractAddress": {Type: "string", FriendlyName: "Contract Address", Required: true},
			"minBalance":      {Type: "string", FriendlyName: "Minimum Balance"},
		},
	}, rules.CheckFunc(lib.requiresErc20))

	registry.Register(rules.Definition{
		Name:         "celExpression",
		FriendlyName: "Expression (Advanced)",
		Description:  "Evaluate a CEL expression over the user and cast",
		Invertable:   true,
		Args: map[string]rules.ArgDefinition{
			"expression": {Type: "string", FriendlyName: "Expression", Required: true},
		},
	}, rules.CheckFunc(lib.celExpression))
}

type library struct {
	deps Dependencies
	cel  *celCache
}

func pass(format string, args ...any) (rules.CheckResult, error) {
	return rules.CheckResult{Result: true, Message: fmt.Sprintf(format, args...)}, nil
}

func fail(format string, args ...any) (rules.CheckResult, error) {
	return rules.CheckResult{Result: false, Message: fmt.Sprintf(format, args...)}, nil
}

func (l *library) alwaysInclude(ctx context.Context, c rules.CheckContext) (rules.CheckResult, error) {
	return pass("Everyone is included")
}

// containsCheck is shared by the text predicates
func containsCheck(c rules.CheckContext, subject, haystack string) (rules.CheckResult, error) {
	needle, err := argString(c.Rule, "searchText", true)
	if err != nil {
		return rules.CheckResult{}, err
	}
	caseSensitive, err := argBool(c.Rule, "caseSensitive")
	if err != nil {
		return rules.CheckResult{}, err
	}

	found := strings.Contains(haystack, needle)
	if !caseSensitive {
		found = strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
	}
	if found {
		return pass("%s contains %q", subject, needle)
	}
	return fail("%s does not contain %q", subject, needle)
}

func castText(c rules.CheckContext) string {
	if c.Cast == nil {
		return ""
	}
	return c.Cast.Text
}

func (l *library) containsText(ctx context.Context, c rules.CheckContext) (rules.CheckResult, error) {
	return containsCheck(c, "Text", castText(c))
}

func (l *library) textMatchesPattern(ctx context.Context, c rules.CheckContext) (rules.CheckResult, error) {
	pattern, err := argString(c.Rule, "pattern", true)
	if err != nil {
		return rules.CheckResult{}, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return rules.CheckResult{}, &rules.ConfigurationError{Reason: fmt.Sprintf("rule %s: invalid pattern: %v", c.Rule.Name, err)}
	}
	if re.MatchString(castText(c)) {
		return pass("Text matches pattern /%s/", pattern)
	}
	return fail("Text does not match pattern /%s/", pattern)
}

func (l *library) castLength(ctx context.Context, c rules.CheckContext) (rules.CheckResult, error) {
	min, hasMin, err := argInt(c.Rule, "min", false)
	if err != nil {
		return rules.CheckResult{}, err
	}
	max, hasMax, err := argInt(c.Rule, "max", false)
	if err != nil {
		return rules.CheckResult{}, err
	}

	length := int64(utf8.RuneCountInString(castText(c)))
	if hasMin && length < min {
		return fail("Cast is %d characters, fewer than %d", length, min)
	}
	if hasMax && length > max {
		return fail("Cast is %d characters, more than %d", length, max)
	}
	return pass("Cast length %d is within bounds", length)
}

func (l *library) hasMinFollowers(ctx context.Context, c rules.CheckContext) (rules.CheckResult, error) {
	min, _, err := argInt(c.Rule, "minFollowers", true)
	if err != nil {
		return rules.CheckResult{}, err
	}
	if c.User.FollowerCount >= min {
		return pass("has at least %d followers", min)
	}
	return fail("has %d followers, fewer than %d", c.User.FollowerCount, min)
}

func (l *library) notNewAccount(ctx context.Context, c rules.CheckContext) (rules.CheckResult, error) {
	days, _, err := argInt(c.Rule, "days", true)
	if err != nil {
		return rules.CheckResult{}, err
	}
	if c.User.RegisteredAt.IsZero() {
		return fail("account age is unknown")
	}
	age := c.User.AccountAge(l.deps.Now())
	if age > time.Duration(days)*24*time.Hour {
		return pass("account older than %d days", days)
	}
	return fail("account is %d days old, newer than %d days", int64(age.Hours()/24), days)
}

func (l *library) userFidInRange(ctx context.Context, c rules.CheckContext) (rules.CheckResult, error) {
	min, hasMin, err := argInt(c.Rule, "minFid", false)
	if err != nil {
		return rules.CheckResult{}, err
	}
	max, hasMax, err := argInt(c.Rule, "maxFid", false)
	if err != nil {
		return rules.CheckResult{}, err
	}

	fid := c.User.FID
	if hasMin && fid < min {
		return fail("FID %d is less than %d", fid, min)
	}
	if hasMax && fid > max {
		return fail("FID %d is greater than %d", fid, max)
	}
	return pass("FID %d is within range", fid)
}

func (l *library) userProfileContainsText(ctx context.Context, c rules.CheckContext) (rules.CheckResult, error) {
	return containsCheck(c, "Profile", c.User.Bio)
}

func (l *library) userDisplayNameContainsText(ctx context.Context, c rules.CheckContext) (rules.CheckResult, error) {
	return containsCheck(c, "Display name", c.User.DisplayName)
}

func (l *library) userHasPowerBadge(ctx context.Context, c rules.CheckContext) (rules.CheckResult, error) {
	if c.User.PowerBadge {
		return pass("@%s has a power badge", c.User.Handle())
	}
	return fail("@%s does not have a power badge", c.User.Handle())
}

func (l *library) userIsCohost(ctx context.Context, c rules.CheckContext) (rules.CheckResult, error) {
	if l.deps.Graph == nil {
		return rules.CheckResult{}, &rules.ConfigurationError{Reason: "userIsCohost requires a social graph client"}
	}
	if c.Channel == nil {
		return rules.CheckResult{}, &rules.ConfigurationError{Reason: "userIsCohost requires a channel"}
	}
	ok, err := l.deps.Graph.IsCohost(ctx, c.Channel.ID, c.User.FID)
	if err != nil {
		return rules.CheckResult{}, err
	}
	if ok {
		return pass("@%s is a cohost", c.User.Handle())
	}
	return fail("@%s is not a cohost", c.User.Handle())
}

func (l *library) userFollowedBy(ctx context.Context, c rules.CheckContext) (rules.CheckResult, error) {
	username, err := argString(c.Rule, "username", true)
	if err != nil {
		return rules.CheckResult{}, err
	}
	if l.deps.Graph == nil {
		return rules.CheckResult{}, &rules.ConfigurationError{Reason: "userFollowedBy requires a social graph client"}
	}
	username = strings.TrimPrefix(username, "@")
	ok, err := l.deps.Graph.IsFollowedBy(ctx, c.User.FID, username)
	if err != nil {
		return rules.CheckResult{}, err
	}
	if ok {
		return pass("@%s is followed by @%s", c.User.Handle(), username)
	}
	return fail("@%s is not followed by @%s", c.User.Handle(), username)
}

func (l *library) requiresErc20(ctx context.Context, c rules.CheckContext) (rules.CheckResult, error) {
	chainID, err := argString(c.Rule, "chainId", true)
	if err != nil {
		return rules.CheckResult{}, err
	}
	contract, err := argString(c.Rule, "contractAddress", true)
	if err != nil {
		return rules.CheckResult{}, err
	}
	minRaw, err := argString(c.Rule, "minBalance", false)
	if err != nil {
		return rules.CheckResult{}, err
	}
	min := big.NewInt(1)
	if minRaw != "" {
		if _, ok := min.SetString(minRaw, 10); !ok {
			return rules.CheckResult{}, invalidArg(c.Rule.Name, "minBalance", minRaw)
		}
	}
	if l.deps.Tokens == nil {
		return rules.CheckResult{}, &rules.ConfigurationError{Reason: "requiresErc20 requires a token oracle"}
	}

	if len(c.User.VerifiedAddresses) == 0 {
		return fail("@%s has no verified addresses", c.User.Handle())
	}
	balance, err := l.deps.Tokens.ERC20Balance(ctx, chainID, contract, c.User.VerifiedAddresses)
	if err != nil {
		return rules.CheckResult{}, err
	}
	if balance != nil && balance.Cmp(min) >= 0 {
		return pass("@%s holds at least %s of %s", c.User.Handle(), min.String(), contract)
	}
	return fail("@%s holds less than %s of %s", c.User.Handle(), min.String(), contract)
}
