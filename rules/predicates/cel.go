package predicates

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/francisco-leal/ModBot/farcaster"
	"github.com/francisco-leal/ModBot/rules"
)

// celCostLimit bounds how much work a single expression may do
const celCostLimit = 1000000

// celCache compiles expressions once and reuses the programs.
// Expressions are keyed by their source text.
type celCache struct {
	env      *cel.Env
	programs map[string]cel.Program
	mu       sync.RWMutex
}

func newCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("user", cel.DynType),
		cel.Variable("cast", cel.DynType),
	)
}

func newCELCache() *celCache {
	env, err := newCELEnv()
	if err != nil {
		// The declarations are static, so this only fails on a broken build
		panic(fmt.Sprintf("predicates: failed to create CEL environment: %v", err))
	}
	return &celCache{
		env:      env,
		programs: make(map[string]cel.Program),
	}
}

func (cc *celCache) program(expression string) (cel.Program, error) {
	cc.mu.RLock()
	prog, ok := cc.programs[expression]
	cc.mu.RUnlock()
	if ok {
		return prog, nil
	}

	ast, issues := cc.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prog, err := cc.env.Program(ast, cel.CostLimit(celCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	cc.mu.Lock()
	cc.programs[expression] = prog
	cc.mu.Unlock()
	return prog, nil
}

// ValidateExpression reports whether expression compiles in the environment
// used by the celExpression predicate
func ValidateExpression(expression string) error {
	env, err := newCELEnv()
	if err != nil {
		return err
	}
	_, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return issues.Err()
	}
	return nil
}

func userFacts(u *farcaster.User) map[string]any {
	return map[string]any{
		"fid":               u.FID,
		"username":          u.Username,
		"displayName":       u.DisplayName,
		"bio":               u.Bio,
		"followerCount":     u.FollowerCount,
		"followingCount":    u.FollowingCount,
		"powerBadge":        u.PowerBadge,
		"verifiedAddresses": u.VerifiedAddresses,
	}
}

func castFacts(c *farcaster.Cast) map[string]any {
	if c == nil {
		return map[string]any{}
	}
	return map[string]any{
		"hash":       c.Hash,
		"text":       c.Text,
		"parentHash": c.ParentHash,
		"parentUrl":  c.ParentURL,
		"isReply":    c.IsReply(),
	}
}

// celExpression treats a non-boolean result as a failed check
func (l *library) celExpression(ctx context.Context, c rules.CheckContext) (rules.CheckResult, error) {
	expression, err := argString(c.Rule, "expression", true)
	if err != nil {
		return rules.CheckResult{}, err
	}
	prog, err := l.cel.program(expression)
	if err != nil {
		return rules.CheckResult{}, &rules.ConfigurationError{Reason: fmt.Sprintf("rule %s: %v", c.Rule.Name, err)}
	}

	out, _, err := prog.ContextEval(ctx, map[string]any{
		"user": userFacts(c.User),
		"cast": castFacts(c.Cast),
	})
	if err != nil {
		return rules.CheckResult{}, err
	}

	if matched, ok := out.Value().(bool); ok && matched {
		return pass("Expression %q matched", expression)
	}
	return fail("Expression %q did not match", expression)
}
