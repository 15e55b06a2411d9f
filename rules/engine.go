package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// MaxDepth bounds how deeply rule trees may nest
const MaxDepth = 32

// NoRulesExplanation is reported for empty or unrecognized rule nodes
const NoRulesExplanation = "No rules"

// Engine evaluates rule trees against a user and cast.
// It holds no per-evaluation state and is safe for concurrent use once the
// registry is fully populated.
type Engine struct {
	registry *Registry
}

// NewEngine creates an engine that resolves predicates through registry
func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry}
}

// Registry returns the predicate registry the engine resolves names with
func (en *Engine) Registry() *Registry {
	return en.registry
}

// Evaluate walks the rule tree and returns its verdict, explanation and the
// node that decided the outcome.
//
// AND children run concurrently and all of them run, OR children run in order
// and stop at the first pass. Predicate and configuration errors abort the
// evaluation and are returned unchanged.
func (en *Engine) Evaluate(ctx context.Context, rule Rule, c CheckContext) (EvaluationResult, error) {
	return en.evaluate(ctx, rule, c, 0)
}

func (en *Engine) evaluate(ctx context.Context, rule Rule, c CheckContext, depth int) (EvaluationResult, error) {
	if depth > MaxDepth {
		return EvaluationResult{}, &ConfigurationError{Reason: fmt.Sprintf("rule tree deeper than %d levels", MaxDepth)}
	}

	switch node := rule.(type) {
	case *Condition:
		if node != nil {
			return en.evaluateCondition(ctx, node, c)
		}
	case *Logical:
		if node == nil || len(node.Conditions) == 0 {
			break
		}
		switch node.Operation {
		case OpAnd:
			return en.evaluateAnd(ctx, node, c, depth)
		case OpOr:
			return en.evaluateOr(ctx, node, c, depth)
		}
	}

	return EvaluationResult{Passed: false, Explanation: NoRulesExplanation, DecidingRule: rule}, nil
}

func (en *Engine) evaluateCondition(ctx context.Context, node *Condition, c CheckContext) (EvaluationResult, error) {
	check, err := en.registry.Lookup(node.Name)
	if err != nil {
		return EvaluationResult{}, err
	}

	c.Rule = node
	res, err := check.Check(ctx, c)
	if err != nil {
		var perr *PredicateError
		if errors.Is(err, ErrConfiguration) || errors.As(err, &perr) {
			return EvaluationResult{}, err
		}
		return EvaluationResult{}, &PredicateError{Rule: node.Name, Err: err}
	}

	return EvaluationResult{
		Passed:       res.Result != node.Invert,
		Explanation:  res.Message,
		DecidingRule: node,
	}, nil
}

func (en *Engine) evaluateAnd(ctx context.Context, node *Logical, c CheckContext, depth int) (EvaluationResult, error) {
	results := make([]EvaluationResult, len(node.Conditions))

	g, gctx := errgroup.WithContext(ctx)
	for i, child := range node.Conditions {
		g.Go(func() error {
			res, err := en.evaluate(gctx, child, c, depth+1)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return EvaluationResult{}, err
	}

	explanations := make([]string, 0, len(results))
	for _, res := range results {
		if !res.Passed {
			return EvaluationResult{Passed: false, Explanation: res.Explanation, DecidingRule: node}, nil
		}
		explanations = append(explanations, res.Explanation)
	}

	return EvaluationResult{
		Passed:       true,
		Explanation:  strings.Join(explanations, ", "),
		DecidingRule: node,
	}, nil
}

func (en *Engine) evaluateOr(ctx context.Context, node *Logical, c CheckContext, depth int) (EvaluationResult, error) {
	explanations := make([]string, 0, len(node.Conditions))
	for _, child := range node.Conditions {
		res, err := en.evaluate(ctx, child, c, depth+1)
		if err != nil {
			return EvaluationResult{}, err
		}
		if res.Passed {
			return res, nil
		}
		explanations = append(explanations, res.Explanation)
	}

	explanation := explanations[0]
	if len(explanations) > 1 {
		explanation = "Failed all checks: " + strings.Join(explanations, ", ")
	}

	return EvaluationResult{Passed: false, Explanation: explanation, DecidingRule: node}, nil
}
