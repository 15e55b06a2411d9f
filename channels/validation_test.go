package channels

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/francisco-leal/ModBot/rules"
	"github.com/francisco-leal/ModBot/rules/predicates"
)

type stubActions map[rules.ActionType]bool

func (s stubActions) ValidateAction(action rules.Action) error {
	if !s[action.Type] {
		return fmt.Errorf("no handler for action %q", action.Type)
	}
	return nil
}

func newTestValidator() *Validator {
	return NewValidator(
		predicates.NewRegistry(predicates.Dependencies{}),
		stubActions{"like": true, "ban": true, "hideQuietly": true},
	)
}

// TestValidateValidChannel verifies a well formed configuration passes
func TestValidateValidChannel(t *testing.T) {
	channel := testChannel("degen")
	channel.ExclusionRuleSet = &rules.RuleSet{
		Target: rules.TargetReply,
		Rule: &rules.Logical{Operation: rules.OpOr, Conditions: []rules.Rule{
			&rules.Condition{Name: "containsText", Invert: true, Args: rules.Args{"searchText": "spam"}},
			&rules.Condition{Name: "celExpression", Args: rules.Args{"expression": "user.followerCount < 5"}},
		}},
		Actions: []rules.Action{{Type: "ban"}},
	}

	if err := newTestValidator().Validate(channel); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

// TestValidateChannelID verifies channel ids follow Farcaster's format
func TestValidateChannelID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"degen", true},
		{"base-builders", true},
		{"1ofone", true},
		{"", false},
		{"Degen", false},
		{"-degen", false},
		{"degen channel", false},
		{strings.Repeat("a", 65), false},
	}

	validator := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := validator.Validate(testChannel(tt.id))
			if tt.valid && err != nil {
				t.Errorf("Expected %q to be valid, got %v", tt.id, err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected %q to be invalid, got %v", tt.id, err)
			}
		})
	}
}

// TestValidateRejects verifies each class of configuration problem
func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *rules.ModeratedChannel)
		want   string
	}{
		{
			name:   "unknown plan",
			mutate: func(c *rules.ModeratedChannel) { c.Plan = "gold" },
			want:   "plan",
		},
		{
			name:   "bad target",
			mutate: func(c *rules.ModeratedChannel) { c.InclusionRuleSet.Target = "quote" },
			want:   "target",
		},
		{
			name: "unknown rule",
			mutate: func(c *rules.ModeratedChannel) {
				c.InclusionRuleSet.Rule = &rules.Condition{Name: "isCool"}
			},
			want: "isCool",
		},
		{
			name: "missing required argument",
			mutate: func(c *rules.ModeratedChannel) {
				c.InclusionRuleSet.Rule = &rules.Condition{Name: "containsText", Args: rules.Args{"searchText": "  "}}
			},
			want: "Search Text",
		},
		{
			name: "non invertable rule",
			mutate: func(c *rules.ModeratedChannel) {
				c.InclusionRuleSet.Rule = &rules.Condition{Name: "alwaysInclude", Invert: true}
			},
			want: "cannot be inverted",
		},
		{
			name: "bad pattern",
			mutate: func(c *rules.ModeratedChannel) {
				c.InclusionRuleSet.Rule = &rules.Condition{Name: "textMatchesPattern", Args: rules.Args{"pattern": "("}}
			},
			want: "pattern",
		},
		{
			name: "bad expression",
			mutate: func(c *rules.ModeratedChannel) {
				c.InclusionRuleSet.Rule = &rules.Condition{Name: "celExpression", Args: rules.Args{"expression": "user.("}}
			},
			want: "expression",
		},
		{
			name: "unknown action",
			mutate: func(c *rules.ModeratedChannel) {
				c.InclusionRuleSet.Actions = []rules.Action{{Type: "nuke"}}
			},
			want: "nuke",
		},
		{
			name: "exclusion without actions",
			mutate: func(c *rules.ModeratedChannel) {
				c.ExclusionRuleSet = &rules.RuleSet{Rule: &rules.Condition{Name: "alwaysInclude"}}
			},
			want: "no actions",
		},
		{
			name: "unrecognized node",
			mutate: func(c *rules.ModeratedChannel) {
				c.InclusionRuleSet.Rule = &rules.Logical{Operation: rules.OpAnd, Conditions: []rules.Rule{&rules.Unrecognized{}}}
			},
			want: "unrecognized",
		},
	}

	validator := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			channel := testChannel("degen")
			tt.mutate(channel)

			err := validator.Validate(channel)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error to mention %q, got: %v", tt.want, err)
			}
		})
	}
}

// TestValidateDepth verifies absurdly deep trees are rejected
func TestValidateDepth(t *testing.T) {
	var rule rules.Rule = &rules.Condition{Name: "alwaysInclude"}
	for i := 0; i <= rules.MaxDepth+1; i++ {
		rule = &rules.Logical{Operation: rules.OpAnd, Conditions: []rules.Rule{rule}}
	}

	channel := testChannel("degen")
	channel.InclusionRuleSet.Rule = rule

	err := newTestValidator().Validate(channel)
	if err == nil || !strings.Contains(err.Error(), "deeper") {
		t.Errorf("Expected depth error, got %v", err)
	}
}
