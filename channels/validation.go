package channels

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/francisco-leal/ModBot/rules"
	"github.com/francisco-leal/ModBot/rules/predicates"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid channel configuration")

// maxActions bounds the number of actions in one rule set
const maxActions = 20

var channelIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// ActionValidator checks an action against the registered handlers
type ActionValidator interface {
	ValidateAction(action rules.Action) error
}

// Validator checks an edited channel configuration before it is stored
type Validator struct {
	rules   *rules.Registry
	actions ActionValidator
}

// NewValidator creates a validator resolving names through the given registries
func NewValidator(registry *rules.Registry, actions ActionValidator) *Validator {
	return &Validator{rules: registry, actions: actions}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate returns an error describing the first problem found in channel
func (v *Validator) Validate(channel *rules.ModeratedChannel) error {
	if channel == nil {
		return invalid("channel is required")
	}
	if !channelIDPattern.MatchString(channel.ID) {
		return invalid("channel id %q must be lowercase letters, digits or dashes", channel.ID)
	}
	if channel.OwnerID <= 0 {
		return invalid("channel %s has no owner", channel.ID)
	}
	if channel.Plan != "" {
		if _, ok := Plans[channel.Plan]; !ok {
			return invalid("unknown plan %q", channel.Plan)
		}
	}

	if err := v.validateRuleSet("inclusion", channel.InclusionRuleSet); err != nil {
		return err
	}
	if err := v.validateRuleSet("exclusion", channel.ExclusionRuleSet); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateRuleSet(role string, rs *rules.RuleSet) error {
	if rs == nil {
		return nil
	}

	switch rs.Target {
	case rules.TargetAll, rules.TargetRoot, rules.TargetReply, "":
	default:
		return invalid("%s rule set has invalid target %q", role, rs.Target)
	}
	switch rs.LogicType {
	case rules.LogicAnd, rules.LogicOr, "":
	default:
		return invalid("%s rule set has invalid logic type %q", role, rs.LogicType)
	}

	if err := v.validateRule(role, rs.Rule, 0); err != nil {
		return err
	}

	if rs.HasRules() && len(rs.Actions) == 0 && role == "exclusion" {
		return invalid("exclusion rule set has rules but no actions")
	}
	if len(rs.Actions) > maxActions {
		return invalid("%s rule set has %d actions, maximum allowed is %d", role, len(rs.Actions), maxActions)
	}
	for i, action := range rs.Actions {
		if v.actions == nil {
			break
		}
		if err := v.actions.ValidateAction(action); err != nil {
			return fmt.Errorf("%w: %s action %d: %w", ErrInvalidConfig, role, i, err)
		}
	}
	return nil
}

func (v *Validator) validateRule(role string, rule rules.Rule, depth int) error {
	if depth > rules.MaxDepth {
		return invalid("%s rule tree is deeper than %d levels", role, rules.MaxDepth)
	}

	switch node := rule.(type) {
	case nil:
		return nil
	case *rules.Logical:
		if node.Operation != rules.OpAnd && node.Operation != rules.OpOr {
			return invalid("%s rule has invalid operation %q", role, node.Operation)
		}
		for _, child := range node.Conditions {
			if err := v.validateRule(role, child, depth+1); err != nil {
				return err
			}
		}
		return nil
	case *rules.Condition:
		return v.validateCondition(role, node)
	case *rules.Unrecognized:
		return invalid("%s rule contains an unrecognized node", role)
	default:
		return invalid("%s rule has unexpected node %T", role, rule)
	}
}

func (v *Validator) validateCondition(role string, c *rules.Condition) error {
	def, ok := v.rules.Definition(c.Name)
	if !ok {
		return fmt.Errorf("%w: %s rule: %w", ErrInvalidConfig, role, &rules.UnknownRuleError{Name: c.Name})
	}
	if c.Invert && !def.Invertable {
		return invalid("%s rule %s cannot be inverted", role, c.Name)
	}

	for key, arg := range def.Args {
		if !arg.Required {
			continue
		}
		value, present := c.Args[key]
		if s, isString := value.(string); !present || value == nil || (isString && strings.TrimSpace(s) == "") {
			return invalid("%s rule %s is missing %s", role, c.Name, arg.FriendlyName)
		}
	}

	switch c.Name {
	case "textMatchesPattern":
		pattern, _ := c.Args["pattern"].(string)
		if _, err := regexp.Compile(pattern); err != nil {
			return invalid("%s rule %s has an invalid pattern: %v", role, c.Name, err)
		}
	case "celExpression":
		expression, _ := c.Args["expression"].(string)
		if err := predicates.ValidateExpression(expression); err != nil {
			return invalid("%s rule %s has an invalid expression: %v", role, c.Name, err)
		}
	}
	return nil
}
