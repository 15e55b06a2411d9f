package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	typeCondition = "CONDITION"
	typeLogical   = "LOGICAL"
)

// ruleDocument is the stored JSON shape shared by both rule variants
type ruleDocument struct {
	Type       string            `json:"type"`
	Name       string            `json:"name,omitempty"`
	Invert     bool              `json:"invert,omitempty"`
	Args       Args              `json:"args,omitempty"`
	Operation  string            `json:"operation,omitempty"`
	Conditions []json.RawMessage `json:"conditions,omitempty"`
}

// DecodeRule parses a stored rule document. Empty input decodes to nil.
func DecodeRule(data []byte) (Rule, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	return decodeRule(data, 0)
}

func decodeRule(data []byte, depth int) (Rule, error) {
	if depth > MaxDepth {
		return nil, &DeserializationError{What: "rule", Err: fmt.Errorf("tree deeper than %d levels", MaxDepth)}
	}

	var doc ruleDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &DeserializationError{What: "rule", Err: err}
	}

	switch doc.Type {
	case typeCondition:
		if doc.Name == "" {
			return nil, &DeserializationError{What: "rule", Err: fmt.Errorf("condition without a name")}
		}
		return &Condition{
			Name:   RuleName(doc.Name),
			Invert: doc.Invert,
			Args:   doc.Args,
		}, nil
	case typeLogical:
		op := LogicalOp(strings.ToUpper(doc.Operation))
		if op == "" {
			op = LogicalOp(strings.ToUpper(doc.Name))
		}
		node := &Logical{Operation: op}
		for i, raw := range doc.Conditions {
			child, err := decodeRule(raw, depth+1)
			if err != nil {
				return nil, fmt.Errorf("condition %d: %w", i, err)
			}
			if child == nil {
				continue
			}
			node.Conditions = append(node.Conditions, child)
		}
		return node, nil
	default:
		raw := make([]byte, len(data))
		copy(raw, data)
		return &Unrecognized{Raw: raw}, nil
	}
}

// EncodeRule serializes a rule tree into its stored form. A nil rule encodes
// to "{}".
func EncodeRule(r Rule) ([]byte, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r)
}

// MarshalJSON implements json.Marshaler
func (c *Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string `json:"type"`
		Name   string `json:"name"`
		Invert bool   `json:"invert"`
		Args   Args   `json:"args,omitempty"`
	}{typeCondition, string(c.Name), c.Invert, c.Args})
}

// MarshalJSON implements json.Marshaler
func (l *Logical) MarshalJSON() ([]byte, error) {
	conditions := l.Conditions
	if conditions == nil {
		conditions = []Rule{}
	}
	return json.Marshal(struct {
		Type       string `json:"type"`
		Name       string `json:"name"`
		Operation  string `json:"operation"`
		Conditions []Rule `json:"conditions"`
	}{typeLogical, strings.ToLower(string(l.Operation)), string(l.Operation), conditions})
}

// MarshalJSON implements json.Marshaler
func (u *Unrecognized) MarshalJSON() ([]byte, error) {
	if len(u.Raw) == 0 {
		return []byte("{}"), nil
	}
	return u.Raw, nil
}

// DecodeActions parses a stored action list
func DecodeActions(data []byte) ([]Action, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var actions []Action
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, &DeserializationError{What: "actions", Err: err}
	}
	for i, a := range actions {
		if a.Type == "" {
			return nil, &DeserializationError{What: "actions", Err: fmt.Errorf("action %d has no type", i)}
		}
	}
	return actions, nil
}

type ruleSetJSON struct {
	ID        string          `json:"id,omitempty"`
	Active    bool            `json:"active"`
	Target    Target          `json:"target"`
	LogicType LogicType       `json:"logicType,omitempty"`
	Rule      json.RawMessage `json:"rule"`
	Actions   []Action        `json:"actions"`
}

// MarshalJSON implements json.Marshaler
func (rs *RuleSet) MarshalJSON() ([]byte, error) {
	rule, err := EncodeRule(rs.Rule)
	if err != nil {
		return nil, err
	}
	actions := rs.Actions
	if actions == nil {
		actions = []Action{}
	}
	return json.Marshal(ruleSetJSON{
		ID:        rs.ID,
		Active:    rs.Active,
		Target:    rs.Target,
		LogicType: rs.LogicType,
		Rule:      rule,
		Actions:   actions,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (rs *RuleSet) UnmarshalJSON(data []byte) error {
	var raw ruleSetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return &DeserializationError{What: "rule set", Err: err}
	}
	rule, err := DecodeRule(raw.Rule)
	if err != nil {
		return err
	}
	target := raw.Target
	if target == "" {
		target = TargetAll
	}
	*rs = RuleSet{
		ID:        raw.ID,
		Active:    raw.Active,
		Target:    target,
		LogicType: raw.LogicType,
		Rule:      rule,
		Actions:   raw.Actions,
	}
	return nil
}

// MarshalJSON encodes the set as a sorted array
func (s FIDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes the set from an array of fids
func (s *FIDSet) UnmarshalJSON(data []byte) error {
	var fids []int64
	if err := json.Unmarshal(data, &fids); err != nil {
		return &DeserializationError{What: "fid set", Err: err}
	}
	*s = NewFIDSet(fids...)
	return nil
}

type channelJSON struct {
	ID               string    `json:"id"`
	OwnerID          int64     `json:"ownerId"`
	URL              string    `json:"url,omitempty"`
	ImageURL         string    `json:"imageUrl,omitempty"`
	Active           bool      `json:"active"`
	Plan             string    `json:"plan,omitempty"`
	ExcludedUserIDs  FIDSet    `json:"excludedUserIds"`
	InclusionRuleSet *RuleSet  `json:"inclusionRuleSet,omitempty"`
	ExclusionRuleSet *RuleSet  `json:"exclusionRuleSet,omitempty"`
	CreatedAt        time.Time `json:"createdAt,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (c *ModeratedChannel) MarshalJSON() ([]byte, error) {
	excluded := c.ExcludedUserIDs
	if excluded == nil {
		excluded = FIDSet{}
	}
	return json.Marshal(channelJSON{
		ID:               c.ID,
		OwnerID:          c.OwnerID,
		URL:              c.URL,
		ImageURL:         c.ImageURL,
		Active:           c.Active,
		Plan:             c.Plan,
		ExcludedUserIDs:  excluded,
		InclusionRuleSet: c.InclusionRuleSet,
		ExclusionRuleSet: c.ExclusionRuleSet,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (c *ModeratedChannel) UnmarshalJSON(data []byte) error {
	var raw channelJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return &DeserializationError{What: "channel", Err: err}
	}
	*c = ModeratedChannel(raw)
	if c.ExcludedUserIDs == nil {
		c.ExcludedUserIDs = FIDSet{}
	}
	return nil
}
