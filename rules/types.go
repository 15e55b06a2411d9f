package rules

import (
	"sort"
	"time"

	"github.com/francisco-leal/ModBot/farcaster"
)

// RuleName identifies a registered predicate
type RuleName string

// ActionType identifies a registered action handler
type ActionType string

// LogicalOp combines the children of a Logical node
type LogicalOp string

const (
	OpAnd LogicalOp = "AND"
	OpOr  LogicalOp = "OR"
)

// LogicType is the flat "match all / match any" switch a rule set is edited with.
// It is compiled into a single top-level Logical node.
type LogicType string

const (
	LogicAnd LogicType = "and"
	LogicOr  LogicType = "or"
)

// Target selects which casts a rule set applies to
type Target string

const (
	TargetAll   Target = "all"
	TargetRoot  Target = "root"
	TargetReply Target = "reply"
)

// Args carries the decoded arguments of a condition or action
type Args map[string]any

// Rule is a node of a rule tree. It is implemented by *Condition, *Logical and
// *Unrecognized only.
type Rule interface {
	ruleNode()
}

// Condition is a leaf that calls a named predicate
type Condition struct {
	Name   RuleName
	Invert bool
	Args   Args
}

// Logical combines child rules with AND or OR
type Logical struct {
	Operation  LogicalOp
	Conditions []Rule
}

// Unrecognized is a stored rule document with no CONDITION or LOGICAL type.
// The raw document is kept so audit snapshots stay faithful.
type Unrecognized struct {
	Raw []byte
}

func (*Condition) ruleNode()    {}
func (*Logical) ruleNode()      {}
func (*Unrecognized) ruleNode() {}

// IsEmpty reports whether a rule tree has nothing to evaluate. A Logical node
// without children counts as "no rule configured".
func IsEmpty(r Rule) bool {
	switch node := r.(type) {
	case *Condition:
		return node == nil
	case *Logical:
		return node == nil || len(node.Conditions) == 0
	default:
		return true
	}
}

// Action is a step executed when a rule set matches
type Action struct {
	Type ActionType `json:"type"`
	Args Args       `json:"args,omitempty"`
}

// RuleSet is a rule tree plus the ordered actions to run when it passes
type RuleSet struct {
	ID        string
	Active    bool
	Target    Target
	LogicType LogicType
	Rule      Rule
	Actions   []Action
}

// HasRules reports whether the rule set exists and carries a non-empty tree
func (rs *RuleSet) HasRules() bool {
	return rs != nil && !IsEmpty(rs.Rule)
}

// CompileRuleSet wraps a flat list of conditions into one top-level Logical
// node according to the logic type. Unknown logic types default to AND.
func CompileRuleSet(logicType LogicType, conditions []Rule) *Logical {
	op := OpAnd
	if logicType == LogicOr {
		op = OpOr
	}
	return &Logical{
		Operation:  op,
		Conditions: conditions,
	}
}

// FIDSet is a set of Farcaster ids
type FIDSet map[int64]struct{}

// NewFIDSet builds a set from a list of fids
func NewFIDSet(fids ...int64) FIDSet {
	set := make(FIDSet, len(fids))
	for _, fid := range fids {
		set[fid] = struct{}{}
	}
	return set
}

// Contains reports whether fid is in the set
func (s FIDSet) Contains(fid int64) bool {
	_, ok := s[fid]
	return ok
}

// Add inserts fid and reports whether it was new
func (s FIDSet) Add(fid int64) bool {
	if _, ok := s[fid]; ok {
		return false
	}
	s[fid] = struct{}{}
	return true
}

// Sorted returns the members in ascending order
func (s FIDSet) Sorted() []int64 {
	out := make([]int64, 0, len(s))
	for fid := range s {
		out = append(out, fid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ModeratedChannel is a channel's moderation configuration. The engine reads it
// and never mutates it during evaluation.
type ModeratedChannel struct {
	ID               string
	OwnerID          int64
	URL              string
	ImageURL         string
	Active           bool
	Plan             string
	ExcludedUserIDs  FIDSet
	InclusionRuleSet *RuleSet
	ExclusionRuleSet *RuleSet
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsOwner reports whether the user owns the channel
func (c *ModeratedChannel) IsOwner(user *farcaster.User) bool {
	return c != nil && user != nil && c.OwnerID == user.FID
}

// IsExcluded reports whether the user is on the channel's bypass list
func (c *ModeratedChannel) IsExcluded(user *farcaster.User) bool {
	return c != nil && user != nil && c.ExcludedUserIDs.Contains(user.FID)
}

// EvaluationResult contains the outcome of evaluating a rule tree
type EvaluationResult struct {
	Passed       bool
	Explanation  string
	DecidingRule Rule
}
