package policy

import (
	enc "github.com/named-data/ndnd/std/encoding"
)

// RuleKind distinguishes Data rules from Interest rules.
type RuleKind int

const (
	DataRule RuleKind = iota
	InterestRule
)

func (k RuleKind) String() string {
	switch k {
	case DataRule:
		return "data"
	case InterestRule:
		return "interest"
	default:
		return "unknown"
	}
}

// Rule pairs an ordered filter list with an ordered checker list.
// Rules are immutable after construction and owned by their RuleSet.
type Rule struct {
	id       string
	kind     RuleKind
	filters  []Filter
	checkers []Checker
}

// NewRule constructs a rule. At least one checker is required.
func NewRule(id string, kind RuleKind, filters []Filter, checkers []Checker) (*Rule, error) {
	if id == "" {
		return nil, ConfigError{Reason: "rule has no id"}
	}
	if len(checkers) == 0 {
		return nil, ConfigError{Context: id, Reason: "no <checker> specified"}
	}
	return &Rule{id: id, kind: kind, filters: filters, checkers: checkers}, nil
}

// Id returns the rule id used in diagnostics.
func (r *Rule) Id() string {
	return r.id
}

// Kind returns whether this is a Data or Interest rule.
func (r *Rule) Kind() RuleKind {
	return r.kind
}

// FilterCount returns the number of filters.
func (r *Rule) FilterCount() int {
	return len(r.filters)
}

// CheckerCount returns the number of checkers.
func (r *Rule) CheckerCount() int {
	return len(r.checkers)
}

// Match reports whether every filter accepts the name. A rule with no
// filters matches everything of its kind.
func (r *Rule) Match(name enc.Name) bool {
	for _, f := range r.filters {
		if !f.Match(name) {
			return false
		}
	}
	return true
}

// Check evaluates the checkers in configuration order, stopping at the
// first terminal verdict. VerdictContinue is returned only when every
// checker deferred to chain validation.
func (r *Rule) Check(args CheckArgs) Verdict {
	for _, c := range r.checkers {
		if verdict := c.Check(args); verdict != VerdictContinue {
			return verdict
		}
	}
	return VerdictContinue
}

// RuleSet holds the Data and Interest rules in load order.
// Evaluation order equals load order; there is no specificity
// heuristic.
type RuleSet struct {
	data     []*Rule
	interest []*Rule
}

func NewRuleSet() *RuleSet {
	return &RuleSet{}
}

// Add appends a rule to the list of its kind.
func (rs *RuleSet) Add(rule *Rule) {
	if rule.kind == DataRule {
		rs.data = append(rs.data, rule)
	} else {
		rs.interest = append(rs.interest, rule)
	}
}

// Rules returns the rules of a kind in load order.
func (rs *RuleSet) Rules(kind RuleKind) []*Rule {
	if kind == DataRule {
		return rs.data
	}
	return rs.interest
}

// FirstMatch returns the first rule of the kind whose filters all
// accept the name, or nil when no rule matches.
func (rs *RuleSet) FirstMatch(kind RuleKind, name enc.Name) *Rule {
	for _, rule := range rs.Rules(kind) {
		if rule.Match(name) {
			return rule
		}
	}
	return nil
}
