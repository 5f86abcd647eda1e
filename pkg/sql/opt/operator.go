// Copyright 2017 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package opt

// Operator describes the node of a multi-expression: a logical operator like a
// join, or a physical operator like a hash join. The memo never inspects an
// operator beyond this interface; concrete operators live with the rules that
// produce them.
//
// Operators are immutable. Equals and Hash must agree: two operators which
// are Equal must return the same Hash.
type Operator interface {
	// Arity is the exact number of child groups the operator takes.
	Arity() int

	// Equals returns true if the two operators are interchangeable. Child
	// groups are compared separately by the memo.
	Equals(other Operator) bool

	// Hash returns a deterministic hash of the operator's own fields.
	Hash() uint64

	// String returns a short debug representation, e.g. "HashJoin".
	String() string

	// Explain returns a human readable, possibly multi-line, description of
	// the operator. Every line after the first starts with prefix.
	Explain(prefix string) string

	// ExploreRules is the set of rules which may produce logical
	// alternatives for an expression with this operator.
	ExploreRules() RuleSet

	// ImplementRules is the set of rules which may produce physical
	// implementations for an expression with this operator.
	ImplementRules() RuleSet

	// IsPhysical returns true for operators that can be costed directly.
	IsPhysical() bool
}

// Phase distinguishes the two rule-driven passes over the memo.
type Phase uint8

const (
	// ExplorePhase generates logically equivalent alternatives.
	ExplorePhase Phase = iota

	// ImplementPhase generates physical implementations of logical
	// expressions.
	ImplementPhase
)

func (p Phase) String() string {
	switch p {
	case ExplorePhase:
		return "explore"
	case ImplementPhase:
		return "implement"
	}
	return "unknown"
}

// SafeValue implements the redact.SafeValue interface.
func (Phase) SafeValue() {}

// CandidateRules returns the rules the operator offers for the given phase.
// Physical operators never offer rules.
func CandidateRules(op Operator, phase Phase) RuleSet {
	if op.IsPhysical() {
		return RuleSet{}
	}
	switch phase {
	case ExplorePhase:
		return op.ExploreRules()
	case ImplementPhase:
		return op.ImplementRules()
	}
	return RuleSet{}
}
