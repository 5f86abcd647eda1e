// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package opt

import (
	"strings"

	"github.com/cockroachdb/cascades/pkg/util"
)

// RuleName enumerates the names of all the transformation rules known to the
// optimizer. The set is closed: every rule that can be registered has an entry
// here, which allows rule sets to be stored as small bitmaps.
type RuleName uint8

const (
	// NoRule is the provenance of expressions which were not derived by a
	// rule, e.g. those inserted from the original query tree.
	NoRule RuleName = iota

	// ------------------------------------------------------------
	// Explore Rules
	//
	// Explore rules generate logically equivalent alternatives that are
	// added to the same group as the matched expression.
	// ------------------------------------------------------------

	// CommuteJoin swaps the inputs of an inner join.
	CommuteJoin

	// AssociateJoin rotates a left-deep join pair into a right-deep one.
	AssociateJoin

	// ------------------------------------------------------------
	// Implement Rules
	//
	// Implement rules generate physical operators which can be costed.
	// ------------------------------------------------------------

	// ImplementScan implements a logical scan with a table scan.
	ImplementScan

	// ImplementHashJoin implements a join with a hash join.
	ImplementHashJoin

	// ImplementMergeJoin implements a join with a merge join, which requires
	// both inputs to be ordered on the join column.
	ImplementMergeJoin

	// ImplementLoopJoin implements a join with a nested loop join.
	ImplementLoopJoin

	// NumRuleNames tracks the total count of rule names.
	NumRuleNames
)

const (
	startExploreRule   = CommuteJoin
	endExploreRule     = AssociateJoin
	startImplementRule = ImplementScan
	endImplementRule   = ImplementLoopJoin
)

var ruleNames = [...]string{
	NoRule:             "NoRule",
	CommuteJoin:        "CommuteJoin",
	AssociateJoin:      "AssociateJoin",
	ImplementScan:      "ImplementScan",
	ImplementHashJoin:  "ImplementHashJoin",
	ImplementMergeJoin: "ImplementMergeJoin",
	ImplementLoopJoin:  "ImplementLoopJoin",
}

func (r RuleName) String() string {
	if int(r) < len(ruleNames) {
		return ruleNames[r]
	}
	return "UnknownRule"
}

// SafeValue implements the redact.SafeValue interface.
func (RuleName) SafeValue() {}

// IsExplore returns true if r is an explore rule.
func (r RuleName) IsExplore() bool {
	return r >= startExploreRule && r <= endExploreRule
}

// IsImplement returns true if r is an implement rule.
func (r RuleName) IsImplement() bool {
	return r >= startImplementRule && r <= endImplementRule
}

// ParseRuleName returns the rule with the given name. Matching is
// case-insensitive. NoRule is never returned with ok set.
func ParseRuleName(name string) (_ RuleName, ok bool) {
	for r := startExploreRule; r < NumRuleNames; r++ {
		if strings.EqualFold(ruleNames[r], name) {
			return r, true
		}
	}
	return NoRule, false
}

// RuleSet efficiently stores an unordered set of RuleNames.
type RuleSet struct {
	set util.FastIntSet
}

// MakeRuleSet returns a set containing the given rules.
func MakeRuleSet(rules ...RuleName) RuleSet {
	var s RuleSet
	for _, r := range rules {
		s.Add(r)
	}
	return s
}

// Add adds a rule to the set.
func (s *RuleSet) Add(r RuleName) {
	s.set.Add(int(r))
}

// Remove removes a rule from the set.
func (s *RuleSet) Remove(r RuleName) {
	s.set.Remove(int(r))
}

// Contains returns true if the set contains the rule.
func (s RuleSet) Contains(r RuleName) bool {
	return s.set.Contains(int(r))
}

// Len returns the number of rules in the set.
func (s RuleSet) Len() int {
	return s.set.Len()
}

// Empty returns true if the set is empty.
func (s RuleSet) Empty() bool {
	return s.set.Empty()
}

// ForEach calls f for each rule in the set, in increasing RuleName order.
func (s RuleSet) ForEach(f func(r RuleName)) {
	s.set.ForEach(func(i int) {
		f(RuleName(i))
	})
}

// Difference returns the rules in s that are not in other.
func (s RuleSet) Difference(other RuleSet) RuleSet {
	return RuleSet{set: s.set.Difference(other.set)}
}

func (s RuleSet) String() string {
	var b strings.Builder
	b.WriteByte('{')
	s.ForEach(func(r RuleName) {
		if b.Len() > 1 {
			b.WriteByte(',')
		}
		b.WriteString(r.String())
	})
	b.WriteByte('}')
	return b.String()
}
