// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package testexpr contains a small closed set of operators and rules over a
// toy catalog of tables. It exists to exercise the memo and the search driver
// in tests and in the optdemo command.
//
// The logical operators are Scan and Join. Explore rules commute and
// reassociate joins. Implement rules turn a Scan into a TableScan, and a Join
// into a HashJoin, MergeJoin or LoopJoin. Every table is keyed on column 1, and
// a MergeJoin joins on that column.
package testexpr

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/sql/opt/props/physical"
)

// mergeOrdering is the ordering on the join column, provided and required by
// MergeJoin.
var mergeOrdering = physical.Ordering{physical.MakeOrderingColumn(1, false /* descending */)}

var (
	scanImplementRules = opt.MakeRuleSet(opt.ImplementScan)
	joinExploreRules   = opt.MakeRuleSet(opt.CommuteJoin, opt.AssociateJoin)
	joinImplementRules = opt.MakeRuleSet(
		opt.ImplementHashJoin, opt.ImplementMergeJoin, opt.ImplementLoopJoin,
	)
)

// Scan is the logical operator which reads all the rows of a table.
type Scan struct {
	Table string
}

var _ opt.Operator = &Scan{}

func (s *Scan) Arity() int { return 0 }

func (s *Scan) Equals(other opt.Operator) bool {
	o, ok := other.(*Scan)
	return ok && o.Table == s.Table
}

func (s *Scan) Hash() uint64 { return xxhash.Sum64String("Scan/" + s.Table) }

func (s *Scan) String() string { return "Scan " + s.Table }

func (s *Scan) Explain(string) string { return "Scan " + s.Table }

func (s *Scan) ExploreRules() opt.RuleSet { return opt.RuleSet{} }

func (s *Scan) ImplementRules() opt.RuleSet { return scanImplementRules }

func (s *Scan) IsPhysical() bool { return false }

// Join is the logical inner join of its two inputs on column 1.
type Join struct{}

var _ opt.Operator = &Join{}

func (j *Join) Arity() int { return 2 }

func (j *Join) Equals(other opt.Operator) bool {
	_, ok := other.(*Join)
	return ok
}

func (j *Join) Hash() uint64 { return xxhash.Sum64String("Join") }

func (j *Join) String() string { return "Join" }

func (j *Join) Explain(string) string { return "Join" }

func (j *Join) ExploreRules() opt.RuleSet { return joinExploreRules }

func (j *Join) ImplementRules() opt.RuleSet { return joinImplementRules }

func (j *Join) IsPhysical() bool { return false }

// TableScan reads a table in the order in which it is stored.
type TableScan struct {
	Table    string
	Ordering physical.Ordering
}

var _ opt.Operator = &TableScan{}
var _ physical.Provider = &TableScan{}

func (s *TableScan) Arity() int { return 0 }

func (s *TableScan) Equals(other opt.Operator) bool {
	o, ok := other.(*TableScan)
	return ok && o.Table == s.Table && o.Ordering.Equals(s.Ordering)
}

func (s *TableScan) Hash() uint64 {
	return xxhash.Sum64String("TableScan/" + s.Table + "/" + s.Ordering.String())
}

func (s *TableScan) String() string { return "TableScan " + s.Table }

func (s *TableScan) Explain(prefix string) string {
	if s.Ordering.Empty() {
		return s.String()
	}
	return fmt.Sprintf("%s\n%sordering: %s", s, prefix, s.Ordering)
}

func (s *TableScan) ExploreRules() opt.RuleSet { return opt.RuleSet{} }

func (s *TableScan) ImplementRules() opt.RuleSet { return opt.RuleSet{} }

func (s *TableScan) IsPhysical() bool { return true }

// CanProvide is part of the physical.Provider interface.
func (s *TableScan) CanProvide(required *physical.Required) bool {
	return s.Ordering.Provides(required.Ordering)
}

// ChildRequired is part of the physical.Provider interface.
func (s *TableScan) ChildRequired(*physical.Required, int) *physical.Required {
	return physical.MinRequired
}

// joinOp holds the methods shared by the physical joins.
type joinOp struct{}

func (joinOp) Arity() int { return 2 }

func (joinOp) ExploreRules() opt.RuleSet { return opt.RuleSet{} }

func (joinOp) ImplementRules() opt.RuleSet { return opt.RuleSet{} }

func (joinOp) IsPhysical() bool { return true }

// HashJoin builds a hash table on its right input and looks up each row of its
// left input in it. It provides no ordering.
type HashJoin struct{ joinOp }

var _ opt.Operator = &HashJoin{}

func (j *HashJoin) Equals(other opt.Operator) bool {
	_, ok := other.(*HashJoin)
	return ok
}

func (j *HashJoin) Hash() uint64 { return xxhash.Sum64String("HashJoin") }

func (j *HashJoin) String() string { return "HashJoin" }

func (j *HashJoin) Explain(string) string { return "HashJoin" }

// MergeJoin merges its two inputs, which must both be ordered on the join
// column. Its output is ordered on the join column.
type MergeJoin struct{ joinOp }

var _ opt.Operator = &MergeJoin{}
var _ physical.Provider = &MergeJoin{}

func (j *MergeJoin) Equals(other opt.Operator) bool {
	_, ok := other.(*MergeJoin)
	return ok
}

func (j *MergeJoin) Hash() uint64 { return xxhash.Sum64String("MergeJoin") }

func (j *MergeJoin) String() string { return "MergeJoin" }

func (j *MergeJoin) Explain(prefix string) string {
	return fmt.Sprintf("MergeJoin\n%sordering: %s", prefix, mergeOrdering)
}

// CanProvide is part of the physical.Provider interface.
func (j *MergeJoin) CanProvide(required *physical.Required) bool {
	return mergeOrdering.Provides(required.Ordering)
}

// ChildRequired is part of the physical.Provider interface.
func (j *MergeJoin) ChildRequired(*physical.Required, int) *physical.Required {
	return &physical.Required{Ordering: mergeOrdering}
}

// LoopJoin compares every row of its left input with every row of its right
// input. It provides no ordering.
type LoopJoin struct{ joinOp }

var _ opt.Operator = &LoopJoin{}

func (j *LoopJoin) Equals(other opt.Operator) bool {
	_, ok := other.(*LoopJoin)
	return ok
}

func (j *LoopJoin) Hash() uint64 { return xxhash.Sum64String("LoopJoin") }

func (j *LoopJoin) String() string { return "LoopJoin" }

func (j *LoopJoin) Explain(string) string { return "LoopJoin" }
