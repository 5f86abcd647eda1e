// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package testexpr

import (
	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/sql/opt/memo"
	"github.com/cockroachdb/cascades/pkg/sql/opt/xform"
)

// Rules returns every toy rule. Scans of tables missing from the catalog are
// not implemented.
func Rules(cat *Catalog) []xform.Rule {
	return []xform.Rule{
		commuteJoin{},
		associateJoin{},
		implementScan{cat: cat},
		implementJoin{name: opt.ImplementHashJoin, op: &HashJoin{}},
		implementJoin{name: opt.ImplementMergeJoin, op: &MergeJoin{}},
		implementJoin{name: opt.ImplementLoopJoin, op: &LoopJoin{}},
	}
}

// NewRuleRegistry returns a registry holding every toy rule.
func NewRuleRegistry(cat *Catalog) (*xform.RuleRegistry, error) {
	return xform.NewRuleRegistry(Rules(cat)...)
}

// commuteJoin rewrites (Join A B) as (Join B A).
type commuteJoin struct{}

func (commuteJoin) Name() opt.RuleName { return opt.CommuteJoin }

func (commuteJoin) Apply(e *memo.MultiExpr, _ *xform.RuleContext) []memo.Node {
	if _, ok := e.Op().(*Join); !ok {
		return nil
	}
	return []memo.Node{
		memo.Tree(e.Op(), memo.GroupRef(e.Child(1)), memo.GroupRef(e.Child(0))),
	}
}

// associateJoin rewrites (Join (Join A B) C) as (Join A (Join B C)), for each
// join in the left input's group.
type associateJoin struct{}

func (associateJoin) Name() opt.RuleName { return opt.AssociateJoin }

func (associateJoin) Apply(e *memo.MultiExpr, ctx *xform.RuleContext) []memo.Node {
	if _, ok := e.Op().(*Join); !ok {
		return nil
	}
	var res []memo.Node
	for _, left := range ctx.LogicalMembers(e.Child(0)) {
		if _, ok := left.Op().(*Join); !ok {
			continue
		}
		res = append(res, memo.Tree(e.Op(),
			memo.GroupRef(left.Child(0)),
			memo.Tree(left.Op(), memo.GroupRef(left.Child(1)), memo.GroupRef(e.Child(1))),
		))
	}
	return res
}

// implementScan implements (Scan t) as (TableScan t), in the order the table
// is stored in.
type implementScan struct {
	cat *Catalog
}

func (implementScan) Name() opt.RuleName { return opt.ImplementScan }

func (r implementScan) Apply(e *memo.MultiExpr, _ *xform.RuleContext) []memo.Node {
	scan, ok := e.Op().(*Scan)
	if !ok {
		return nil
	}
	tab, ok := r.cat.Table(scan.Table)
	if !ok {
		return nil
	}
	return []memo.Node{memo.Tree(&TableScan{Table: tab.Name, Ordering: tab.Ordering})}
}

// implementJoin implements (Join A B) with a physical join operator.
type implementJoin struct {
	name opt.RuleName
	op   opt.Operator
}

func (r implementJoin) Name() opt.RuleName { return r.name }

func (r implementJoin) Apply(e *memo.MultiExpr, _ *xform.RuleContext) []memo.Node {
	if _, ok := e.Op().(*Join); !ok {
		return nil
	}
	return []memo.Node{memo.Tree(r.op, memo.GroupRef(e.Child(0)), memo.GroupRef(e.Child(1)))}
}
