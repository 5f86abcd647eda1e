// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package xform

import (
	"strings"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/cascades/pkg/util/treeprinter"
)

// ExplainPlan formats the best plan for the group as a tree. Each node is the
// winner of its group under the properties its parent requires, followed by
// the cost of the plan rooted at it, e.g.:
//
//	HashJoin cost=3200.00
//	 ├── TableScan a cost=1000.00
//	 └── TableScan b cost=2000.00
//
// It returns an opt.ErrNotFound error if any group of the plan has no winner.
// A nil required is the same as physical.MinRequired.
func (o *Optimizer) ExplainPlan(id opt.GroupID, required *physical.Required) (string, error) {
	tp := treeprinter.New()
	if err := o.explainPlan(tp, id, orMinRequired(required)); err != nil {
		return "", err
	}
	return tp.String(), nil
}

func (o *Optimizer) explainPlan(
	tp treeprinter.Node, id opt.GroupID, required *physical.Required,
) error {
	e, cost, err := o.BestPlan(id, required)
	if err != nil {
		return err
	}
	var buf strings.Builder
	buf.WriteString(e.Op().String())
	if !required.Any() {
		buf.WriteByte(' ')
		buf.WriteString(required.String())
	}
	buf.WriteString(" cost=")
	buf.WriteString(cost.String())
	child := tp.Child(buf.String())
	for i := 0; i < e.ChildCount(); i++ {
		childRequired := physical.ChildRequired(e.Op(), required, i)
		if err := o.explainPlan(child, e.Child(i), childRequired); err != nil {
			return err
		}
	}
	return nil
}
