// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package testexpr

import (
	"math"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/sql/opt/memo"
	"github.com/cockroachdb/cascades/pkg/sql/opt/props"
	"github.com/cockroachdb/cascades/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/cascades/pkg/sql/opt/xform"
	"github.com/cockroachdb/errors"
)

// unknownRowCount is used for groups without statistics.
const unknownRowCount = 1000

// Coster is a toy cost model, in which the cost of an operator is the number
// of rows it touches:
//
//	TableScan: rows
//	HashJoin:  left + 2 * right (the right input is hashed)
//	MergeJoin: left + right
//	LoopJoin:  left * right
type Coster struct {
	mem *memo.Memo
	cat *Catalog
}

var _ xform.Coster = &Coster{}

// NewCoster returns a coster for the expressions of the given memo.
func NewCoster(mem *memo.Memo, cat *Catalog) *Coster {
	return &Coster{mem: mem, cat: cat}
}

// ComputeCost is part of the xform.Coster interface.
func (c *Coster) ComputeCost(
	candidate *memo.MultiExpr, required *physical.Required, childCosts []memo.Cost,
) (memo.Cost, error) {
	switch t := candidate.Op().(type) {
	case *TableScan:
		tab, ok := c.cat.Table(t.Table)
		if !ok {
			return memo.Cost{}, errors.AssertionFailedf("unknown table %s", t.Table)
		}
		if tab.InvalidCost {
			return memo.Cost{}, opt.NewInvalidCostError(math.NaN())
		}
		return memo.Cost{C: c.rowCount(candidate.Group())}, nil

	case *HashJoin:
		left, right := c.rowCount(candidate.Child(0)), c.rowCount(candidate.Child(1))
		return memo.Cost{C: left + 2*right}, nil

	case *MergeJoin:
		left, right := c.rowCount(candidate.Child(0)), c.rowCount(candidate.Child(1))
		return memo.Cost{C: left + right}, nil

	case *LoopJoin:
		left, right := c.rowCount(candidate.Child(0)), c.rowCount(candidate.Child(1))
		return memo.Cost{C: left * right}, nil
	}
	return memo.Cost{}, errors.AssertionFailedf("cannot cost operator %s", candidate.Op())
}

func (c *Coster) rowCount(id opt.GroupID) float64 {
	g, err := c.mem.Group(id)
	if err != nil {
		return unknownRowCount
	}
	if s := g.Statistics(); s != nil {
		return s.RowCount
	}
	return unknownRowCount
}

// StatisticsBuilder derives the row count of scans from the catalog, and the
// row count of joins as the larger of the row counts of their inputs (every
// join is a key join on column 1).
type StatisticsBuilder struct {
	cat *Catalog
}

var _ xform.StatisticsBuilder = &StatisticsBuilder{}

// NewStatisticsBuilder returns a statistics builder over the given catalog.
func NewStatisticsBuilder(cat *Catalog) *StatisticsBuilder {
	return &StatisticsBuilder{cat: cat}
}

// DeriveStatistics is part of the xform.StatisticsBuilder interface.
func (sb *StatisticsBuilder) DeriveStatistics(
	e *memo.MultiExpr, ctx xform.StatsContext,
) (*props.Statistics, bool) {
	var table string
	switch t := e.Op().(type) {
	case *Scan:
		table = t.Table
	case *TableScan:
		table = t.Table
	}
	if table != "" {
		tab, ok := sb.cat.Table(table)
		if !ok {
			return nil, false
		}
		s := &props.Statistics{}
		s.Init(tab.RowCount, true /* available */)
		return s, true
	}

	if e.ChildCount() != 2 {
		return nil, false
	}
	left, right := ctx.ChildStatistics(0), ctx.ChildStatistics(1)
	if left == nil || right == nil {
		return nil, false
	}
	s := &props.Statistics{}
	s.Init(math.Max(left.RowCount, right.RowCount), left.Available && right.Available)
	return s, true
}
