// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package xform

import (
	"github.com/cockroachdb/cascades/pkg/sql/opt/memo"
	"github.com/cockroachdb/cascades/pkg/sql/opt/props"
	"github.com/cockroachdb/cascades/pkg/sql/opt/props/physical"
)

// Coster is used by the optimizer to assign a cost to a candidate physical
// expression. The optimizer adds the costs of the best plans for the
// candidate's children to the returned cost, so ComputeCost only accounts
// for the operator itself.
//
// An error marked with opt.ErrInvalidCost, or a cost which fails
// Cost.Validate, excludes the candidate from consideration. Any other error is
// fatal to the optimization.
type Coster interface {
	// ComputeCost returns the estimated cost of executing the candidate
	// expression, excluding its children, under the required properties.
	// childCosts holds the cost of the best plan of each child group.
	ComputeCost(
		candidate *memo.MultiExpr, required *physical.Required, childCosts []memo.Cost,
	) (memo.Cost, error)
}

// StatisticsBuilder derives the statistics of a group from one of its members.
type StatisticsBuilder interface {
	// DeriveStatistics returns the statistics of e's group. It returns false if
	// the statistics cannot be derived from e, in which case the next member
	// of the group is tried.
	DeriveStatistics(e *memo.MultiExpr, ctx StatsContext) (*props.Statistics, bool)
}

// StatsContext gives a StatisticsBuilder access to the statistics of the
// children of the expression it derives from.
type StatsContext interface {
	// ChildStatistics returns the statistics of the nth child group, or nil if
	// they could not be derived.
	ChildStatistics(nth int) *props.Statistics
}

// statsContext is the StatsContext handed out by the optimizer.
type statsContext struct {
	o *Optimizer
	e *memo.MultiExpr
}

var _ StatsContext = statsContext{}

func (c statsContext) ChildStatistics(nth int) *props.Statistics {
	g, err := c.o.mem.Group(c.e.Child(nth))
	if err != nil {
		return nil
	}
	return g.Statistics()
}
