// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo

import (
	"math"
	"strconv"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
)

// Cost is the best-effort approximation of the actual cost of executing a
// particular operator tree. Costs are additive: the cost of a plan is the sum
// of the costs of its operators.
type Cost struct {
	C float64
}

// MaxCost is the maximum possible estimated cost. It's used to suppress memo
// group members during testing, by setting their cost so high that any other
// member will have a lower cost.
var MaxCost = Cost{C: math.Inf(+1)}

// Less returns true if this cost is lower than the given cost. Both costs are
// assumed to be non-negative.
func (c Cost) Less(other Cost) bool {
	// Two plans with the same cost can have slightly different floating point
	// results (e.g. same subcosts being added up in a different order). So we
	// treat plans with very similar cost as equal.
	//
	// We use "units of least precision" for similarity: this is the number of
	// representable floating point numbers in-between the two values. This is
	// better than a fixed epsilon because the allowed error is proportional to
	// the magnitude of the numbers. Because the mantissa is in the low bits, we
	// can just use the bit representations as integers.
	const ulpTolerance = 1000
	return math.Float64bits(c.C)+ulpTolerance <= math.Float64bits(other.C)
}

// Add adds the other cost to this cost.
func (c *Cost) Add(other Cost) {
	c.C += other.C
}

// Sub subtracts the other cost from this cost.
func (c *Cost) Sub(other Cost) {
	c.C -= other.C
}

// Validate returns an opt.ErrInvalidCost error if the cost is NaN, infinite or
// negative. Such costs are never recorded as winners.
func (c Cost) Validate() error {
	if math.IsNaN(c.C) || math.IsInf(c.C, 0) || c.C < 0 {
		return opt.NewInvalidCostError(c.C)
	}
	return nil
}

func (c Cost) String() string {
	return strconv.FormatFloat(c.C, 'f', 2, 64)
}
