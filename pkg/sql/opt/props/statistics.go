// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package props

import (
	"fmt"
	"strconv"
)

// Statistics is a collection of measurements and statistics that is used by
// the coster to estimate the cost of expressions. Statistics are derived once
// per memo group: every expression in a group produces the same rows, so the
// first member able to derive them speaks for all of them.
type Statistics struct {
	// Available indicates whether the underlying table statistics for this
	// expression were available. If true, RowCount contains a real estimate.
	// If false, RowCount does not represent reality, and should only be used
	// for relative cost comparison.
	Available bool

	// RowCount is the estimated number of rows returned by the expression.
	// Note that - especially when there are no stats available - the scaling of
	// the row counts can be unpredictable; thus, a row count of 0.001 should be
	// considered 1000 times better than a row count of 1, even though if this was
	// a true row count they would be pretty much the same thing.
	RowCount float64
}

// Init initializes the data members of Statistics.
func (s *Statistics) Init(rowCount float64, available bool) {
	*s = Statistics{RowCount: rowCount, Available: available}
}

// CopyFrom copies a Statistics object which can then be modified
// independently.
func (s *Statistics) CopyFrom(other *Statistics) {
	*s = *other
}

func (s *Statistics) String() string {
	rows := strconv.FormatFloat(s.RowCount, 'f', 2, 64)
	if !s.Available {
		return fmt.Sprintf("[rows=%s, unavailable]", rows)
	}
	return fmt.Sprintf("[rows=%s]", rows)
}
