// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package physical

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// OrderingColumn is the ordinal of a column, which is positive for an
// ascending ordering and negative for a descending one. Zero is not a valid
// column.
type OrderingColumn int32

// MakeOrderingColumn initializes an ordering column with a column and a flag
// indicating whether the ordering is descending.
func MakeOrderingColumn(col int, descending bool) OrderingColumn {
	if descending {
		return OrderingColumn(-col)
	}
	return OrderingColumn(col)
}

// ID returns the column that is being ordered.
func (c OrderingColumn) ID() int {
	if c < 0 {
		return int(-c)
	}
	return int(c)
}

// Ascending returns true if the ordering on this column is ascending.
func (c OrderingColumn) Ascending() bool {
	return c > 0
}

// Descending returns true if the ordering on this column is descending.
func (c OrderingColumn) Descending() bool {
	return c < 0
}

func (c OrderingColumn) String() string {
	if c.Descending() {
		return "-" + strconv.Itoa(c.ID())
	}
	return "+" + strconv.Itoa(c.ID())
}

// Ordering defines the order of rows provided or required by an operator. A
// negative value indicates descending order on the column id "-(value)".
type Ordering []OrderingColumn

// Empty returns true if the ordering is empty or unset.
func (o Ordering) Empty() bool {
	return len(o) == 0
}

// Provides returns true if the required ordering is a prefix of this one.
func (o Ordering) Provides(required Ordering) bool {
	if len(o) < len(required) {
		return false
	}
	for i := range required {
		if o[i] != required[i] {
			return false
		}
	}
	return true
}

// Equals returns true if the two orderings are identical.
func (o Ordering) Equals(rhs Ordering) bool {
	return len(o) == len(rhs) && o.Provides(rhs)
}

func (o Ordering) String() string {
	var buf strings.Builder
	for i, col := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(col.String())
	}
	return buf.String()
}

// ParseOrdering parses a comma separated list of signed column ids, e.g.
// "+1,-2". The empty string parses to the empty ordering.
func ParseOrdering(s string) (Ordering, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	o := make(Ordering, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) < 2 || (p[0] != '+' && p[0] != '-') {
			return nil, errors.Newf("invalid ordering column %q: expected +<col> or -<col>", p)
		}
		col, err := strconv.Atoi(p[1:])
		if err != nil {
			return nil, errors.Wrapf(err, "invalid ordering column %q", p)
		}
		if col <= 0 {
			return nil, errors.Newf("invalid ordering column %q: column ids start at 1", p)
		}
		o = append(o, MakeOrderingColumn(col, p[0] == '-'))
	}
	return o, nil
}
