// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package physical

import "strings"

// Required properties are interesting characteristics of an expression that
// impact its layout, presentation, or location, but not its logical content.
// Examples include row order and column naming. The optimizer derives the
// best expression of a group separately for every set of required properties
// it is asked for, so the memo interns them and refers to them by id.
type Required struct {
	// Ordering specifies the sort order of result rows. Rows can be sorted by
	// one or more columns, each of which can be sorted in either ascending or
	// descending order. If Ordering is empty, then any order is acceptable.
	Ordering Ordering
}

// MinRequired are the default physical properties that require nothing and
// provide nothing.
var MinRequired = &Required{}

// Any is true if there are no required physical properties.
func (p *Required) Any() bool {
	return p.Ordering.Empty()
}

// Equals returns true if the two physical properties are identical.
func (p *Required) Equals(rhs *Required) bool {
	return p.Ordering.Equals(rhs.Ordering)
}

// String formats the properties, e.g. "[ordering: +1,-2]". Properties that
// require nothing format as "[]".
func (p *Required) String() string {
	var buf strings.Builder
	buf.WriteByte('[')
	if !p.Ordering.Empty() {
		buf.WriteString("ordering: ")
		buf.WriteString(p.Ordering.String())
	}
	buf.WriteByte(']')
	return buf.String()
}
