// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package physical_test

import (
	"testing"

	"github.com/cockroachdb/cascades/pkg/sql/opt/props/physical"
	"github.com/stretchr/testify/require"
)

func TestOrderingColumn(t *testing.T) {
	c := physical.MakeOrderingColumn(3, true /* descending */)
	require.Equal(t, 3, c.ID())
	require.True(t, c.Descending())
	require.False(t, c.Ascending())
	require.Equal(t, "-3", c.String())
	require.Equal(t, "+3", physical.MakeOrderingColumn(3, false).String())
}

func TestOrderingProvides(t *testing.T) {
	testcases := []struct {
		ordering string
		required string
		expected bool
	}{
		{ordering: "", required: "", expected: true},
		{ordering: "+1", required: "", expected: true},
		{ordering: "", required: "+1", expected: false},
		{ordering: "+1,-2", required: "+1", expected: true},
		{ordering: "+1,-2", required: "+1,-2", expected: true},
		{ordering: "+1", required: "+1,-2", expected: false},
		{ordering: "+1,-2", required: "-2", expected: false},
		{ordering: "-1", required: "+1", expected: false},
	}

	for _, tc := range testcases {
		o, err := physical.ParseOrdering(tc.ordering)
		require.NoError(t, err)
		r, err := physical.ParseOrdering(tc.required)
		require.NoError(t, err)
		if actual := o.Provides(r); actual != tc.expected {
			t.Errorf("%q provides %q: expected %t, got %t", tc.ordering, tc.required, tc.expected, actual)
		}
	}
}

func TestParseOrdering(t *testing.T) {
	o, err := physical.ParseOrdering(" +1, -2 ")
	require.NoError(t, err)
	require.Equal(t, physical.Ordering{1, -2}, o)
	require.Equal(t, "+1,-2", o.String())

	for _, bad := range []string{"1", "+", "+x", "-0", "+1,,"} {
		_, err := physical.ParseOrdering(bad)
		require.Error(t, err, bad)
	}
}

func TestRequired(t *testing.T) {
	require.True(t, physical.MinRequired.Any())
	require.Equal(t, "[]", physical.MinRequired.String())

	r := &physical.Required{Ordering: physical.Ordering{1}}
	require.False(t, r.Any())
	require.Equal(t, "[ordering: +1]", r.String())
	require.True(t, r.Equals(&physical.Required{Ordering: physical.Ordering{1}}))
	require.False(t, r.Equals(physical.MinRequired))
}

type sortedScan struct {
	col int
}

func (s sortedScan) CanProvide(required *physical.Required) bool {
	return physical.Ordering{physical.OrderingColumn(s.col)}.Provides(required.Ordering)
}

func (s sortedScan) ChildRequired(*physical.Required, int) *physical.Required {
	return nil
}

func TestProvider(t *testing.T) {
	ordered := &physical.Required{Ordering: physical.Ordering{2}}

	// Operators which don't implement Provider only satisfy Any.
	require.True(t, physical.CanProvide(struct{}{}, physical.MinRequired))
	require.False(t, physical.CanProvide(struct{}{}, ordered))
	require.Equal(t, physical.MinRequired, physical.ChildRequired(struct{}{}, ordered, 0))

	require.True(t, physical.CanProvide(sortedScan{col: 2}, ordered))
	require.False(t, physical.CanProvide(sortedScan{col: 1}, ordered))
	require.Equal(t, physical.MinRequired, physical.ChildRequired(sortedScan{col: 2}, ordered, 0))
}
