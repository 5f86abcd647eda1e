// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package opt_test

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/util/log"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/stretchr/testify/require"
)

func TestRuleNames(t *testing.T) {
	defer log.Scope(t).Close(t)

	testCases := []struct {
		rule      opt.RuleName
		name      string
		explore   bool
		implement bool
	}{
		{opt.NoRule, "NoRule", false, false},
		{opt.CommuteJoin, "CommuteJoin", true, false},
		{opt.AssociateJoin, "AssociateJoin", true, false},
		{opt.ImplementScan, "ImplementScan", false, true},
		{opt.ImplementHashJoin, "ImplementHashJoin", false, true},
		{opt.ImplementMergeJoin, "ImplementMergeJoin", false, true},
		{opt.ImplementLoopJoin, "ImplementLoopJoin", false, true},
		{opt.NumRuleNames, "UnknownRule", false, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.name, tc.rule.String())
			require.Equal(t, tc.explore, tc.rule.IsExplore())
			require.Equal(t, tc.implement, tc.rule.IsImplement())
		})
	}

	r, ok := opt.ParseRuleName("commutejoin")
	require.True(t, ok)
	require.Equal(t, opt.CommuteJoin, r)
	_, ok = opt.ParseRuleName("NoRule")
	require.False(t, ok)
	_, ok = opt.ParseRuleName("PushFilter")
	require.False(t, ok)
}

func TestRuleSet(t *testing.T) {
	defer log.Scope(t).Close(t)

	s := opt.MakeRuleSet(opt.ImplementLoopJoin, opt.CommuteJoin, opt.ImplementHashJoin)
	require.Equal(t, 3, s.Len())
	require.True(t, s.Contains(opt.CommuteJoin))
	require.False(t, s.Contains(opt.AssociateJoin))
	require.Equal(t, "{CommuteJoin,ImplementHashJoin,ImplementLoopJoin}", s.String())

	var order []opt.RuleName
	s.ForEach(func(r opt.RuleName) { order = append(order, r) })
	require.Equal(t, []opt.RuleName{opt.CommuteJoin, opt.ImplementHashJoin, opt.ImplementLoopJoin}, order)

	d := s.Difference(opt.MakeRuleSet(opt.ImplementHashJoin))
	require.Equal(t, "{CommuteJoin,ImplementLoopJoin}", d.String())
	require.Equal(t, 3, s.Len())

	d.Remove(opt.CommuteJoin)
	d.Remove(opt.ImplementLoopJoin)
	require.True(t, d.Empty())
	require.Equal(t, "{}", d.String())
}

func TestIDs(t *testing.T) {
	defer log.Scope(t).Close(t)

	require.Equal(t, "G3", opt.GroupID(3).String())
	require.Equal(t, opt.PhysicalPropsID(1), opt.MinPhysPropsID)

	// Ids are safe for reporting and are not redacted.
	s := redact.Sprintf("group %s expr %d", opt.GroupID(4), opt.MExprID(9))
	require.Equal(t, "group G4 expr 9", string(s.Redact()))
}

func TestErrorMarkers(t *testing.T) {
	defer log.Scope(t).Close(t)

	err := opt.NewInconsistentGroupError("expression %d belongs to %s", opt.MExprID(2), opt.GroupID(1))
	require.True(t, errors.Is(err, opt.ErrInconsistentGroup))
	require.False(t, errors.Is(err, opt.ErrNotFound))
	require.EqualError(t, err, "expression 2 belongs to G1")

	wrapped := errors.Wrap(opt.NewNotFoundError("no group %s", opt.GroupID(7)), "lookup")
	require.True(t, errors.Is(wrapped, opt.ErrNotFound))
	require.EqualError(t, wrapped, "lookup: no group G7")

	costErr := opt.NewInvalidCostError(-1)
	require.True(t, errors.Is(costErr, opt.ErrInvalidCost))
}

func TestCatchOptimizerError(t *testing.T) {
	defer log.Scope(t).Close(t)

	run := func(f func()) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = opt.CatchOptimizerError(r)
			}
		}()
		f()
		return nil
	}

	require.NoError(t, run(func() {}))
	require.Nil(t, opt.CatchOptimizerError(nil))

	err := run(func() { panic(opt.NewNotFoundError("missing")) })
	require.True(t, errors.Is(err, opt.ErrNotFound))

	// Runtime errors are converted to assertion failures.
	err = run(func() {
		var s []int
		idx := len(fmt.Sprint(s)) + 3
		_ = s[idx]
	})
	require.Error(t, err)
	require.True(t, errors.HasAssertionFailure(err))

	// Non-error panics are re-raised.
	require.Panics(t, func() {
		_ = run(func() { panic("not an error") })
	})
}
