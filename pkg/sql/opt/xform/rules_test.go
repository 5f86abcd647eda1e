// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package xform_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/sql/opt/memo"
	"github.com/cockroachdb/cascades/pkg/sql/opt/testutils/testexpr"
	"github.com/cockroachdb/cascades/pkg/sql/opt/xform"
	"github.com/cockroachdb/cascades/pkg/util/log"
	"github.com/cockroachdb/logtags"
	"github.com/stretchr/testify/require"
)

type namedRule opt.RuleName

func (r namedRule) Name() opt.RuleName { return opt.RuleName(r) }

func (namedRule) Apply(*memo.MultiExpr, *xform.RuleContext) []memo.Node { return nil }

func TestRuleRegistry(t *testing.T) {
	defer log.Scope(t).Close(t)

	reg, err := testexpr.NewRuleRegistry(testexpr.NewCatalog())
	require.NoError(t, err)
	require.Equal(t, int(opt.NumRuleNames)-1, reg.Names().Len())
	for r := opt.CommuteJoin; r < opt.NumRuleNames; r++ {
		rule, ok := reg.Lookup(r)
		require.True(t, ok, "%s", r)
		require.Equal(t, r, rule.Name())
	}
	_, ok := reg.Lookup(opt.NoRule)
	require.False(t, ok)
	_, ok = reg.Lookup(opt.NumRuleNames)
	require.False(t, ok)

	testCases := []struct {
		rule xform.Rule
		err  string
	}{
		{namedRule(opt.NoRule), "cannot register rule with name NoRule"},
		{namedRule(opt.NumRuleNames), "cannot register rule with name UnknownRule"},
		{namedRule(opt.CommuteJoin), "rule CommuteJoin is already registered"},
	}
	for _, tc := range testCases {
		require.EqualError(t, reg.Register(tc.rule), tc.err)
	}

	_, err = xform.NewRuleRegistry(namedRule(opt.ImplementScan), namedRule(opt.ImplementScan))
	require.EqualError(t, err, "rule ImplementScan is already registered")

	empty, err := xform.NewRuleRegistry()
	require.NoError(t, err)
	require.True(t, empty.Names().Empty())
}

// recordingRule records the logical members of the left input's group seen by
// the rule.
type recordingRule struct {
	seen []string
	tags string
}

func (*recordingRule) Name() opt.RuleName { return opt.CommuteJoin }

func (r *recordingRule) Apply(e *memo.MultiExpr, ctx *xform.RuleContext) []memo.Node {
	for _, m := range ctx.LogicalMembers(e.Child(0)) {
		r.seen = append(r.seen, testexpr.FormatExpr(m))
	}
	if ctx.LogicalMembers(100) != nil {
		r.seen = append(r.seen, "G100")
	}
	r.tags = logtags.FromContext(ctx.Context()).String()
	return nil
}

func TestRuleContext(t *testing.T) {
	defer log.Scope(t).Close(t)

	env := newTestEnv(t, joinTables, "(Join (Join (Scan a) (Scan b)) (Scan c))")
	ctx := context.Background()

	// Implement the inner join first, so that its group has physical members.
	require.NoError(t, env.newOptimizer(t, xform.DefaultOptions()).ImplementGroup(ctx, 3))

	rule := &recordingRule{}
	o := env.newOptimizerWithRules(t, xform.DefaultOptions(), rule)
	require.NoError(t, o.ExploreGroup(ctx, env.root))

	// The rule fired on (Join G1 G2) and on (Join G3 G4). Only the logical
	// member of G3 is visible.
	require.Equal(t, []string{"(Scan a)", "(Join G1 G2)"}, rule.seen)
	require.Equal(t, "opt,g5,rule=CommuteJoin", rule.tags)
}
