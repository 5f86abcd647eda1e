// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/sql/opt/memo"
	"github.com/cockroachdb/cascades/pkg/sql/opt/props"
	"github.com/cockroachdb/cascades/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/cascades/pkg/sql/opt/testutils/testexpr"
	"github.com/cockroachdb/cascades/pkg/util/log"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func scan(table string) memo.Node {
	return memo.Tree(&testexpr.Scan{Table: table})
}

func join(left, right memo.Node) memo.Node {
	return memo.Tree(&testexpr.Join{}, left, right)
}

func ref(id opt.GroupID) memo.Node {
	return memo.GroupRef(id)
}

func mustGroup(t *testing.T, m *memo.Memo, id opt.GroupID) *memo.Group {
	t.Helper()
	g, err := m.Group(id)
	require.NoError(t, err)
	return g
}

func mustExpr(t *testing.T, op opt.Operator, children ...opt.GroupID) *memo.MultiExpr {
	t.Helper()
	e, err := memo.NewMultiExpr(op, children)
	require.NoError(t, err)
	return e
}

func TestInsertTree(t *testing.T) {
	defer log.Scope(t).Close(t)

	m := memo.New()
	root, err := m.InsertTree(join(scan("a"), scan("b")))
	require.NoError(t, err)
	require.Equal(t, opt.GroupID(3), root)
	require.Equal(t, 3, m.GroupCount())
	require.Equal(t, 3, m.ExprCount())

	// Inserting the same tree again changes nothing.
	again, err := m.InsertTree(join(scan("a"), scan("b")))
	require.NoError(t, err)
	require.Equal(t, root, again)
	require.Equal(t, 3, m.GroupCount())
	require.Equal(t, 3, m.ExprCount())

	// The scans are shared with the commuted tree, which gets a group of its
	// own.
	commuted, err := m.InsertTree(join(scan("b"), ref(1)))
	require.NoError(t, err)
	require.Equal(t, opt.GroupID(4), commuted)
	require.Equal(t, 4, m.GroupCount())
	require.Equal(t, 4, m.ExprCount())

	e := mustGroup(t, m, commuted).Member(0)
	require.Equal(t, opt.MExprID(4), e.ID())
	require.Equal(t, opt.NoRule, e.Rule())
	require.Equal(t, opt.InvalidMExprID, e.Source())
	require.Equal(t, []opt.GroupID{2, 1}, []opt.GroupID{e.Child(0), e.Child(1)})

	// Errors leave the memo unchanged.
	_, err = m.InsertTree(join(scan("a"), ref(9)))
	require.True(t, errors.Is(err, opt.ErrNotFound), "%v", err)
	_, err = m.InsertTree(memo.Tree(&testexpr.Join{}, scan("a")))
	require.True(t, errors.Is(err, opt.ErrArityMismatch), "%v", err)
	require.Equal(t, 4, m.GroupCount())
	require.Equal(t, 4, m.ExprCount())
}

func TestNewMultiExpr(t *testing.T) {
	defer log.Scope(t).Close(t)

	_, err := memo.NewMultiExpr(&testexpr.Join{}, []opt.GroupID{1})
	require.True(t, errors.Is(err, opt.ErrArityMismatch), "%v", err)
	require.EqualError(t, err, "operator Join expects 2 children, got 1")

	_, err = memo.NewMultiExpr(&testexpr.Scan{Table: "a"}, []opt.GroupID{1})
	require.True(t, errors.Is(err, opt.ErrArityMismatch), "%v", err)

	e := mustExpr(t, &testexpr.Join{}, 1, 2)
	require.False(t, e.IsValid())
	require.Equal(t, opt.InvalidMExprID, e.ID())
	require.Equal(t, opt.InvalidGroupID, e.Group())
	require.Equal(t, memo.Unimplemented, e.State())

	// Equal expressions have equal signatures.
	same := mustExpr(t, &testexpr.Join{}, 1, 2)
	require.True(t, e.Equals(same))
	require.Equal(t, e.Signature(), same.Signature())

	for _, other := range []*memo.MultiExpr{
		mustExpr(t, &testexpr.Join{}, 2, 1),
		mustExpr(t, &testexpr.HashJoin{}, 1, 2),
	} {
		require.False(t, e.Equals(other), "%s", other)
	}
	require.False(t, mustExpr(t, &testexpr.Scan{Table: "a"}).Equals(mustExpr(t, &testexpr.Scan{Table: "b"})))
}

func TestInsertMultiExpr(t *testing.T) {
	defer log.Scope(t).Close(t)

	m := memo.New()
	root, err := m.InsertTree(join(scan("a"), scan("b")))
	require.NoError(t, err)
	c, err := m.InsertTree(scan("c"))
	require.NoError(t, err)

	// A new expression is added to the target group.
	e := mustExpr(t, &testexpr.Join{}, 2, 1)
	res, added, err := m.InsertMultiExpr(e, root)
	require.NoError(t, err)
	require.True(t, added)
	require.Same(t, e, res)
	require.Equal(t, root, e.Group())
	require.Equal(t, opt.MExprID(5), e.ID())
	require.Equal(t, 2, mustGroup(t, m, root).MemberCount())

	// Inserting an accepted expression again is a no-op.
	res, added, err = m.InsertMultiExpr(e, root)
	require.NoError(t, err)
	require.False(t, added)
	require.Same(t, e, res)

	// An equal expression is discarded: the existing one is returned and the
	// new one stays invalid.
	dup := mustExpr(t, &testexpr.Join{}, 2, 1)
	res, added, err = m.InsertMultiExpr(dup, root)
	require.NoError(t, err)
	require.False(t, added)
	require.Same(t, e, res)
	require.False(t, dup.IsValid())
	require.Equal(t, opt.InvalidMExprID, dup.ID())
	require.Same(t, e, m.Lookup(dup))

	// An equal expression derived for another group is not moved. The groups
	// are only merged by MergeGroups.
	res, added, err = m.InsertMultiExpr(mustExpr(t, &testexpr.Join{}, 1, 2), c)
	require.NoError(t, err)
	require.False(t, added)
	require.Equal(t, root, res.Group())
	require.Equal(t, 1, mustGroup(t, m, c).MemberCount())

	// The memo is unchanged by the duplicates.
	require.Equal(t, 4, m.GroupCount())
	require.Equal(t, 5, m.ExprCount())

	testCases := []struct {
		name   string
		e      *memo.MultiExpr
		target opt.GroupID
		err    error
	}{
		{"unknown target", mustExpr(t, &testexpr.Join{}, 1, 4), 9, opt.ErrNotFound},
		{"unknown child", mustExpr(t, &testexpr.Join{}, 1, 9), root, opt.ErrNotFound},
		{"self reference", mustExpr(t, &testexpr.Join{}, root, 4), root, opt.ErrInconsistentGroup},
		{"other group", e, c, opt.ErrInconsistentGroup},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := m.InsertMultiExpr(tc.e, tc.target)
			require.True(t, errors.Is(err, tc.err), "%v", err)
			require.Equal(t, 4, m.GroupCount())
			require.Equal(t, 5, m.ExprCount())
		})
	}

	got, err := m.Expr(5)
	require.NoError(t, err)
	require.Same(t, e, got)
	_, err = m.Expr(6)
	require.True(t, errors.Is(err, opt.ErrNotFound), "%v", err)
	_, err = m.Group(opt.InvalidGroupID)
	require.True(t, errors.Is(err, opt.ErrNotFound), "%v", err)
}

func TestInsertDerived(t *testing.T) {
	defer log.Scope(t).Close(t)

	m := memo.New()
	root, err := m.InsertTree(join(join(scan("a"), scan("b")), scan("c")))
	require.NoError(t, err)
	require.Equal(t, opt.GroupID(5), root)

	// (Join G1 (Join G2 G4)): the nested join gets a new group.
	e, added, err := m.InsertDerived(
		join(ref(1), join(ref(2), ref(4))), opt.AssociateJoin, 5, root,
	)
	require.NoError(t, err)
	require.True(t, added)
	require.Equal(t, root, e.Group())
	require.Equal(t, opt.AssociateJoin, e.Rule())
	require.Equal(t, opt.MExprID(5), e.Source())
	require.Equal(t, 6, m.GroupCount())

	nested := mustGroup(t, m, e.Child(1)).Member(0)
	require.Equal(t, opt.AssociateJoin, nested.Rule())
	require.Equal(t, opt.MExprID(5), nested.Source())

	_, _, err = m.InsertDerived(ref(3), opt.CommuteJoin, 5, root)
	require.True(t, errors.Is(err, opt.ErrInconsistentGroup), "%v", err)
}

func memberStrings(g *memo.Group) []string {
	var res []string
	for _, e := range g.Members() {
		if e.IsValid() {
			res = append(res, testexpr.FormatExpr(e))
		}
	}
	return res
}

func TestMergeGroups(t *testing.T) {
	defer log.Scope(t).Close(t)

	ctx := context.Background()
	m := memo.New()
	ab, err := m.InsertTree(join(scan("a"), scan("b")))
	require.NoError(t, err)
	ba, err := m.InsertTree(join(ref(2), ref(1)))
	require.NoError(t, err)
	abc, err := m.InsertTree(join(ref(ab), scan("c")))
	require.NoError(t, err)
	bac, err := m.InsertTree(join(ref(ba), ref(5)))
	require.NoError(t, err)
	require.Equal(t, []opt.GroupID{3, 4, 6, 7}, []opt.GroupID{ab, ba, abc, bac})
	require.Equal(t, 7, m.GroupCount())

	// The physical member of G4 is its winner.
	hash, _, err := m.InsertMultiExpr(mustExpr(t, &testexpr.HashJoin{}, 2, 1), ba)
	require.NoError(t, err)
	require.True(t, mustGroup(t, m, ba).SetWinner(opt.MinPhysPropsID, hash, memo.Cost{C: 5}))

	for _, id := range []opt.GroupID{1, ab, abc} {
		g := mustGroup(t, m, id)
		require.True(t, g.BeginExploring())
		g.FinishExploring()
	}

	// Nothing to merge yet.
	require.Equal(t, 0, m.MergeGroups(ctx))

	// Commuting the join of G3 yields the join of G4: the two groups are
	// equivalent. The existing expression is returned.
	res, added, err := m.InsertDerived(join(ref(2), ref(1)), opt.CommuteJoin, 3, ab)
	require.NoError(t, err)
	require.False(t, added)
	require.Equal(t, ba, res.Group())
	require.Equal(t, 7, m.GroupCount())

	// G4 is merged into G3. The join of G7 then equals the join of G6, so G7
	// is merged into G6 as well.
	require.Equal(t, 2, m.MergeGroups(ctx))
	require.Equal(t, 0, m.MergeGroups(ctx))
	require.Equal(t, 5, m.GroupCount())
	require.Equal(t, `memo (5 groups, 8 expressions)
 ├── G1: (Scan a)
 ├── G2: (Scan b)
 ├── G3: (Join G1 G2) (Join G2 G1) (HashJoin G2 G1)
 │    └── "[]"
 │         ├── best: (HashJoin G2 G1)
 │         └── cost: 5.00
 ├── G5: (Scan c)
 └── G6: (Join G3 G5)
`, m.String())

	g := mustGroup(t, m, ab)
	require.Same(t, g, mustGroup(t, m, ba))
	require.True(t, g.DuplicateWith(mustGroup(t, m, ba)))
	require.True(t, mustGroup(t, m, abc).DuplicateWith(mustGroup(t, m, bac)))
	require.False(t, g.DuplicateWith(mustGroup(t, m, abc)))
	require.Equal(t, ab, res.Group())

	// The winner moved along with its expression.
	w, ok := g.Winner(opt.MinPhysPropsID)
	require.True(t, ok)
	require.Same(t, hash, w.Expr)

	// The merged groups and the groups above them are explored again; other
	// groups are left alone.
	require.Equal(t, memo.Explored, mustGroup(t, m, 1).ExploreState())
	require.Equal(t, memo.Unexplored, g.ExploreState())
	require.Equal(t, memo.Unexplored, mustGroup(t, m, abc).ExploreState())

	// References to merged groups are resolved on insertion.
	id, err := m.InsertTree(join(ref(ba), ref(5)))
	require.NoError(t, err)
	require.Equal(t, abc, id)
	e, added, err := m.InsertMultiExpr(mustExpr(t, &testexpr.LoopJoin{}, ba, 5), bac)
	require.NoError(t, err)
	require.True(t, added)
	require.Equal(t, abc, e.Group())
	require.Equal(t, []opt.GroupID{ab, 5}, []opt.GroupID{e.Child(0), e.Child(1)})
	require.Equal(t, []string{"(Join G3 G5)", "(LoopJoin G3 G5)"}, memberStrings(mustGroup(t, m, abc)))
}

func TestMergeGroupsSelfReference(t *testing.T) {
	defer log.Scope(t).Close(t)

	m := memo.New()
	a, err := m.InsertTree(scan("a"))
	require.NoError(t, err)
	aa, err := m.InsertTree(join(ref(a), ref(a)))
	require.NoError(t, err)

	// Claiming G2 to be a scan of a makes the join reference its own group,
	// so it is dropped.
	_, added, err := m.InsertMultiExpr(mustExpr(t, &testexpr.Scan{Table: "a"}), aa)
	require.NoError(t, err)
	require.False(t, added)
	require.Equal(t, 1, m.MergeGroups(context.Background()))
	require.Equal(t, 1, m.GroupCount())
	require.Equal(t, []string{"(Scan a)"}, memberStrings(mustGroup(t, m, aa)))
}

func TestMergeGroupsBusy(t *testing.T) {
	defer log.Scope(t).Close(t)

	ctx := context.Background()
	m := memo.New()
	ab, err := m.InsertTree(join(scan("a"), scan("b")))
	require.NoError(t, err)
	ba, err := m.InsertTree(join(ref(2), ref(1)))
	require.NoError(t, err)
	_, _, err = m.InsertMultiExpr(mustExpr(t, &testexpr.Join{}, 2, 1), ab)
	require.NoError(t, err)

	// A group being explored is not merged until it is done.
	g := mustGroup(t, m, ba)
	require.True(t, g.BeginExploring())
	require.Equal(t, 0, m.MergeGroups(ctx))
	require.Equal(t, 4, m.GroupCount())
	g.FinishExploring()
	require.Equal(t, 1, m.MergeGroups(ctx))
	require.Equal(t, 3, m.GroupCount())
	require.True(t, g.IsMerged())
	require.Equal(t, ab, mustGroup(t, m, ba).ID())
}

func TestInsertTreeConcurrent(t *testing.T) {
	defer log.Scope(t).Close(t)

	m := memo.New()
	const workers = 16
	roots := make([]opt.GroupID, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			roots[i], errs[i] = m.InsertTree(join(join(scan("a"), scan("b")), join(scan("c"), scan("d"))))
		}(i)
	}
	wg.Wait()
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, roots[0], roots[i])
	}
	require.Equal(t, 7, m.GroupCount())
	require.Equal(t, 7, m.ExprCount())
}

func TestPhysicalProps(t *testing.T) {
	defer log.Scope(t).Close(t)

	m := memo.New()
	require.Equal(t, opt.MinPhysPropsID, m.InternPhysicalProps(physical.MinRequired))
	require.Equal(t, opt.MinPhysPropsID, m.InternPhysicalProps(&physical.Required{}))

	ordering, err := physical.ParseOrdering("+1,-2")
	require.NoError(t, err)
	id := m.InternPhysicalProps(&physical.Required{Ordering: ordering})
	require.Equal(t, opt.PhysicalPropsID(2), id)
	require.Equal(t, id, m.InternPhysicalProps(&physical.Required{Ordering: ordering}))
	require.Equal(t, "[ordering: +1,-2]", m.LookupPhysicalProps(id).String())
	require.Equal(t, "[]", m.LookupPhysicalProps(opt.MinPhysPropsID).String())

	require.Panics(t, func() { m.LookupPhysicalProps(3) })
}

func TestRoot(t *testing.T) {
	defer log.Scope(t).Close(t)

	m := memo.New()
	_, err := m.RootGroup()
	require.True(t, errors.Is(err, opt.ErrNotFound), "%v", err)
	require.Equal(t, opt.InvalidPhysicalPropsID, m.RootProps())

	require.True(t, errors.Is(m.SetRoot(1, physical.MinRequired), opt.ErrNotFound))

	id, err := m.InsertTree(scan("a"))
	require.NoError(t, err)
	require.NoError(t, m.SetRoot(id, &physical.Required{Ordering: physical.Ordering{physical.MakeOrderingColumn(1, false)}}))
	g, err := m.RootGroup()
	require.NoError(t, err)
	require.Equal(t, id, g.ID())
	require.True(t, g.DuplicateWith(mustGroup(t, m, id)))
	require.Equal(t, "[ordering: +1]", m.LookupPhysicalProps(m.RootProps()).String())
}

func TestWinners(t *testing.T) {
	defer log.Scope(t).Close(t)

	m := memo.New()
	root, err := m.InsertTree(join(scan("a"), scan("b")))
	require.NoError(t, err)
	g := mustGroup(t, m, root)
	hash, _, err := m.InsertMultiExpr(mustExpr(t, &testexpr.HashJoin{}, 1, 2), root)
	require.NoError(t, err)
	loop, _, err := m.InsertMultiExpr(mustExpr(t, &testexpr.LoopJoin{}, 1, 2), root)
	require.NoError(t, err)
	merge, _, err := m.InsertMultiExpr(mustExpr(t, &testexpr.MergeJoin{}, 1, 2), root)
	require.NoError(t, err)
	other, _, err := m.InsertMultiExpr(mustExpr(t, &testexpr.TableScan{Table: "a"}), 1)
	require.NoError(t, err)

	// Physical expressions need no implementation.
	require.True(t, hash.IsImplemented())

	const minProps = opt.MinPhysPropsID
	_, ok := g.Winner(minProps)
	require.False(t, ok)

	require.True(t, g.SetWinner(minProps, loop, memo.Cost{C: 100}))
	require.True(t, g.SetWinner(minProps, hash, memo.Cost{C: 50}))
	// Higher and equal costs keep the incumbent.
	require.False(t, g.SetWinner(minProps, loop, memo.Cost{C: 60}))
	require.False(t, g.SetWinner(minProps, merge, memo.Cost{C: 50}))
	// Invalid costs and expressions of other groups are refused.
	require.False(t, g.SetWinner(minProps, merge, memo.Cost{C: -1}))
	require.False(t, g.SetWinner(minProps, merge, memo.MaxCost))
	require.False(t, g.SetWinner(minProps, other, memo.Cost{C: 1}))
	require.False(t, g.SetWinner(minProps, nil, memo.Cost{C: 1}))

	w, ok := g.Winner(minProps)
	require.True(t, ok)
	require.Same(t, hash, w.Expr)
	require.Equal(t, 50.0, w.Cost.C)

	// Winners are kept per set of properties.
	ordered := m.InternPhysicalProps(&physical.Required{Ordering: physical.Ordering{physical.MakeOrderingColumn(1, false)}})
	require.True(t, g.SetWinner(ordered, merge, memo.Cost{C: 70}))
	w, ok = g.Winner(ordered)
	require.True(t, ok)
	require.Same(t, merge, w.Expr)

	// Invalidating the winner removes it. The member keeps its position, and
	// is no longer handed out or accepted as a winner.
	count := g.MemberCount()
	g.Invalidate(hash)
	require.False(t, hash.IsValid())
	require.Equal(t, count, g.MemberCount())
	_, ok = g.Winner(minProps)
	require.False(t, ok)
	require.False(t, g.SetWinner(minProps, hash, memo.Cost{C: 1}))
	require.True(t, g.SetWinner(minProps, loop, memo.Cost{C: 100}))
	require.Same(t, g.Member(0), g.FirstValidMember())

	// An invalidated expression no longer deduplicates.
	again, added, err := m.InsertMultiExpr(mustExpr(t, &testexpr.HashJoin{}, 1, 2), root)
	require.NoError(t, err)
	require.True(t, added)
	require.NotSame(t, hash, again)
}

func TestExprState(t *testing.T) {
	defer log.Scope(t).Close(t)

	m := memo.New()
	root, err := m.InsertTree(join(scan("a"), scan("b")))
	require.NoError(t, err)
	e := mustGroup(t, m, root).Member(0)

	require.Equal(t, memo.Unimplemented, e.State())
	require.True(t, e.TryBeginImplementing())
	require.False(t, e.TryBeginImplementing())
	require.Equal(t, memo.Implementing, e.State())
	require.False(t, e.IsImplemented())
	e.MarkImplemented()
	require.True(t, e.IsImplemented())
	require.Equal(t, "implemented", e.State().String())
}

func TestGroupStates(t *testing.T) {
	defer log.Scope(t).Close(t)

	m := memo.New()
	root, err := m.InsertTree(join(scan("a"), scan("b")))
	require.NoError(t, err)
	g := mustGroup(t, m, root)

	require.Equal(t, memo.Unexplored, g.ExploreState())
	// Nobody is exploring the group, so there is nothing to wait for.
	require.NoError(t, g.WaitExplored(context.Background()))
	require.True(t, g.BeginExploring())
	require.False(t, g.BeginExploring())
	require.Equal(t, memo.Exploring, g.ExploreState())

	// Waiting is bounded by the context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.True(t, errors.Is(g.WaitExplored(ctx), context.Canceled))

	done := make(chan error)
	go func() {
		done <- g.WaitExplored(context.Background())
	}()
	g.FinishExploring()
	require.NoError(t, <-done)
	require.Equal(t, memo.Explored, g.ExploreState())
	require.False(t, g.BeginExploring())
	// Finishing twice is harmless.
	g.FinishExploring()

	require.True(t, g.BeginImplementing())
	require.False(t, g.BeginImplementing())
	require.True(t, errors.Is(g.WaitImplemented(ctx), context.Canceled))
	g.FinishImplementing()
	require.NoError(t, g.WaitImplemented(context.Background()))
	require.Equal(t, memo.Implemented, g.ImplementState())
}

func TestNextCandidate(t *testing.T) {
	defer log.Scope(t).Close(t)

	m := memo.New()
	const tables = 10
	for i := 0; i < tables; i++ {
		_, err := m.InsertTree(scan(fmt.Sprintf("t%d", i)))
		require.NoError(t, err)
	}
	root, err := m.InsertTree(join(ref(1), ref(2)))
	require.NoError(t, err)
	g := mustGroup(t, m, root)
	expected := 1
	for i := opt.GroupID(1); i <= tables; i++ {
		for j := opt.GroupID(1); j <= tables; j++ {
			if i == j || (i == 1 && j == 2) {
				continue
			}
			_, added, err := m.InsertMultiExpr(mustExpr(t, &testexpr.Join{}, i, j), root)
			require.NoError(t, err)
			require.True(t, added)
			expected++
		}
	}
	_, _, err = m.InsertMultiExpr(mustExpr(t, &testexpr.HashJoin{}, 1, 2), root)
	require.NoError(t, err)
	invalid := g.Member(5)
	g.Invalidate(invalid)
	expected--

	// Concurrent callers are each handed distinct members. Physical and
	// invalid members are never handed out.
	const workers = 8
	var mu sync.Mutex
	handedOut := make(map[opt.MExprID]int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				e, ok := g.NextCandidate(opt.ExplorePhase)
				if !ok {
					return
				}
				mu.Lock()
				handedOut[e.ID()]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, handedOut, expected)
	for id, n := range handedOut {
		require.Equal(t, 1, n, "expression %d", id)
		e, err := m.Expr(id)
		require.NoError(t, err)
		require.False(t, e.Op().IsPhysical())
	}
	require.NotContains(t, handedOut, invalid.ID())

	// The implement phase has a cursor of its own, and skips implemented
	// members.
	first := g.Member(0)
	first.MarkImplemented()
	e, ok := g.NextCandidate(opt.ImplementPhase)
	require.True(t, ok)
	require.Same(t, g.Member(1), e)

	// Members added later are handed out by later calls.
	_, ok = g.NextCandidate(opt.ExplorePhase)
	require.False(t, ok)
	late, err := m.InsertTree(scan("late"))
	require.NoError(t, err)
	added, _, err := m.InsertMultiExpr(mustExpr(t, &testexpr.Join{}, late, 1), root)
	require.NoError(t, err)
	e, ok = g.NextCandidate(opt.ExplorePhase)
	require.True(t, ok)
	require.Same(t, added, e)
}

func TestStatistics(t *testing.T) {
	defer log.Scope(t).Close(t)

	m := memo.New()
	id, err := m.InsertTree(scan("a"))
	require.NoError(t, err)
	g := mustGroup(t, m, id)
	require.Nil(t, g.Statistics())

	s := &props.Statistics{}
	s.Init(100, true /* available */)
	require.True(t, g.SetStatistics(s))
	other := &props.Statistics{}
	other.Init(5, true /* available */)
	require.False(t, g.SetStatistics(other))
	require.Same(t, s, g.Statistics())
}

func TestMemoFormat(t *testing.T) {
	defer log.Scope(t).Close(t)

	m := memo.New()
	root, err := m.InsertTree(join(scan("a"), scan("b")))
	require.NoError(t, err)
	require.Equal(t, `memo (3 groups, 3 expressions)
 ├── G1: (Scan a)
 ├── G2: (Scan b)
 └── G3: (Join G1 G2)
`, m.String())

	// Without a root, the pretty format falls back to the raw one.
	require.Equal(t, m.String(), m.FormatString(memo.FmtPretty))

	_, err = m.InsertTree(scan("c"))
	require.NoError(t, err)
	require.NoError(t, m.SetRoot(root, physical.MinRequired))
	tableScan, _, err := m.InsertMultiExpr(mustExpr(t, &testexpr.TableScan{Table: "a"}), 1)
	require.NoError(t, err)
	g := mustGroup(t, m, 1)
	require.True(t, g.SetWinner(opt.MinPhysPropsID, tableScan, memo.Cost{C: 1000}))
	s := &props.Statistics{}
	s.Init(1000, true /* available */)
	g.SetStatistics(s)

	require.Equal(t, `root: G3, []
memo (4 groups, 5 expressions)
 ├── G1: (Scan a) (TableScan a)
 │    └── "[]"
 │         ├── best: (TableScan a)
 │         └── cost: 1000.00
 ├── G2: (Scan b)
 ├── G3: (Join G1 G2)
 └── G4: (Scan c)
`, m.String())

	// The pretty format starts at the root, and leaves out unreachable groups.
	require.Equal(t, `root: G3, []
memo (4 groups, 5 expressions)
 ├── G3: (Join G1 G2)
 ├── G1: (Scan a) (TableScan a)
 │    ├── stats: [rows=1000.00]
 │    └── "[]"
 │         ├── best: (TableScan a)
 │         └── cost: 1000.00
 └── G2: (Scan b)
`, m.FormatString(memo.FmtPretty|memo.FmtStats))
}

func TestMemoFormatDot(t *testing.T) {
	defer log.Scope(t).Close(t)

	m := memo.New()
	root, err := m.InsertTree(join(join(scan("a"), scan("b")), join(ref(2), ref(1))))
	require.NoError(t, err)
	require.NoError(t, m.SetRoot(root, physical.MinRequired))
	_, _, err = m.InsertMultiExpr(mustExpr(t, &testexpr.Join{}, 2, 1), 3)
	require.NoError(t, err)
	require.Equal(t, 1, m.MergeGroups(context.Background()))

	out := m.FormatDot()
	require.True(t, strings.HasPrefix(out, "digraph"), out)
	require.Contains(t, out, "G3: (Join G1 G2) (Join G2 G1)")
	require.Contains(t, out, "G5: (Join G3 G3)")
	require.NotContains(t, out, "G4")
	require.Contains(t, out, "peripheries")
	// G3 has edges to G1 and G2, and G5 a single edge to G3.
	require.Equal(t, 3, strings.Count(out, "->"))
}

func TestExplain(t *testing.T) {
	defer log.Scope(t).Close(t)

	m := memo.New()
	root, err := m.InsertTree(join(join(scan("a"), scan("b")), scan("c")))
	require.NoError(t, err)
	e, _, err := m.InsertDerived(join(ref(4), ref(3)), opt.CommuteJoin, 5, root)
	require.NoError(t, err)

	require.Equal(t, `MultiExpression 6 (from MultiExpression 5 rule:CommuteJoin) Join
->  MultiExpression 4 Scan c
->  MultiExpression 3 Join
    ->  MultiExpression 1 Scan a
    ->  MultiExpression 2 Scan b
`, e.Explain(m, "", ""))

	// Multi-line operators indent their details with the detail prefix.
	ordering, err := physical.ParseOrdering("+1")
	require.NoError(t, err)
	scanExpr, _, err := m.InsertMultiExpr(mustExpr(t, &testexpr.TableScan{Table: "c", Ordering: ordering}), 4)
	require.NoError(t, err)
	require.Equal(t, "# MultiExpression 7 TableScan c\n  ordering: +1\n", scanExpr.Explain(m, "# ", "  "))

	require.Equal(t, "6:Join[4,3]", e.String())
	require.Equal(t, "(Join (Scan a) G2)", join(scan("a"), ref(2)).String())
}

func TestMemoryEstimate(t *testing.T) {
	defer log.Scope(t).Close(t)

	m := memo.New()
	empty := m.MemoryEstimate()
	require.Greater(t, empty, int64(0))
	_, err := m.InsertTree(join(join(scan("a"), scan("b")), scan("c")))
	require.NoError(t, err)
	require.Greater(t, m.MemoryEstimate(), empty)
}
