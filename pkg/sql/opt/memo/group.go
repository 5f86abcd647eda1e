// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/sql/opt/props"
	"github.com/cockroachdb/cascades/pkg/util/syncutil"
)

// ExploreState tracks the exploration of a group.
type ExploreState uint32

const (
	// Unexplored is the initial state of every group.
	Unexplored ExploreState = iota

	// Exploring means that a worker is firing explore rules on the group's
	// members.
	Exploring

	// Explored means that explore rules have fired on every member of the
	// group.
	Explored
)

func (s ExploreState) String() string {
	switch s {
	case Unexplored:
		return "unexplored"
	case Exploring:
		return "exploring"
	case Explored:
		return "explored"
	}
	return "unknown"
}

// Winner is the lowest cost expression found so far in a group for a given
// set of required physical properties, along with the cost of the plan rooted
// at it.
type Winner struct {
	Expr *MultiExpr
	Cost Cost
}

// winnerSlot holds the winner for one set of required properties. The slot
// itself never moves once allocated; the winner is swapped atomically.
type winnerSlot struct {
	best atomic.Pointer[Winner]
}

// Group stores a set of logically equivalent expressions. In addition, for
// each required set of physical properties, the group stores the expression
// that provides those properties at the lowest known cost.
//
// Members are only ever appended. A member can be invalidated, but it keeps
// its position so that member ordinals remain stable.
//
// When the memo discovers that two groups are logically equivalent, it merges
// the group with the higher id into the one with the lower id. The merged
// group keeps no members and forwards to the surviving group.
type Group struct {
	// id is the index of this group within the memo, starting at 1.
	id opt.GroupID

	// mergedInto is the group this group was merged into, or nil.
	mergedInto atomic.Pointer[Group]

	// exploreState is an ExploreState. Accessed atomically; transitions which
	// close or replace the channels below also hold mu.
	exploreState atomic.Uint32

	// implementState is an ExprState. Accessed atomically, like exploreState.
	implementState atomic.Uint32

	mu struct {
		syncutil.Mutex

		// explored is closed once the group reaches the Explored state.
		explored chan struct{}
		// implemented is closed once the group reaches the Implemented state.
		implemented chan struct{}

		// members is the set of logically equivalent expressions in the group,
		// in insertion order.
		members []*MultiExpr

		// cursors holds, for each phase, the ordinal of the first member that
		// has not been handed out by NextCandidate.
		cursors [2]int

		// stats is derived once, from the first member able to produce it.
		stats *props.Statistics

		// winners maps a PhysicalPropsID to the winner for those properties.
		winners map[opt.PhysicalPropsID]*winnerSlot
	}
}

func newGroup(id opt.GroupID) *Group {
	g := &Group{id: id}
	g.mu.explored = make(chan struct{})
	g.mu.implemented = make(chan struct{})
	g.mu.winners = make(map[opt.PhysicalPropsID]*winnerSlot)
	return g
}

// ID returns the id of the group.
func (g *Group) ID() opt.GroupID {
	return g.id
}

// resolve returns the group that g was merged into, transitively, or g itself.
func (g *Group) resolve() *Group {
	for {
		next := g.mergedInto.Load()
		if next == nil {
			return g
		}
		g = next
	}
}

// IsMerged returns true if the group was merged into another group.
func (g *Group) IsMerged() bool {
	return g.mergedInto.Load() != nil
}

// DuplicateWith returns true if the two groups are the same logical class:
// either the same group, or groups that were merged together.
func (g *Group) DuplicateWith(other *Group) bool {
	return other != nil && g.resolve() == other.resolve()
}

// busy returns true if a worker has claimed the group for exploration or
// implementation and has not finished yet.
func (g *Group) busy() bool {
	return g.ExploreState() == Exploring || g.ImplementState() == Implementing
}

// absorb moves the members, statistics and winners of other into g, and
// forwards other to g. Neither group may be busy.
//
// The memo's write lock must be held.
func (g *Group) absorb(other *Group) {
	g.mu.Lock()
	defer g.mu.Unlock()
	other.mu.Lock()
	defer other.mu.Unlock()

	for _, e := range other.mu.members {
		if !e.IsValid() {
			continue
		}
		e.markGroup(g.id)
		g.mu.members = append(g.mu.members, e)
	}
	other.mu.members = nil
	if g.mu.stats == nil {
		g.mu.stats = other.mu.stats
	}
	for required, slot := range other.mu.winners {
		w := slot.best.Load()
		if w == nil || !w.Expr.IsValid() {
			continue
		}
		mine, ok := g.mu.winners[required]
		if !ok {
			mine = &winnerSlot{}
			g.mu.winners[required] = mine
		}
		if cur := mine.best.Load(); cur == nil || !cur.Expr.IsValid() || w.Cost.Less(cur.Cost) {
			mine.best.Store(w)
		}
	}
	other.mu.winners = make(map[opt.PhysicalPropsID]*winnerSlot)
	other.mergedInto.Store(g)
}

// replaceMember swaps the member old for e at the same ordinal position, and
// detaches old. If e is nil, old is only detached.
//
// The memo's write lock must be held.
func (g *Group) replaceMember(old, e *MultiExpr) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.mu.members {
		if g.mu.members[i] == old {
			old.clearGroup()
			if e != nil {
				g.mu.members[i] = e
				e.markGroup(g.id)
			}
			return
		}
	}
}

// resetExploration returns an explored group to the Unexplored state, so that
// explore rules fire again on all of its members.
func (g *Group) resetExploration() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.exploreState.CompareAndSwap(uint32(Explored), uint32(Unexplored)) {
		g.mu.explored = make(chan struct{})
		g.mu.cursors[opt.ExplorePhase] = 0
	}
}

// resetImplementation returns an implemented group to the Unimplemented
// state. Members which were already implemented stay so.
func (g *Group) resetImplementation() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.implementState.CompareAndSwap(uint32(Implemented), uint32(Unimplemented)) {
		g.mu.implemented = make(chan struct{})
		g.mu.cursors[opt.ImplementPhase] = 0
	}
}

// insert adds e to the group. If an equal member already exists, e is left
// detached and the existing member is returned with added=false.
//
// It returns an opt.ErrInconsistentGroup error if e already belongs to
// another group, or if e references this group as one of its children.
//
// The memo's write lock must be held.
func (g *Group) insert(e *MultiExpr) (_ *MultiExpr, added bool, _ error) {
	if owner := e.Group(); owner != opt.InvalidGroupID {
		if owner == g.id {
			return e, false, nil
		}
		return nil, false, opt.NewInconsistentGroupError(
			"expression %s belongs to %s, cannot be added to %s", e, owner, g.id)
	}
	for i := range e.children {
		if e.children[i] == g.id {
			return nil, false, opt.NewInconsistentGroupError(
				"expression %s references its own group %s", e, g.id)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.mu.members {
		if m.IsValid() && m.Equals(e) {
			return m, false, nil
		}
	}
	g.mu.members = append(g.mu.members, e)
	e.markGroup(g.id)
	return e, true, nil
}

// MemberCount returns the number of members of the group, including any that
// have been invalidated.
func (g *Group) MemberCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.mu.members)
}

// Member returns the member at the given ordinal position.
func (g *Group) Member(ord int) *MultiExpr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mu.members[ord]
}

// Members returns a snapshot of the members of the group.
func (g *Group) Members() []*MultiExpr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*MultiExpr(nil), g.mu.members...)
}

// FirstValidMember returns the first member that has not been invalidated, or
// nil. It is used as the representative of the group when explaining.
func (g *Group) FirstValidMember() *MultiExpr {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.mu.members {
		if m.IsValid() {
			return m
		}
	}
	return nil
}

// NextCandidate hands out the next member of the group which has not yet been
// handed out for the given phase. The explore phase only hands out logical
// members; the implement phase only hands out logical members which are not
// yet implemented. Invalid members are skipped. It returns false once all the
// members present at the time of the call have been handed out; members added
// later are handed out by later calls.
//
// Each member is handed out at most once per phase, even with concurrent
// callers.
func (g *Group) NextCandidate(phase opt.Phase) (*MultiExpr, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cursor := &g.mu.cursors[phase]
	for *cursor < len(g.mu.members) {
		e := g.mu.members[*cursor]
		*cursor++
		if !e.IsValid() || e.op.IsPhysical() {
			continue
		}
		if phase == opt.ImplementPhase && e.IsImplemented() {
			continue
		}
		return e, true
	}
	return nil, false
}

// Invalidate detaches e from the group and removes any winner that refers to
// it. The member keeps its ordinal position but is skipped from now on.
func (g *Group) Invalidate(e *MultiExpr) {
	if e.Group() != g.id {
		return
	}
	e.clearGroup()

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, slot := range g.mu.winners {
		if w := slot.best.Load(); w != nil && w.Expr == e {
			slot.best.CompareAndSwap(w, nil)
		}
	}
}

func (g *Group) ensureSlot(required opt.PhysicalPropsID) *winnerSlot {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, ok := g.mu.winners[required]
	if !ok {
		slot = &winnerSlot{}
		g.mu.winners[required] = slot
	}
	return slot
}

// SetWinner records e as the winner for the required properties if there is
// no winner yet, or if cost is lower than the current winner's cost. A winner
// with an equal cost is kept. It returns true if e became the winner.
//
// Expressions which are invalid or belong to another group, and costs which
// fail Cost.Validate, are never recorded.
func (g *Group) SetWinner(required opt.PhysicalPropsID, e *MultiExpr, cost Cost) bool {
	if e == nil || e.Group() != g.id || cost.Validate() != nil {
		return false
	}
	slot := g.ensureSlot(required)
	w := &Winner{Expr: e, Cost: cost}
	for {
		cur := slot.best.Load()
		if cur != nil && cur.Expr.IsValid() && !cost.Less(cur.Cost) {
			return false
		}
		if slot.best.CompareAndSwap(cur, w) {
			return true
		}
	}
}

// Winner returns the winner for the required properties, if there is one.
func (g *Group) Winner(required opt.PhysicalPropsID) (Winner, bool) {
	g.mu.Lock()
	slot, ok := g.mu.winners[required]
	g.mu.Unlock()
	if !ok {
		return Winner{}, false
	}
	w := slot.best.Load()
	if w == nil || !w.Expr.IsValid() {
		return Winner{}, false
	}
	return *w, true
}

// forEachWinner calls fn for each set of required properties which has a
// winner, in increasing PhysicalPropsID order.
func (g *Group) forEachWinner(fn func(required opt.PhysicalPropsID, w Winner)) {
	g.mu.Lock()
	ids := make([]opt.PhysicalPropsID, 0, len(g.mu.winners))
	for id := range g.mu.winners {
		ids = append(ids, id)
	}
	g.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if w, ok := g.Winner(id); ok {
			fn(id, w)
		}
	}
}

// Statistics returns the statistics derived for the group, or nil if none
// have been derived yet.
func (g *Group) Statistics() *props.Statistics {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mu.stats
}

// SetStatistics attaches statistics to the group. Statistics are set at most
// once; it returns false if the group already had statistics.
func (g *Group) SetStatistics(s *props.Statistics) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mu.stats != nil {
		return false
	}
	g.mu.stats = s
	return true
}

// ExploreState returns the exploration state of the group.
func (g *Group) ExploreState() ExploreState {
	return ExploreState(g.exploreState.Load())
}

// BeginExploring atomically moves the group from Unexplored to Exploring. It
// returns false if the group has already been claimed.
func (g *Group) BeginExploring() bool {
	return g.exploreState.CompareAndSwap(uint32(Unexplored), uint32(Exploring))
}

// FinishExploring marks the group as Explored and releases any waiters. It
// must only be called by the worker whose BeginExploring call succeeded.
func (g *Group) FinishExploring() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.exploreState.CompareAndSwap(uint32(Exploring), uint32(Explored)) {
		close(g.mu.explored)
	}
}

// WaitExplored blocks while the group is Exploring, until it is Explored or
// the context is canceled. It returns immediately if no worker is exploring
// the group.
func (g *Group) WaitExplored(ctx context.Context) error {
	g.mu.Lock()
	if g.ExploreState() != Exploring {
		g.mu.Unlock()
		return nil
	}
	ch := g.mu.explored
	g.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ImplementState returns the implementation state of the group.
func (g *Group) ImplementState() ExprState {
	return ExprState(g.implementState.Load())
}

// BeginImplementing atomically moves the group from Unimplemented to
// Implementing. It returns false if the group has already been claimed.
func (g *Group) BeginImplementing() bool {
	return g.implementState.CompareAndSwap(uint32(Unimplemented), uint32(Implementing))
}

// FinishImplementing marks the group as Implemented and releases any waiters.
// It must only be called by the worker whose BeginImplementing call
// succeeded.
func (g *Group) FinishImplementing() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.implementState.CompareAndSwap(uint32(Implementing), uint32(Implemented)) {
		close(g.mu.implemented)
	}
}

// WaitImplemented blocks while the group is Implementing, until it is
// Implemented or the context is canceled. It returns immediately if no
// worker is implementing the group.
func (g *Group) WaitImplemented(ctx context.Context) error {
	g.mu.Lock()
	if g.ImplementState() != Implementing {
		g.mu.Unlock()
		return nil
	}
	ch := g.mu.implemented
	g.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
