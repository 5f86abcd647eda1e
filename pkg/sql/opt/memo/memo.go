// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo

import (
	"context"
	"unsafe"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/cascades/pkg/util"
	"github.com/cockroachdb/cascades/pkg/util/log"
	"github.com/cockroachdb/cascades/pkg/util/syncutil"
	"github.com/cockroachdb/errors"
)

// Memo is a data structure for efficiently storing a forest of query plans.
// Conceptually, the memo is composed of a numbered set of equivalency classes
// called groups where each group contains a set of logically equivalent
// expressions. Two expressions are considered logically equivalent if:
//
//  1. They return the same number and data type of columns. However, order and
//     naming of columns doesn't matter.
//  2. They return the same number of rows, with the same values in each row.
//     However, order of rows doesn't matter.
//
// The different expressions in a single group are called memo expressions
// (memo-ized expressions). A memo expression has a list of child groups as its
// children rather than a list of individual expressions. The forest is
// composed of every possible combination of parent expression with its
// children, recursively applied.
//
// Memo expressions can be relational (e.g. join) or physical (e.g. hash
// join). Logical expressions are rewritten by explore rules into equivalent
// logical expressions, and implemented by implement rules as physical
// expressions; both kinds of rule add their results to the group of the
// expression they matched.
//
// The memo never stores the same expression twice: every expression is
// indexed by its Signature, and an insertion of an expression equal to one
// already in the memo returns the existing expression instead. When a rule
// derives, for one group, an expression that already belongs to another
// group, the two groups are the same logical class. The memo records the
// pair, and MergeGroups later folds them into one group.
//
// A Memo is safe for concurrent use. The memo lock guards the arenas and the
// signature index; each group has its own lock for its members and winners.
// When both are needed, the memo lock is acquired first.
type Memo struct {
	mu struct {
		syncutil.RWMutex

		// groups is the arena of groups, indexed by GroupID-1.
		groups []*Group

		// exprs is the arena of accepted expressions, indexed by MExprID-1.
		exprs []*MultiExpr

		// sigs indexes every accepted expression by its signature. Each bucket
		// is a collision list, resolved with MultiExpr.Equals.
		sigs map[Signature][]*MultiExpr

		// physProps is the arena of interned physical properties, indexed by
		// PhysicalPropsID-1, and physPropsMap maps their fingerprints to ids.
		physProps    []*physical.Required
		physPropsMap map[string]opt.PhysicalPropsID

		// live is the number of groups which were not merged into another.
		live int

		// pendingMerges holds pairs of groups found to be equivalent, which
		// MergeGroups has not merged yet.
		pendingMerges []groupPair

		rootGroup opt.GroupID
		rootProps opt.PhysicalPropsID
	}
}

type groupPair struct {
	a, b opt.GroupID
}

// New returns an empty memo.
func New() *Memo {
	m := &Memo{}
	m.mu.sigs = make(map[Signature][]*MultiExpr)
	m.mu.physPropsMap = make(map[string]opt.PhysicalPropsID)

	// The minimum physical property set is always interned first, so that it
	// gets MinPhysPropsID.
	if id := m.InternPhysicalProps(physical.MinRequired); id != opt.MinPhysPropsID {
		panic(errors.AssertionFailedf("MinRequired interned as %d", id))
	}
	return m
}

// GroupCount returns the number of groups in the memo, not counting groups
// which were merged into others.
func (m *Memo) GroupCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mu.live
}

// ExprCount returns the number of expressions accepted by the memo.
func (m *Memo) ExprCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mu.exprs)
}

// Group returns the group with the given id, or an opt.ErrNotFound error. If
// the group was merged, the group it was merged into is returned; its id
// differs from the requested one.
func (m *Memo) Group(id opt.GroupID) (*Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.groupLocked(id)
}

func (m *Memo) groupLocked(id opt.GroupID) (*Group, error) {
	m.mu.AssertRHeld()
	if id == opt.InvalidGroupID || int(id) > len(m.mu.groups) {
		return nil, opt.NewNotFoundError("group %s does not exist", id)
	}
	return m.mu.groups[id-1].resolve(), nil
}

// Expr returns the expression with the given id, or an opt.ErrNotFound error.
func (m *Memo) Expr(id opt.MExprID) (*MultiExpr, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id == opt.InvalidMExprID || int(id) > len(m.mu.exprs) {
		return nil, opt.NewNotFoundError("expression %d does not exist", id)
	}
	return m.mu.exprs[id-1], nil
}

// SetRoot stores the root group of the memo, along with the physical
// properties required of it.
func (m *Memo) SetRoot(id opt.GroupID, required *physical.Required) error {
	if _, err := m.Group(id); err != nil {
		return err
	}
	propsID := m.InternPhysicalProps(required)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mu.rootGroup = id
	m.mu.rootProps = propsID
	return nil
}

// RootGroup returns the root group set with SetRoot, or an opt.ErrNotFound
// error if no root has been set.
func (m *Memo) RootGroup() (*Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.mu.rootGroup == opt.InvalidGroupID {
		return nil, opt.NewNotFoundError("memo has no root group")
	}
	return m.groupLocked(m.mu.rootGroup)
}

// RootProps returns the properties required of the root group, or
// InvalidPhysicalPropsID if no root has been set.
func (m *Memo) RootProps() opt.PhysicalPropsID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mu.rootProps
}

// InternPhysicalProps adds the given properties to the memo if they haven't
// yet been added. If the same properties were added previously, then return
// the id of the previously added properties.
func (m *Memo) InternPhysicalProps(required *physical.Required) opt.PhysicalPropsID {
	key := required.String()

	m.mu.RLock()
	id, ok := m.mu.physPropsMap[key]
	m.mu.RUnlock()
	if ok {
		return id
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.mu.physPropsMap[key]; ok {
		return id
	}
	id = opt.PhysicalPropsID(len(m.mu.physProps) + 1)
	m.mu.physProps = append(m.mu.physProps, required)
	m.mu.physPropsMap[key] = id
	return id
}

// LookupPhysicalProps returns the set of physical props that have been
// interned with the given id.
func (m *Memo) LookupPhysicalProps(id opt.PhysicalPropsID) *physical.Required {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id == opt.InvalidPhysicalPropsID || int(id) > len(m.mu.physProps) {
		panic(errors.AssertionFailedf("physical properties %d were never interned", id))
	}
	return m.mu.physProps[id-1]
}

// InsertTree inserts an expression tree into the memo, bottom up, and returns
// the group of its root. Subtrees which are already present in the memo are
// not inserted again; their existing groups are reused.
func (m *Memo) InsertTree(n Node) (opt.GroupID, error) {
	return m.insertTree(n, opt.NoRule, opt.InvalidMExprID)
}

func (m *Memo) insertTree(n Node, rule opt.RuleName, source opt.MExprID) (opt.GroupID, error) {
	if n.IsGroupRef() {
		g, err := m.Group(n.Group)
		if err != nil {
			return opt.InvalidGroupID, err
		}
		return g.ID(), nil
	}
	children, err := m.insertChildren(n, rule, source)
	if err != nil {
		return opt.InvalidGroupID, err
	}
	e, err := NewDerivedMultiExpr(n.Op, children, rule, source)
	if err != nil {
		return opt.InvalidGroupID, err
	}
	e, _, err = m.InsertMultiExpr(e, opt.InvalidGroupID)
	if err != nil {
		return opt.InvalidGroupID, err
	}
	return e.Group(), nil
}

func (m *Memo) insertChildren(
	n Node, rule opt.RuleName, source opt.MExprID,
) ([]opt.GroupID, error) {
	if len(n.Children) != n.Op.Arity() {
		return nil, opt.NewArityMismatchError(n.Op, len(n.Children))
	}
	children := make([]opt.GroupID, len(n.Children))
	for i := range n.Children {
		id, err := m.insertTree(n.Children[i], rule, source)
		if err != nil {
			return nil, err
		}
		children[i] = id
	}
	return children, nil
}

// InsertDerived inserts the result of applying a rule to the source
// expression. The result must be an operator tree; its child subtrees are
// inserted first, into groups of their own, and the root is then inserted into
// the target group with InsertMultiExpr.
func (m *Memo) InsertDerived(
	result Node, rule opt.RuleName, source opt.MExprID, target opt.GroupID,
) (_ *MultiExpr, added bool, _ error) {
	if result.IsGroupRef() {
		return nil, false, opt.NewInconsistentGroupError(
			"rule %s produced a reference to %s instead of an expression", rule, result.Group)
	}
	children, err := m.insertChildren(result, rule, source)
	if err != nil {
		return nil, false, err
	}
	e, err := NewDerivedMultiExpr(result.Op, children, rule, source)
	if err != nil {
		return nil, false, err
	}
	return m.InsertMultiExpr(e, target)
}

// InsertMultiExpr is the memo's deduplication primitive. If an expression
// equal to e is already in the memo, e is left detached (and therefore
// invalid) and the existing expression is returned with added=false.
// Otherwise e is assigned a new id and added to the target group, or to a new
// group if target is InvalidGroupID, and returned with added=true.
//
// If the existing equal expression belongs to a group other than target, the
// two groups are recorded as equivalent and merged by the next call to
// MergeGroups. The existing expression is returned; callers can detect the
// case by comparing its group with target.
//
// References to merged groups, in target and in e's children, are replaced
// by the groups they were merged into before e is looked up.
//
// It returns an opt.ErrNotFound error if target or one of e's children does
// not exist, and an opt.ErrInconsistentGroup error if e already belongs to a
// group or references target as a child.
func (m *Memo) InsertMultiExpr(
	e *MultiExpr, target opt.GroupID,
) (_ *MultiExpr, added bool, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var g *Group
	if target != opt.InvalidGroupID {
		var err error
		if g, err = m.groupLocked(target); err != nil {
			return nil, false, err
		}
		target = g.id
	}
	if e.IsValid() {
		if target == opt.InvalidGroupID || e.Group() == target {
			return e, false, nil
		}
		return nil, false, opt.NewInconsistentGroupError(
			"expression %s belongs to %s, cannot be added to %s", e, e.Group(), target)
	}
	if err := m.resolveChildrenLocked(e); err != nil {
		return nil, false, err
	}

	if existing := m.lookupLocked(e); existing != nil {
		if target != opt.InvalidGroupID && existing.Group() != target {
			m.mu.pendingMerges = append(m.mu.pendingMerges, groupPair{a: target, b: existing.Group()})
		}
		return existing, false, nil
	}

	if g == nil {
		g = newGroup(opt.GroupID(len(m.mu.groups) + 1))
		m.mu.groups = append(m.mu.groups, g)
		m.mu.live++
	}
	if _, _, err := g.insert(e); err != nil {
		return nil, false, err
	}
	e.id = opt.MExprID(len(m.mu.exprs) + 1)
	m.mu.exprs = append(m.mu.exprs, e)
	m.mu.sigs[e.sig] = append(m.mu.sigs[e.sig], e)
	if e.op.IsPhysical() {
		e.MarkImplemented()
	}
	return e, true, nil
}

// resolveChildrenLocked checks that the children of the detached expression e
// exist, and replaces references to merged groups by the groups they were
// merged into.
func (m *Memo) resolveChildrenLocked(e *MultiExpr) error {
	changed := false
	for i, c := range e.children {
		child, err := m.groupLocked(c)
		if err != nil {
			return errors.Wrapf(err, "inserting %s", e.op)
		}
		if child.id != c {
			e.children[i] = child.id
			changed = true
		}
	}
	if changed {
		e.sig = computeSignature(e.op, e.children)
	}
	return nil
}

// MergeGroups merges the groups which InsertMultiExpr found to be
// equivalent. Of two equivalent groups, the one with the higher id is merged
// into the other: its members move to the surviving group, and it forwards to
// that group from then on.
//
// Merging rewrites every expression that references a merged group to
// reference the surviving group instead. A rewritten expression that turns
// out to equal another expression is dropped, which can reveal further
// equivalent groups; those are merged as well. A rewritten expression that
// references its own group is dropped.
//
// The surviving groups, and every group with a member that references one of
// them transitively, are reset to Unexplored and Unimplemented, since rules
// that fired on them did not see the merged members.
//
// Groups which some worker is currently exploring or implementing are not
// merged; their pairs stay pending until a later call. MergeGroups returns
// the number of groups merged.
func (m *Memo) MergeGroups(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := 0
	var survivors util.FastIntSet
	for len(m.mu.pendingMerges) > 0 {
		pending := m.mu.pendingMerges
		m.mu.pendingMerges = nil
		var deferred []groupPair
		progress := false
		for _, p := range pending {
			a, b := m.mu.groups[p.a-1].resolve(), m.mu.groups[p.b-1].resolve()
			if a == b {
				continue
			}
			if a.busy() || b.busy() {
				deferred = append(deferred, p)
				continue
			}
			if b.id < a.id {
				a, b = b, a
			}
			a.absorb(b)
			m.mu.live--
			merged++
			progress = true
			survivors.Add(int(a.id))
			log.VEventf(ctx, 2, "merged %s into %s", b.id, a.id)
		}
		if progress {
			m.rehashLocked(ctx)
		}
		m.mu.pendingMerges = append(m.mu.pendingMerges, deferred...)
		if !progress {
			break
		}
	}
	if merged > 0 {
		m.resetDependentsLocked(survivors)
	}
	return merged
}

// rehashLocked replaces each valid expression that references a merged group
// with an expression referencing the surviving group. The replacement keeps
// the id, the derivation and the implementation state of the original, and
// takes its place in the group. Expressions that now reference their own
// group are dropped.
func (m *Memo) rehashLocked(ctx context.Context) {
	m.mu.AssertHeld()
	for i, e := range m.mu.exprs {
		owner := e.Group()
		if owner == opt.InvalidGroupID || (!m.referencesMergedLocked(e) && !e.references(owner)) {
			continue
		}
		children := make([]opt.GroupID, len(e.children))
		for j, c := range e.children {
			children[j] = m.mu.groups[c-1].resolve().id
		}
		repl := &MultiExpr{
			id:       e.id,
			op:       e.op,
			children: children,
			rule:     e.rule,
			source:   e.source,
		}
		repl.sig = computeSignature(repl.op, repl.children)
		repl.state.Store(e.state.Load())

		m.removeSignatureLocked(e)
		g := m.mu.groups[owner-1]
		if repl.references(owner) {
			log.VEventf(ctx, 2, "dropping %s: it references its own group %s", repl, owner)
			g.replaceMember(e, nil)
			continue
		}
		if existing := m.lookupLocked(repl); existing != nil {
			if existing.Group() != owner {
				m.mu.pendingMerges = append(m.mu.pendingMerges, groupPair{a: owner, b: existing.Group()})
			}
			g.replaceMember(e, nil)
			continue
		}
		g.replaceMember(e, repl)
		m.mu.exprs[i] = repl
		m.mu.sigs[repl.sig] = append(m.mu.sigs[repl.sig], repl)
	}
}

func (m *Memo) referencesMergedLocked(e *MultiExpr) bool {
	for _, c := range e.children {
		if m.mu.groups[c-1].IsMerged() {
			return true
		}
	}
	return false
}

func (m *Memo) removeSignatureLocked(e *MultiExpr) {
	bucket := m.mu.sigs[e.sig]
	for i := range bucket {
		if bucket[i] == e {
			bucket = append(bucket[:i:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(m.mu.sigs, e.sig)
	} else {
		m.mu.sigs[e.sig] = bucket
	}
}

// resetDependentsLocked resets the exploration and implementation of the given
// groups, and of every group that depends on one of them.
func (m *Memo) resetDependentsLocked(survivors util.FastIntSet) {
	var reset util.FastIntSet
	survivors.ForEach(func(id int) {
		reset.Add(int(m.mu.groups[id-1].resolve().id))
	})
	for changed := true; changed; {
		changed = false
		for _, e := range m.mu.exprs {
			owner := e.Group()
			if owner == opt.InvalidGroupID || reset.Contains(int(owner)) {
				continue
			}
			for _, c := range e.children {
				if reset.Contains(int(c)) {
					reset.Add(int(owner))
					changed = true
					break
				}
			}
		}
	}
	reset.ForEach(func(id int) {
		g := m.mu.groups[id-1]
		g.resetExploration()
		g.resetImplementation()
	})
}

// Lookup returns the valid expression in the memo which is equal to e, or nil.
func (m *Memo) Lookup(e *MultiExpr) *MultiExpr {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookupLocked(e)
}

func (m *Memo) lookupLocked(e *MultiExpr) *MultiExpr {
	m.mu.AssertRHeld()
	for _, candidate := range m.mu.sigs[e.sig] {
		if candidate.IsValid() && candidate.Equals(e) {
			return candidate
		}
	}
	return nil
}

// ForEachGroup calls fn for each group in the memo which was not merged into
// another, in increasing id order. Groups added by fn are visited as well.
func (m *Memo) ForEachGroup(fn func(g *Group)) {
	for i := 0; ; i++ {
		m.mu.RLock()
		if i >= len(m.mu.groups) {
			m.mu.RUnlock()
			return
		}
		g := m.mu.groups[i]
		m.mu.RUnlock()
		if !g.IsMerged() {
			fn(g)
		}
	}
}

// MemoryEstimate returns a rough estimate of the memo's memory usage, in
// bytes.
func (m *Memo) MemoryEstimate() int64 {
	const (
		memoSize    = int64(unsafe.Sizeof(Memo{}))
		groupSize   = int64(unsafe.Sizeof(Group{}))
		exprSize    = int64(unsafe.Sizeof(MultiExpr{}))
		groupIDSize = int64(unsafe.Sizeof(opt.GroupID(0)))
		winnerSize  = int64(unsafe.Sizeof(Winner{}) + unsafe.Sizeof(winnerSlot{}))
	)
	m.mu.RLock()
	defer m.mu.RUnlock()
	size := memoSize
	for _, g := range m.mu.groups {
		size += groupSize
		g.mu.Lock()
		size += int64(cap(g.mu.members))*int64(unsafe.Sizeof((*MultiExpr)(nil))) +
			int64(len(g.mu.winners))*winnerSize
		g.mu.Unlock()
	}
	for _, e := range m.mu.exprs {
		size += exprSize + int64(len(e.children))*groupIDSize
	}
	return size
}
