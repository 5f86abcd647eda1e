// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/util/treeprinter"
)

// FmtFlags controls how the memo output is formatted.
type FmtFlags int

// HasFlags tests whether the given flags are all set.
func (f FmtFlags) HasFlags(subset FmtFlags) bool {
	return f&subset == subset
}

const (
	// FmtPretty performs a breadth-first topological sort on the memo groups,
	// and shows the root group at the top of the memo. Groups that are not
	// reachable from the root are not shown.
	FmtPretty FmtFlags = iota

	// FmtRaw shows the raw memo groups, in the order they were originally
	// added, and including any "orphaned" groups.
	FmtRaw

	// FmtStats adds the statistics of each group to the output.
	FmtStats FmtFlags = 1 << 2
)

type memoFmtCtx struct {
	buf   *bytes.Buffer
	flags FmtFlags
}

// String formats the memo with FmtRaw.
func (m *Memo) String() string {
	return m.FormatString(FmtRaw)
}

// FormatString returns a string representation of the memo for testing and
// debugging. The given flags control which properties are shown.
func (m *Memo) FormatString(flags FmtFlags) string {
	f := memoFmtCtx{buf: &bytes.Buffer{}, flags: flags}
	return m.format(&f)
}

func (m *Memo) format(f *memoFmtCtx) string {
	var ordering []*Group
	root, rootErr := m.RootGroup()
	if f.flags.HasFlags(FmtRaw) || rootErr != nil {
		m.ForEachGroup(func(g *Group) {
			ordering = append(ordering, g)
		})
	} else {
		ordering = m.sortGroups(root)
	}

	tp := treeprinter.New()
	header := tp.Childf("memo (%d groups, %d expressions)", m.GroupCount(), m.ExprCount())

	for _, g := range ordering {
		f.buf.Reset()
		first := true
		for _, e := range g.Members() {
			if !e.IsValid() {
				continue
			}
			if !first {
				f.buf.WriteByte(' ')
			}
			first = false
			formatMember(f.buf, e)
		}
		child := header.Childf("%s: %s", g.id, f.buf.String())
		if f.flags.HasFlags(FmtStats) {
			if s := g.Statistics(); s != nil {
				child.Childf("stats: %s", s)
			}
		}
		m.formatWinners(child, g)
	}

	if rootErr == nil {
		rootProps := m.LookupPhysicalProps(m.RootProps())
		return fmt.Sprintf("root: %s, %s\n%s", root.id, rootProps, tp.String())
	}
	return tp.String()
}

func formatMember(buf *bytes.Buffer, e *MultiExpr) {
	fmt.Fprintf(buf, "(%s", e.op)
	for _, c := range e.children {
		fmt.Fprintf(buf, " %s", c)
	}
	buf.WriteByte(')')
}

func (m *Memo) formatWinners(tp treeprinter.Node, g *Group) {
	g.forEachWinner(func(required opt.PhysicalPropsID, w Winner) {
		child := tp.Childf("\"%s\"", m.LookupPhysicalProps(required))
		var buf bytes.Buffer
		formatMember(&buf, w.Expr)
		child.Childf("best: %s", buf.String())
		child.Childf("cost: %s", w.Cost)
	})
}

// sortGroups sorts groups reachable from the root by doing a BFS topological
// sort.
func (m *Memo) sortGroups(root *Group) []*Group {
	indegrees := make(map[opt.GroupID]int)
	m.computeIndegrees(root, make(map[opt.GroupID]bool), indegrees)

	res := make([]*Group, 0, len(indegrees)+1)
	queue := []*Group{root}
	for len(queue) > 0 {
		var next *Group
		next, queue = queue[0], queue[1:]
		res = append(res, next)

		// When we visit a group, we conceptually remove it from the dependency
		// graph, so all of its dependencies have their indegree reduced by one.
		// Any dependencies which have no more dependents can now be visited and
		// are added to the queue.
		m.forEachDependency(next, func(dep *Group) {
			indegrees[dep.id]--
			if indegrees[dep.id] == 0 {
				queue = append(queue, dep)
			}
		})
	}
	return res
}

// forEachDependency runs fn for each child group of each valid member of g.
func (m *Memo) forEachDependency(g *Group, fn func(*Group)) {
	for _, e := range g.Members() {
		if !e.IsValid() {
			continue
		}
		for _, c := range e.children {
			if child, err := m.Group(c); err == nil {
				fn(child)
			}
		}
	}
}

// computeIndegrees computes the indegree (number of dependents) of each group
// reachable from g. It also populates reachable with true for all reachable
// ids.
func (m *Memo) computeIndegrees(
	g *Group, reachable map[opt.GroupID]bool, indegrees map[opt.GroupID]int,
) {
	if reachable[g.id] {
		return
	}
	reachable[g.id] = true
	m.forEachDependency(g, func(dep *Group) {
		indegrees[dep.id]++
		m.computeIndegrees(dep, reachable, indegrees)
	})
}
