// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo

import (
	"bytes"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/emicklei/dot"
)

// FormatDot returns the memo as a Graphviz digraph. Each group is a node
// labeled like a line of FmtRaw output, and each group has one edge to every
// distinct group its members reference. The root group, if set, is drawn
// with a double border.
func (m *Memo) FormatDot() string {
	g := dot.NewGraph(dot.Directed)
	g.Attr("rankdir", "BT")

	var root opt.GroupID
	if r, err := m.RootGroup(); err == nil {
		root = r.ID()
	}

	nodes := make(map[opt.GroupID]dot.Node)
	node := func(id opt.GroupID) dot.Node {
		n, ok := nodes[id]
		if !ok {
			n = g.Node(id.String()).Attr("shape", "box")
			nodes[id] = n
		}
		return n
	}

	var buf bytes.Buffer
	m.ForEachGroup(func(grp *Group) {
		buf.Reset()
		buf.WriteString(grp.id.String())
		buf.WriteByte(':')
		seen := make(map[opt.GroupID]bool)
		var children []opt.GroupID
		for _, e := range grp.Members() {
			if !e.IsValid() {
				continue
			}
			buf.WriteByte(' ')
			formatMember(&buf, e)
			for _, c := range e.children {
				if !seen[c] {
					seen[c] = true
					children = append(children, c)
				}
			}
		}
		n := node(grp.id).Attr("label", buf.String())
		if grp.id == root {
			n.Attr("peripheries", "2")
		}
		for _, c := range children {
			g.Edge(n, node(c))
		}
	})
	return g.String()
}
