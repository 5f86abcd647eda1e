// Copyright 2017 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package treeprinter renders trees with box-drawing edges, for memo and plan
// output.
package treeprinter

import (
	"fmt"
	"strings"
)

var (
	edgeLink = []rune(" │")
	edgeMid  = []rune(" ├── ")
	edgeLast = []rune(" └── ")
)

// indentWidth is the number of columns by which each level is indented.
var indentWidth = len(edgeLast)

// Node is a handle associated with a specific depth in a tree. Sample usage:
//
//	tp := New()
//	root := tp.Child("root")
//	root.Child("child-1")
//	root.Child("child-2").Child("grandchild\ngrandchild-more-info")
//	root.Child("child-3")
//
//	fmt.Print(tp.String())
//
// Output:
//
//	root
//	 ├── child-1
//	 ├── child-2
//	 │    └── grandchild
//	 │        grandchild-more-info
//	 └── child-3
//
// Children must be added in the order they are displayed (depth-first
// pre-order).
type Node struct {
	tree  *tree
	level int
}

type tree struct {
	rows [][]rune

	// lastChild holds, for each level, the row of the most recent node at that
	// level, or -1. A later sibling rewrites that row's edge.
	lastChild []int
}

// New creates a tree printer and returns a sentinel node reference which
// should be used to add the root.
func New() Node {
	return Node{tree: &tree{}}
}

// Childf adds a node as a child of the given node.
func (n Node) Childf(format string, args ...interface{}) Node {
	return n.Child(fmt.Sprintf(format, args...))
}

// Child adds a node as a child of the given node. Lines after the first one
// are indented under it.
func (n Node) Child(text string) Node {
	lines := strings.Split(text, "\n")
	child := n.addRow(lines[0])
	for _, l := range lines[1:] {
		n.AddLine(l)
	}
	return child
}

// AddLine adds a new line to a child node without an edge.
func (n Node) AddLine(v string) {
	n.tree.rows = append(n.tree.rows, append(spaces(n.level*indentWidth), []rune(v)...))
}

func spaces(n int) []rune {
	r := make([]rune, n)
	for i := range r {
		r[i] = ' '
	}
	return r
}

func (n Node) addRow(text string) Node {
	t := n.tree
	for len(t.lastChild) <= n.level+1 {
		t.lastChild = append(t.lastChild, -1)
	}
	// The new node closes any subtree below its level.
	t.lastChild[n.level+1] = -1

	row := []rune(text)
	if n.level == 0 {
		if t.lastChild[0] != -1 {
			panic("multiple root nodes")
		}
	} else {
		edge := (n.level - 1) * indentWidth
		row = append(append(spaces(edge), edgeLast...), row...)
		if prev := t.lastChild[n.level]; prev != -1 {
			// The previous sibling is no longer the last one.
			copy(t.rows[prev][edge:], edgeMid)
			for i := prev + 1; i < len(t.rows); i++ {
				for len(t.rows[i]) < edge+len(edgeLink) {
					t.rows[i] = append(t.rows[i], ' ')
				}
				copy(t.rows[i][edge:], edgeLink)
			}
		}
	}
	t.lastChild[n.level] = len(t.rows)
	t.rows = append(t.rows, row)
	return Node{tree: t, level: n.level + 1}
}

func (n Node) String() string {
	if n.level != 0 {
		panic("only the root can be stringified")
	}
	var buf strings.Builder
	for _, r := range n.tree.rows {
		buf.WriteString(string(r))
		buf.WriteByte('\n')
	}
	return buf.String()
}
