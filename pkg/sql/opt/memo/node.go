// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo

import (
	"strings"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
)

// Node is an expression tree to be inserted into the memo. A Node is either
// an operator with child nodes, or a reference to an existing memo group.
// Query trees are handed to the memo as Nodes, and rules describe their
// results as Nodes whose leaves are usually group references.
type Node struct {
	// Op is the operator of the node, or nil for a group reference.
	Op opt.Operator

	// Children are the inputs of the operator.
	Children []Node

	// Group is the referenced group when Op is nil.
	Group opt.GroupID
}

// Tree returns a node with the given operator and children.
func Tree(op opt.Operator, children ...Node) Node {
	return Node{Op: op, Children: children}
}

// GroupRef returns a node which stands for an existing memo group.
func GroupRef(id opt.GroupID) Node {
	return Node{Group: id}
}

// IsGroupRef returns true if the node references an existing group.
func (n Node) IsGroupRef() bool {
	return n.Op == nil
}

// String formats the node as an s-expression, e.g. "(Join (Scan a) G2)".
func (n Node) String() string {
	var buf strings.Builder
	n.format(&buf)
	return buf.String()
}

func (n Node) format(buf *strings.Builder) {
	if n.IsGroupRef() {
		buf.WriteString(n.Group.String())
		return
	}
	buf.WriteByte('(')
	buf.WriteString(n.Op.String())
	for _, c := range n.Children {
		buf.WriteByte(' ')
		c.format(buf)
	}
	buf.WriteByte(')')
}
