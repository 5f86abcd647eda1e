// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/util"
)

// ExprState tracks how far implementation of a multi-expression has
// progressed.
type ExprState uint32

const (
	// Unimplemented is the initial state of every expression.
	Unimplemented ExprState = iota

	// Implementing means that a worker has claimed the expression and is
	// firing its implement rules.
	Implementing

	// Implemented means that all implement rules have fired. Physical
	// expressions enter this state as soon as the memo accepts them.
	Implemented
)

func (s ExprState) String() string {
	switch s {
	case Unimplemented:
		return "unimplemented"
	case Implementing:
		return "implementing"
	case Implemented:
		return "implemented"
	}
	return "unknown"
}

// Signature is the hash under which the memo indexes a multi-expression. It
// combines the hash of the operator with the ids of the child groups, so two
// expressions that are Equal always have the same signature.
type Signature uint64

func (s Signature) String() string {
	return fmt.Sprintf("%016x", uint64(s))
}

func computeSignature(op opt.Operator, children []opt.GroupID) Signature {
	h := util.FNV64Init()
	h = util.FNV64AddUint64(h, op.Hash())
	for _, c := range children {
		h = util.FNV64AddUint64(h, uint64(c))
	}
	return Signature(h)
}

// MultiExpr is a compact representation of a set of expression trees: an
// operator whose inputs are memo groups rather than individual expressions.
// Every tree that can be formed by picking one member of each child group is
// represented by the same MultiExpr.
//
// A MultiExpr is created detached. The memo assigns its id and group when it
// accepts the expression; an expression the memo rejects as a duplicate stays
// detached and is therefore invalid.
type MultiExpr struct {
	// id is assigned by the memo under its write lock, before the expression
	// is published to other goroutines.
	id opt.MExprID

	op       opt.Operator
	children []opt.GroupID
	sig      Signature

	// rule and source record how the expression was derived. rule is NoRule
	// for expressions inserted from the original query tree.
	rule   opt.RuleName
	source opt.MExprID

	// group is the id of the owning group, or InvalidGroupID if the
	// expression is detached or was invalidated. Accessed atomically.
	group atomic.Uint32

	// state is an ExprState. Accessed atomically.
	state atomic.Uint32
}

// NewMultiExpr returns a detached expression with the given operator and child
// groups. It returns an opt.ErrArityMismatch error if the number of children
// does not match the operator's arity.
func NewMultiExpr(op opt.Operator, children []opt.GroupID) (*MultiExpr, error) {
	return NewDerivedMultiExpr(op, children, opt.NoRule, opt.InvalidMExprID)
}

// NewDerivedMultiExpr is like NewMultiExpr, but records that the expression
// was produced by the given rule from the source expression.
func NewDerivedMultiExpr(
	op opt.Operator, children []opt.GroupID, rule opt.RuleName, source opt.MExprID,
) (*MultiExpr, error) {
	if len(children) != op.Arity() {
		return nil, opt.NewArityMismatchError(op, len(children))
	}
	e := &MultiExpr{
		op:       op,
		children: append([]opt.GroupID(nil), children...),
		rule:     rule,
		source:   source,
	}
	e.sig = computeSignature(op, e.children)
	return e, nil
}

// ID returns the memo-assigned id of the expression, or InvalidMExprID if the
// memo has not accepted it.
func (e *MultiExpr) ID() opt.MExprID {
	return e.id
}

// Op returns the operator of the expression.
func (e *MultiExpr) Op() opt.Operator {
	return e.op
}

// ChildCount returns the number of child groups.
func (e *MultiExpr) ChildCount() int {
	return len(e.children)
}

// Child returns the nth child group.
func (e *MultiExpr) Child(nth int) opt.GroupID {
	return e.children[nth]
}

// Rule returns the rule which derived the expression, or NoRule.
func (e *MultiExpr) Rule() opt.RuleName {
	return e.rule
}

// Source returns the id of the expression the rule was applied to, or
// InvalidMExprID if the expression was not derived.
func (e *MultiExpr) Source() opt.MExprID {
	return e.source
}

// Signature returns the hash of the operator and the child groups.
func (e *MultiExpr) Signature() Signature {
	return e.sig
}

// Group returns the id of the group which owns the expression, or
// InvalidGroupID.
func (e *MultiExpr) Group() opt.GroupID {
	return opt.GroupID(e.group.Load())
}

// IsValid returns true if the expression belongs to a group. Invalid
// expressions must not be explored, implemented or costed.
func (e *MultiExpr) IsValid() bool {
	return e.Group() != opt.InvalidGroupID
}

func (e *MultiExpr) markGroup(id opt.GroupID) {
	e.group.Store(uint32(id))
}

func (e *MultiExpr) clearGroup() {
	e.group.Store(uint32(opt.InvalidGroupID))
}

// Equals returns true if the two expressions have equal operators and the
// same child groups, in the same order.
func (e *MultiExpr) Equals(other *MultiExpr) bool {
	if e == other {
		return true
	}
	if e.sig != other.sig || len(e.children) != len(other.children) {
		return false
	}
	for i := range e.children {
		if e.children[i] != other.children[i] {
			return false
		}
	}
	return e.op.Equals(other.op)
}

// references returns true if one of the children is the given group.
func (e *MultiExpr) references(id opt.GroupID) bool {
	for _, c := range e.children {
		if c == id {
			return true
		}
	}
	return false
}

// State returns the implementation state of the expression.
func (e *MultiExpr) State() ExprState {
	return ExprState(e.state.Load())
}

// TryBeginImplementing atomically moves the expression from Unimplemented to
// Implementing. It returns false if another worker already claimed it.
func (e *MultiExpr) TryBeginImplementing() bool {
	return e.state.CompareAndSwap(uint32(Unimplemented), uint32(Implementing))
}

// MarkImplemented records that all implement rules have fired.
func (e *MultiExpr) MarkImplemented() {
	e.state.Store(uint32(Implemented))
}

// IsImplemented returns true if the expression reached the Implemented state.
func (e *MultiExpr) IsImplemented() bool {
	return e.State() == Implemented
}

// String returns a debug representation such as "7:HashJoin[1,2]".
func (e *MultiExpr) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%d:%s[", e.id, e.op)
	for i, c := range e.children {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%d", c)
	}
	buf.WriteByte(']')
	return buf.String()
}

// HeadlinePrefix and DetailPrefix extend the prefixes passed to Explain for
// each level of child groups.
const (
	HeadlinePrefix = "->  "
	DetailPrefix   = "    "
)

// Explain formats the expression and, recursively, the first valid member of
// each of its child groups. The first line starts with headlinePrefix and
// every other line of the expression's own output with detailPrefix:
//
//	MultiExpression 7 (from MultiExpression 6 rule:CommuteJoin) Join
//	->  MultiExpression 4 Scan c
//	->  MultiExpression 3 Join
//	    ->  MultiExpression 1 Scan a
//	    ->  MultiExpression 2 Scan b
//
// Explain does not modify the expression or the memo.
func (e *MultiExpr) Explain(m *Memo, headlinePrefix, detailPrefix string) string {
	var buf strings.Builder
	e.explain(m, &buf, headlinePrefix, detailPrefix)
	return buf.String()
}

func (e *MultiExpr) explain(m *Memo, buf *strings.Builder, headlinePrefix, detailPrefix string) {
	fmt.Fprintf(buf, "%sMultiExpression %d", headlinePrefix, e.id)
	if e.rule != opt.NoRule {
		fmt.Fprintf(buf, " (from MultiExpression %d rule:%s)", e.source, e.rule)
	}
	buf.WriteByte(' ')
	buf.WriteString(e.op.Explain(detailPrefix))
	buf.WriteByte('\n')

	childHeadline := detailPrefix + HeadlinePrefix
	childDetail := detailPrefix + DetailPrefix
	for _, c := range e.children {
		g, err := m.Group(c)
		if err != nil {
			fmt.Fprintf(buf, "%s<missing %s>\n", childHeadline, c)
			continue
		}
		if rep := g.FirstValidMember(); rep != nil {
			rep.explain(m, buf, childHeadline, childDetail)
		} else {
			fmt.Fprintf(buf, "%s<empty %s>\n", childHeadline, c)
		}
	}
}
