// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package xform

import (
	"context"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/sql/opt/memo"
	"github.com/cockroachdb/errors"
)

// Rule is a transformation that matches a logical multi-expression and
// produces equivalent expressions for the same group. Explore rules produce
// logical alternatives; implement rules produce physical ones.
type Rule interface {
	// Name identifies the rule. It must be an explore or implement rule name.
	Name() opt.RuleName

	// Apply returns the expressions derived from e. The children of each
	// result are group references or nested trees; nested trees are inserted
	// into groups of their own before the result is added to e's group. A nil
	// result means the rule did not match.
	Apply(e *memo.MultiExpr, ctx *RuleContext) []memo.Node
}

// RuleContext gives rules read access to the memo while they are applied.
type RuleContext struct {
	ctx context.Context
	mem *memo.Memo
}

// Context returns the context of the optimization, tagged with the rule and
// the group being transformed.
func (c *RuleContext) Context() context.Context {
	return c.ctx
}

// Memo returns the memo the rule is applied to. Rules must not insert into it
// directly; they return their results instead.
func (c *RuleContext) Memo() *memo.Memo {
	return c.mem
}

// LogicalMembers returns the valid logical members of the given group, or nil
// if the group does not exist.
func (c *RuleContext) LogicalMembers(id opt.GroupID) []*memo.MultiExpr {
	g, err := c.mem.Group(id)
	if err != nil {
		return nil
	}
	members := g.Members()
	res := members[:0]
	for _, e := range members {
		if e.IsValid() && !e.Op().IsPhysical() {
			res = append(res, e)
		}
	}
	return res
}

// RuleRegistry maps rule names to their implementations.
type RuleRegistry struct {
	rules [opt.NumRuleNames]Rule
}

// NewRuleRegistry returns a registry containing the given rules.
func NewRuleRegistry(rules ...Rule) (*RuleRegistry, error) {
	r := &RuleRegistry{}
	for _, rule := range rules {
		if err := r.Register(rule); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a rule to the registry. It is an error to register NoRule, a
// name outside the enumeration, or the same name twice.
func (r *RuleRegistry) Register(rule Rule) error {
	name := rule.Name()
	if name == opt.NoRule || name >= opt.NumRuleNames {
		return errors.Newf("cannot register rule with name %s", name)
	}
	if !name.IsExplore() && !name.IsImplement() {
		return errors.Newf("rule %s is neither an explore nor an implement rule", name)
	}
	if r.rules[name] != nil {
		return errors.Newf("rule %s is already registered", name)
	}
	r.rules[name] = rule
	return nil
}

// Lookup returns the rule registered under the given name.
func (r *RuleRegistry) Lookup(name opt.RuleName) (Rule, bool) {
	if name >= opt.NumRuleNames || r.rules[name] == nil {
		return nil, false
	}
	return r.rules[name], true
}

// Names returns the set of registered rule names.
func (r *RuleRegistry) Names() opt.RuleSet {
	var s opt.RuleSet
	for i := range r.rules {
		if r.rules[i] != nil {
			s.Add(opt.RuleName(i))
		}
	}
	return s
}
