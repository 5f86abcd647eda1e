// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package xform

import (
	"context"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/sql/opt/memo"
	"github.com/cockroachdb/cascades/pkg/util"
	"github.com/cockroachdb/cascades/pkg/util/log"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"golang.org/x/sync/errgroup"
)

// exploreGroup fires explore rules on every logical member of the group,
// including members added by the rules themselves. The child groups of each
// member are explored before the member.
//
// A group is explored once: the first worker to claim it does the work, and
// any other worker reaching it waits until it is explored. path holds the
// groups on the current recursion path; reaching one of them again means the
// memo has a cycle, and the group is skipped instead of waited on.
func (o *Optimizer) exploreGroup(ctx context.Context, id opt.GroupID, path util.FastIntSet) error {
	g, err := o.mem.Group(id)
	if err != nil {
		return err
	}
	id = g.ID()
	if path.Contains(int(id)) {
		return nil
	}
	if !g.BeginExploring() {
		if g.ExploreState() == memo.Explored {
			return nil
		}
		return g.WaitExplored(ctx)
	}
	defer g.FinishExploring()
	o.metrics.GroupsExplored.Inc()

	ctx = logtags.AddTag(ctx, "g", int(id))
	path = path.Copy()
	path.Add(int(id))
	for {
		e, ok := g.NextCandidate(opt.ExplorePhase)
		if !ok {
			break
		}
		var children util.FastIntSet
		for i := 0; i < e.ChildCount(); i++ {
			children.Add(int(e.Child(i)))
		}
		if err := o.forEachGroup(ctx, children, path, o.exploreGroup); err != nil {
			return err
		}
		if err := o.fireRules(ctx, g, e, opt.ExplorePhase); err != nil {
			return err
		}
	}
	log.VEventf(ctx, 2, "explored %s: %d members", id, g.MemberCount())
	return nil
}

// implementGroup fires implement rules on every logical member of the group,
// after implementing the groups its members reference. Like exploreGroup, a
// group is implemented once, by the worker that claims it.
func (o *Optimizer) implementGroup(
	ctx context.Context, id opt.GroupID, path util.FastIntSet,
) error {
	g, err := o.mem.Group(id)
	if err != nil {
		return err
	}
	id = g.ID()
	if path.Contains(int(id)) {
		return nil
	}
	if !g.BeginImplementing() {
		if g.ImplementState() == memo.Implemented {
			return nil
		}
		return g.WaitImplemented(ctx)
	}
	defer g.FinishImplementing()

	ctx = logtags.AddTag(ctx, "g", int(id))
	path = path.Copy()
	path.Add(int(id))

	var children util.FastIntSet
	for _, e := range g.Members() {
		if !e.IsValid() || e.Op().IsPhysical() {
			continue
		}
		for i := 0; i < e.ChildCount(); i++ {
			children.Add(int(e.Child(i)))
		}
	}
	if err := o.forEachGroup(ctx, children, path, o.implementGroup); err != nil {
		return err
	}

	for {
		e, ok := g.NextCandidate(opt.ImplementPhase)
		if !ok {
			break
		}
		if !e.TryBeginImplementing() {
			continue
		}
		err := o.fireRules(ctx, g, e, opt.ImplementPhase)
		e.MarkImplemented()
		if err != nil {
			return err
		}
	}
	return nil
}

// forEachGroup calls fn on each of the given groups. With Options.Parallelism
// greater than one, the calls run concurrently, at most Parallelism at a time.
// The first error cancels the remaining calls and is returned.
func (o *Optimizer) forEachGroup(
	ctx context.Context,
	groups util.FastIntSet,
	path util.FastIntSet,
	fn func(ctx context.Context, id opt.GroupID, path util.FastIntSet) error,
) error {
	if groups.Empty() {
		return nil
	}
	if o.opts.Parallelism <= 1 || groups.Len() == 1 {
		for id, ok := groups.Next(0); ok; id, ok = groups.Next(id + 1) {
			if err := fn(ctx, opt.GroupID(id), path); err != nil {
				return err
			}
		}
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(o.opts.Parallelism)
	groups.ForEach(func(id int) {
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = opt.CatchOptimizerError(r)
				}
			}()
			return fn(egCtx, opt.GroupID(id), path)
		})
	})
	return eg.Wait()
}

// fireRules applies each enabled rule offered by e's operator for the phase,
// in increasing RuleName order, and adds the results to e's group. It stops
// early if the context is canceled or e is invalidated.
func (o *Optimizer) fireRules(
	ctx context.Context, g *memo.Group, e *memo.MultiExpr, phase opt.Phase,
) error {
	var err error
	rules := opt.CandidateRules(e.Op(), phase).Difference(o.disabled)
	rules.ForEach(func(name opt.RuleName) {
		if err != nil || !e.IsValid() {
			return
		}
		if err = ctx.Err(); err != nil {
			return
		}
		rule, ok := o.rules.Lookup(name)
		if !ok {
			log.VEventf(ctx, 3, "rule %s is not registered", name)
			return
		}
		if phase == opt.ExplorePhase {
			if !o.takeExploreStep(ctx) {
				return
			}
			o.metrics.ExploreRulesFired.Inc()
		} else {
			o.metrics.ImplementRulesFired.Inc()
		}

		ruleCtx := logtags.AddTag(ctx, "rule", name.String())
		results := rule.Apply(e, &RuleContext{ctx: ruleCtx, mem: o.mem})
		for i := range results {
			if phase == opt.ImplementPhase {
				checkImplementResult(name, e, results[i])
			}
			o.addResult(ruleCtx, g, e, name, results[i])
		}
	})
	return err
}

// checkImplementResult panics if the result of an implement rule is not an
// operator over existing groups. Implementation runs after the groups below
// have been explored and implemented, so a nested expression would land in a
// group that is never searched.
func checkImplementResult(name opt.RuleName, e *memo.MultiExpr, result memo.Node) {
	if result.IsGroupRef() {
		return
	}
	for i := range result.Children {
		if !result.Children[i].IsGroupRef() {
			panic(errors.Wrapf(opt.NewInconsistentGroupError(
				"implement rule produced nested expression %s", result.Children[i]),
				"applying %s to expression %s in %s", name, e, e.Group()))
		}
	}
}

// addResult inserts one result of a rule applied to e into e's group. A result
// the memo refuses is a bug in the rule, and panics with an error carrying the
// rule, the source expression and the group.
func (o *Optimizer) addResult(
	ctx context.Context, g *memo.Group, e *memo.MultiExpr, name opt.RuleName, result memo.Node,
) {
	res, added, err := o.mem.InsertDerived(result, name, e.ID(), g.ID())
	if err != nil {
		panic(errors.Wrapf(err, "applying %s to expression %s in %s", name, e, g.ID()))
	}
	if !added {
		o.metrics.DuplicatesDiscarded.Inc()
		if owner := res.Group(); owner != g.ID() {
			log.VEventf(ctx, 2, "%s already exists in %s, %s will be merged into it",
				res, owner, g.ID())
		}
		return
	}
	o.metrics.ExprsInserted.Inc()
	log.VEventf(ctx, 3, "added %s from %s", res, e)
}

// search explores the group and everything below it, then implements it if
// implement is set. Between passes, it merges the groups found to be
// equivalent; merging resets the affected groups, so the passes are repeated
// until no group is merged.
func (o *Optimizer) search(ctx context.Context, root opt.GroupID, explore, implement bool) error {
	for {
		if explore {
			if err := o.exploreGroup(ctx, root, util.FastIntSet{}); err != nil {
				return err
			}
			if o.mergeGroups(ctx) {
				continue
			}
		}
		if !implement {
			return nil
		}
		if err := o.implementGroup(ctx, root, util.FastIntSet{}); err != nil {
			return err
		}
		if !o.mergeGroups(ctx) {
			return nil
		}
	}
}

// mergeGroups merges the groups the memo found to be equivalent. It returns
// true if any group was merged. Costing state refers to groups by id, so it is
// discarded after a merge.
func (o *Optimizer) mergeGroups(ctx context.Context) bool {
	n := o.mem.MergeGroups(ctx)
	if n == 0 {
		return false
	}
	o.metrics.GroupsMerged.Add(float64(n))
	o.optState.init()
	log.VEventf(ctx, 1, "merged %d groups", n)
	return true
}

// takeExploreStep accounts for one explore rule firing. It returns false once
// Options.MaxExploreSteps firings have been made.
func (o *Optimizer) takeExploreStep(ctx context.Context) bool {
	if o.opts.MaxExploreSteps == 0 {
		return true
	}
	if o.exploreSteps.Add(1) <= int64(o.opts.MaxExploreSteps) {
		return true
	}
	if o.exploreLimitHit.CompareAndSwap(false, true) {
		log.Warningf(ctx, "explore step limit of %d reached, skipping the remaining explore rules",
			o.opts.MaxExploreSteps)
	}
	return false
}
