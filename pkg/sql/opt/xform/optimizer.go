// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package xform contains the search driver of the optimizer: it explores the
// memo with rules, implements logical expressions with physical ones, and
// costs them to pick the lowest cost plan.
package xform

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/sql/opt/memo"
	"github.com/cockroachdb/cascades/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/cascades/pkg/util"
	"github.com/cockroachdb/cascades/pkg/util/log"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
)

// Optimizer transforms the contents of a memo into the lowest cost plan. It
// proceeds in three phases over the groups reachable from the root:
//
//  1. Explore: explore rules fire on every logical member of every group,
//     adding logically equivalent alternatives to the same group. Child
//     groups are explored before the members that reference them.
//  2. Implement: implement rules fire on every logical member, adding
//     physical alternatives to the same group.
//  3. Cost: for each required set of physical properties, every physical
//     member is costed, top-down, and the lowest cost member becomes the
//     group's winner for those properties.
//
// Rules can reveal that two groups are logically equivalent. Such groups are
// merged between passes, and the passes are repeated over the groups the
// merge affected (see memo.Memo.MergeGroups).
//
// Exploration and implementation of independent child groups can run in
// parallel (see Options.Parallelism). Costing is sequential, which makes the
// chosen plan deterministic for a given memo.
type Optimizer struct {
	mem    *memo.Memo
	rules  *RuleRegistry
	coster Coster
	stats  StatisticsBuilder
	opts   Options

	// optsErr is set if the options failed validation. It is returned by
	// every entry point.
	optsErr  error
	disabled opt.RuleSet

	metrics *Metrics

	// exploreSteps counts explore rule firings, for Options.MaxExploreSteps.
	exploreSteps atomic.Int64
	// exploreLimitHit is set once the explore step limit has been reported.
	exploreLimitHit atomic.Bool

	// invalidCostLog rate limits warnings about candidates with invalid costs.
	invalidCostLog log.EveryN

	// optState is only accessed during costing, which is sequential.
	optState optState
	// statsInProgress holds the groups whose statistics are being derived.
	statsInProgress util.FastIntSet
}

// New returns an optimizer for the given memo. The memo is expected to
// already contain the query tree, e.g. inserted with memo.InsertTree.
func New(
	mem *memo.Memo, rules *RuleRegistry, coster Coster, stats StatisticsBuilder, opts Options,
) *Optimizer {
	o := &Optimizer{
		mem:            mem,
		rules:          rules,
		coster:         coster,
		stats:          stats,
		opts:           opts,
		metrics:        NewMetrics(),
		invalidCostLog: log.Every(10 * time.Second),
	}
	if o.optsErr = o.opts.Validate(); o.optsErr == nil {
		o.disabled, _ = o.opts.disabledRuleSet()
	}
	o.optState.init()
	return o
}

// Memo returns the memo the optimizer works on.
func (o *Optimizer) Memo() *memo.Memo {
	return o.mem
}

// Options returns the options of the optimizer.
func (o *Optimizer) Options() Options {
	return o.opts
}

// Metrics returns the counters updated by the optimizer. They are not
// registered with any registry.
func (o *Optimizer) Metrics() *Metrics {
	return o.metrics
}

// Optimize finds the lowest cost plan for the root group which provides the
// required physical properties. It records the root in the memo, explores and
// implements every group reachable from it, and costs them. It returns the
// root's winning expression and the cost of the plan rooted at it, or an
// opt.ErrNotFound error if no plan provides the required properties within
// Options.CostUpperBound. A nil required is the same as physical.MinRequired.
func (o *Optimizer) Optimize(
	ctx context.Context, root opt.GroupID, required *physical.Required,
) (_ *memo.MultiExpr, _ memo.Cost, err error) {
	if o.optsErr != nil {
		return nil, memo.Cost{}, o.optsErr
	}
	defer func() {
		if r := recover(); r != nil {
			err = opt.CatchOptimizerError(r)
		}
	}()

	ctx = logtags.AddTag(ctx, "opt", nil)
	required = orMinRequired(required)
	if err := o.mem.SetRoot(root, required); err != nil {
		return nil, memo.Cost{}, err
	}
	if err := o.search(ctx, root, true /* explore */, true /* implement */); err != nil {
		return nil, memo.Cost{}, err
	}
	o.optimizeGroup(ctx, root, o.mem.RootProps(), o.opts.initialBudget())

	e, cost, err := o.BestPlan(root, required)
	if err != nil {
		return nil, memo.Cost{}, err
	}
	log.VEventf(ctx, 1, "optimized %s: %d groups, %d expressions, best %s with cost %s",
		root, o.mem.GroupCount(), o.mem.ExprCount(), e, cost)
	return e, cost, nil
}

// ExploreGroup fires explore rules on the group and, transitively, on every
// group it references, until no rule produces a new expression.
func (o *Optimizer) ExploreGroup(ctx context.Context, id opt.GroupID) (err error) {
	if o.optsErr != nil {
		return o.optsErr
	}
	defer func() {
		if r := recover(); r != nil {
			err = opt.CatchOptimizerError(r)
		}
	}()
	return o.search(logtags.AddTag(ctx, "opt", nil), id, true /* explore */, false /* implement */)
}

// ImplementGroup fires implement rules on every logical member of the group
// and, transitively, of every group it references.
func (o *Optimizer) ImplementGroup(ctx context.Context, id opt.GroupID) (err error) {
	if o.optsErr != nil {
		return o.optsErr
	}
	defer func() {
		if r := recover(); r != nil {
			err = opt.CatchOptimizerError(r)
		}
	}()
	return o.search(logtags.AddTag(ctx, "opt", nil), id, false /* explore */, true /* implement */)
}

// OptimizeGroup costs the physical members of the group, and of the groups
// they reference, for the interned properties. Candidates whose cost exceeds
// the budget are pruned. It returns the winner of the group, or an
// opt.ErrNotFound error if there is none.
func (o *Optimizer) OptimizeGroup(
	ctx context.Context, id opt.GroupID, required opt.PhysicalPropsID, budget memo.Cost,
) (_ *memo.MultiExpr, _ memo.Cost, err error) {
	if o.optsErr != nil {
		return nil, memo.Cost{}, o.optsErr
	}
	defer func() {
		if r := recover(); r != nil {
			err = opt.CatchOptimizerError(r)
		}
	}()
	if _, err := o.mem.Group(id); err != nil {
		return nil, memo.Cost{}, err
	}
	w, ok := o.optimizeGroup(logtags.AddTag(ctx, "opt", nil), id, required, budget)
	if !ok {
		return nil, memo.Cost{}, opt.NewNotFoundError(
			"no plan for %s provides %s within %s", id, o.mem.LookupPhysicalProps(required), budget)
	}
	return w.Expr, w.Cost, nil
}

// BestPlan returns the winner of the group for the required properties, along
// with the cost of the plan rooted at it. It returns an opt.ErrNotFound error
// if the group has not been costed for those properties, or if no plan
// provides them. A nil required is the same as physical.MinRequired.
func (o *Optimizer) BestPlan(
	id opt.GroupID, required *physical.Required,
) (*memo.MultiExpr, memo.Cost, error) {
	required = orMinRequired(required)
	g, err := o.mem.Group(id)
	if err != nil {
		return nil, memo.Cost{}, err
	}
	w, ok := g.Winner(o.mem.InternPhysicalProps(required))
	if !ok {
		return nil, memo.Cost{}, opt.NewNotFoundError("no plan for %s provides %s", id, required)
	}
	return w.Expr, w.Cost, nil
}

func orMinRequired(required *physical.Required) *physical.Required {
	if required == nil {
		return physical.MinRequired
	}
	return required
}

// group returns the memo group with the given id. The id must exist.
func (o *Optimizer) group(id opt.GroupID) *memo.Group {
	g, err := o.mem.Group(id)
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "dangling group reference"))
	}
	return g
}

// exprOutcome is the result of costing one candidate.
type exprOutcome uint8

const (
	// exprCosted means the candidate was assigned a cost and offered as the
	// winner.
	exprCosted exprOutcome = iota
	// exprInfeasible means the candidate cannot provide the required
	// properties, or one of its children has no plan.
	exprInfeasible
	// exprInvalidCost means the coster refused the candidate.
	exprInvalidCost
	// exprPruned means the candidate was abandoned because it exceeded the
	// cost budget.
	exprPruned
)

// optimizeGroup finds the lowest cost member of the group which provides the
// required properties, and records it as the group's winner. Results are
// memoized in optState: a group which was fully optimized for the properties
// is not costed again.
//
// budget is an upper bound on the cost of interest to the caller. Candidates
// exceeding it are abandoned; when that happens the group is not marked as
// fully optimized, so that a later call with a larger budget costs them.
func (o *Optimizer) optimizeGroup(
	ctx context.Context, id opt.GroupID, requiredID opt.PhysicalPropsID, budget memo.Cost,
) (memo.Winner, bool) {
	g := o.group(id)
	id = g.ID()
	required := o.mem.LookupPhysicalProps(requiredID)
	state := o.optState.ensureOptState(id, requiredID, required)
	if state.fullyOptimized || state.inProgress {
		return g.Winner(requiredID)
	}
	if err := ctx.Err(); err != nil {
		panic(err)
	}
	state.inProgress = true
	defer func() { state.inProgress = false }()

	o.ensureStatistics(g)

	fullyOptimized := true
	for ord, e := range g.Members() {
		if !e.IsValid() || !e.Op().IsPhysical() || state.isMemberFullyOptimized(ord) {
			continue
		}

		// A candidate never needs to cost more than the current winner.
		limit, bounded := budget, false
		if w, ok := g.Winner(requiredID); ok && w.Cost.Less(limit) {
			limit, bounded = w.Cost, true
		}

		if o.optimizeExpr(ctx, g, e, required, requiredID, limit) == exprPruned {
			o.metrics.CandidatesPruned.Inc()
			if !bounded {
				// The candidate may still win under a larger budget.
				fullyOptimized = false
				continue
			}
		}
		state.markMemberAsFullyOptimized(ord)
	}
	state.fullyOptimized = fullyOptimized
	return g.Winner(requiredID)
}

// optimizeExpr costs a single physical candidate, after costing its children
// under the properties the candidate requires of them.
func (o *Optimizer) optimizeExpr(
	ctx context.Context,
	g *memo.Group,
	e *memo.MultiExpr,
	required *physical.Required,
	requiredID opt.PhysicalPropsID,
	limit memo.Cost,
) exprOutcome {
	if !physical.CanProvide(e.Op(), required) {
		return exprInfeasible
	}

	childCosts := make([]memo.Cost, e.ChildCount())
	var childTotal memo.Cost
	for i := range childCosts {
		child := e.Child(i)
		childRequired := o.mem.InternPhysicalProps(physical.ChildRequired(e.Op(), required, i))
		childBudget := limit
		childBudget.Sub(childTotal)

		w, ok := o.optimizeGroup(ctx, child, childRequired, childBudget)
		if !ok {
			if o.optState.isCosted(child, childRequired) {
				return exprInfeasible
			}
			return exprPruned
		}
		childCosts[i] = w.Cost
		childTotal.Add(w.Cost)
		if limit.Less(childTotal) {
			return exprPruned
		}
	}

	cost, err := o.coster.ComputeCost(e, required, childCosts)
	if err == nil {
		err = cost.Validate()
	}
	if err != nil {
		if !errors.Is(err, opt.ErrInvalidCost) {
			panic(errors.Wrapf(err, "costing expression %s in %s", e, g.ID()))
		}
		o.metrics.InvalidCosts.Inc()
		log.VEventf(ctx, 1, "excluding expression %s in %s: %v", e, g.ID(), err)
		if o.invalidCostLog.ShouldLog() {
			log.Warningf(ctx, "coster returned an invalid cost for %s: %v", e, err)
		}
		return exprInvalidCost
	}
	o.metrics.CandidatesCosted.Inc()

	cost.Add(childTotal)
	if limit.Less(cost) {
		return exprPruned
	}
	if g.SetWinner(requiredID, e, cost) {
		log.VEventf(ctx, 2, "%s is the best expression of %s for %s, with cost %s",
			e, g.ID(), required, cost)
	}
	return exprCosted
}

// ensureStatistics derives the statistics of the group, and of the groups it
// references, if they have not been derived yet. The statistics are derived
// from the first valid member for which the StatisticsBuilder produces them.
func (o *Optimizer) ensureStatistics(g *memo.Group) {
	if g.Statistics() != nil || o.statsInProgress.Contains(int(g.ID())) {
		return
	}
	o.statsInProgress.Add(int(g.ID()))
	defer o.statsInProgress.Remove(int(g.ID()))

	for _, e := range g.Members() {
		if !e.IsValid() {
			continue
		}
		for i := 0; i < e.ChildCount(); i++ {
			o.ensureStatistics(o.group(e.Child(i)))
		}
		if s, ok := o.stats.DeriveStatistics(e, statsContext{o: o, e: e}); ok {
			g.SetStatistics(s)
			return
		}
	}
}
