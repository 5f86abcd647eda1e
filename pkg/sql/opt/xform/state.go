// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package xform

import (
	"github.com/cockroachdb/cascades/pkg/sql/opt"
	"github.com/cockroachdb/cascades/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/cascades/pkg/util"
	"github.com/cockroachdb/errors"
)

// optState contains all the relevant information about the costing state of
// the different groups in the memo. Costing is sequential, so optState is not
// synchronized.
type optState struct {
	// stateMap allocates temporary storage that's used to speed up costing.
	// This state could be discarded once optimization is complete.
	stateMap   map[groupStateKey]*groupState
	stateAlloc groupStateAlloc
}

func (o *optState) init() {
	o.stateMap = make(map[groupStateKey]*groupState)
}

// lookupOptState looks up the state associated with the given group and
// properties. If no state exists yet, then lookupOptState returns nil.
func (o *optState) lookupOptState(grp opt.GroupID, required opt.PhysicalPropsID) *groupState {
	return o.stateMap[groupStateKey{group: grp, required: required}]
}

// ensureOptState looks up the state associated with the given group and
// properties. If none is associated yet, then ensureOptState allocates new
// state and returns it.
func (o *optState) ensureOptState(
	grp opt.GroupID, required opt.PhysicalPropsID, props *physical.Required,
) *groupState {
	key := groupStateKey{group: grp, required: required}
	state, ok := o.stateMap[key]
	if !ok {
		state = o.stateAlloc.allocate()
		state.required = props
		o.stateMap[key] = state
	}
	return state
}

// isCosted returns true if the group has been fully costed with respect to the
// required properties.
func (o *optState) isCosted(grp opt.GroupID, required opt.PhysicalPropsID) bool {
	state := o.lookupOptState(grp, required)
	return state != nil && state.fullyOptimized
}

// groupStateKey associates groupState with a group that is being optimized
// with respect to a set of physical properties.
type groupStateKey struct {
	group    opt.GroupID
	required opt.PhysicalPropsID
}

// groupState is temporary storage that's associated with each group that's
// costed (or same group with different sets of physical properties). The
// optimizer stores various flags here that allow it to short-circuit already
// traversed parts of the memo.
type groupState struct {
	// required is the set of physical properties that must be provided by the
	// lowest cost expression. An expression that cannot provide these
	// properties cannot be the winner, no matter how low its cost.
	required *physical.Required

	// fullyOptimized is set to true once the lowest cost expression has been
	// found for a memo group, with respect to the required properties. A lower
	// cost expression will never be found, no matter how many additional
	// costing passes are made. It stays false when a candidate was pruned by
	// the cost budget, so that a later pass with a larger budget revisits it.
	fullyOptimized bool

	// fullyOptimizedExprs contains the set of ordinal positions of each member
	// expression in the group that has been fully costed for the required
	// properties. These never need to be recosted.
	fullyOptimizedExprs util.FastIntSet

	// inProgress is set while the group is being costed, so that a cyclic
	// reference back to the group is treated as having no plan.
	inProgress bool
}

// isMemberFullyOptimized returns true if the group member at the given ordinal
// position has been fully costed for the required properties.
func (os *groupState) isMemberFullyOptimized(ord int) bool {
	return os.fullyOptimizedExprs.Contains(ord)
}

// markMemberAsFullyOptimized marks the group member at the given ordinal
// position as fully costed for the required properties.
func (os *groupState) markMemberAsFullyOptimized(ord int) {
	if os.fullyOptimized {
		panic(errors.AssertionFailedf("best expression is already fully optimized"))
	}
	if os.isMemberFullyOptimized(ord) {
		panic(errors.AssertionFailedf("memo expression is already fully optimized for required physical properties"))
	}
	os.fullyOptimizedExprs.Add(ord)
}

// groupStateAlloc allocates pages of groupState structs. This is preferable to
// a slice of groupState structs because pointers are not invalidated when a
// resize occurs, and because there's no need to retain a stable index.
type groupStateAlloc struct {
	page []groupState
}

// allocate returns a pointer to a new, empty groupState struct. The pointer is
// stable, meaning that its location won't change as other groupState structs
// are allocated.
func (a *groupStateAlloc) allocate() *groupState {
	if len(a.page) == 0 {
		a.page = make([]groupState, 8)
	}
	state := &a.page[0]
	a.page = a.page[1:]
	return state
}
