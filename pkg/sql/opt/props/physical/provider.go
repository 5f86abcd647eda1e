// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package physical

// Provider is implemented by physical operators which can deliver, or pass
// through, physical properties. An operator that does not implement it only
// satisfies requirements that ask for nothing, and asks nothing of its
// children.
type Provider interface {
	// CanProvide returns true if the operator, given suitable inputs, can
	// satisfy the required properties.
	CanProvide(required *Required) bool

	// ChildRequired returns the properties the operator needs from its child
	// at the given ordinal in order to satisfy the parent's required
	// properties. A nil result is treated as MinRequired.
	ChildRequired(parent *Required, childIdx int) *Required
}

// CanProvide returns true if op can satisfy the required properties.
func CanProvide(op interface{}, required *Required) bool {
	if p, ok := op.(Provider); ok {
		return p.CanProvide(required)
	}
	return required.Any()
}

// ChildRequired returns the properties that op requires of its child at the
// given ordinal.
func ChildRequired(op interface{}, parent *Required, childIdx int) *Required {
	if p, ok := op.(Provider); ok {
		if r := p.ChildRequired(parent, childIdx); r != nil {
			return r
		}
	}
	return MinRequired
}
