// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package opt

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// The following errors are used as markers (see errors.Mark), so that callers
// can check the category of an error with errors.Is regardless of the detail
// message it carries.
var (
	// ErrArityMismatch is returned when an expression is constructed with a
	// number of children that differs from its operator's arity.
	ErrArityMismatch = errors.New("arity mismatch")

	// ErrInconsistentGroup is raised when an insertion would put an expression
	// into a group that is not its own, or when an expression references its
	// own group as a child.
	ErrInconsistentGroup = errors.New("inconsistent group")

	// ErrInvalidCost is returned when a cost is NaN, infinite or negative.
	ErrInvalidCost = errors.New("invalid cost")

	// ErrNotFound is returned by lookups of unknown ids, and when no plan
	// exists for a group under the requested properties.
	ErrNotFound = errors.New("not found")
)

// NewArityMismatchError returns an ErrArityMismatch error for an operator that
// was given the wrong number of children.
func NewArityMismatchError(op Operator, children int) error {
	return errors.Mark(
		errors.Newf("operator %s expects %d children, got %d",
			redact.Safe(op.String()), redact.Safe(op.Arity()), redact.Safe(children)),
		ErrArityMismatch,
	)
}

// NewInconsistentGroupError returns an ErrInconsistentGroup error with the
// given detail message.
func NewInconsistentGroupError(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrInconsistentGroup)
}

// NewInvalidCostError returns an ErrInvalidCost error for the given value.
func NewInvalidCostError(cost float64) error {
	return errors.Mark(errors.Newf("cost %v is not a finite non-negative number", redact.Safe(cost)), ErrInvalidCost)
}

// NewNotFoundError returns an ErrNotFound error with the given detail message.
func NewNotFoundError(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrNotFound)
}
