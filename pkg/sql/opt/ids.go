// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package opt

import "fmt"

// GroupID identifies a memo group. Groups are numbered from 1 in the order in
// which the memo allocates them; InvalidGroupID is the zero value.
type GroupID uint32

// InvalidGroupID is the group id of an expression that has not been added to
// the memo, or that was discarded as a duplicate.
const InvalidGroupID GroupID = 0

// String formats the id the way the memo prints group references.
func (id GroupID) String() string {
	return fmt.Sprintf("G%d", uint32(id))
}

// SafeValue implements the redact.SafeValue interface.
func (GroupID) SafeValue() {}

// MExprID identifies a multi-expression in the memo. Ids are assigned when the
// memo accepts an expression and never change afterwards.
type MExprID uint32

// InvalidMExprID is the id of an expression that the memo has not accepted.
const InvalidMExprID MExprID = 0

// SafeValue implements the redact.SafeValue interface.
func (MExprID) SafeValue() {}

// PhysicalPropsID identifies a set of interned physical properties. See
// memo.Memo.InternPhysicalProps.
type PhysicalPropsID uint32

const (
	// InvalidPhysicalPropsID is the zero value and never names a property set.
	InvalidPhysicalPropsID PhysicalPropsID = 0

	// MinPhysPropsID is the id of the well-known set of physical properties
	// that requires nothing of an operator. Therefore, every operator is
	// guaranteed to provide this set of properties. This is typically the most
	// commonly used set of physical properties in the memo, since most
	// operators do not require any physical properties from their children.
	MinPhysPropsID PhysicalPropsID = 1
)

// SafeValue implements the redact.SafeValue interface.
func (PhysicalPropsID) SafeValue() {}
