package kv

import "errors"

// Sentinel errors, matching spec §7's named error kinds.
var (
	// ErrClosed is returned, unwrapped, by any operation on a closed
	// store.
	ErrClosed = errors.New("kv: store is closed")

	// ErrUnknownAttribute is returned by LoadDatoms, wrapped with
	// fmt.Errorf("...: %w"), when a retraction names an attribute
	// absent from the schema; the policy is to surface rather than
	// no-op (see DESIGN.md).
	ErrUnknownAttribute = errors.New("kv: unknown attribute")
)
