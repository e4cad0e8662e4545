package store

import "fmt"

// Datom is the fundamental unit of data: an (entity, attribute,
// value) fact, with an assertion/retraction intent that exists only
// during ingestion — it is never itself persisted (spec §3).
type Datom struct {
	E     Entity
	A     Keyword
	V     Value
	Added bool
}

func (d Datom) String() string {
	sign := "+"
	if !d.Added {
		sign = "-"
	}
	return fmt.Sprintf("[%s %s %s %v]", sign, d.E, d.A, d.V)
}

// Retrieved is the decoded (e, aid, v) triple recovered from an index
// key, before it is resolved into a user-facing Datom (spec §3).
type Retrieved struct {
	E   Entity
	Aid uint32
	V   Value
}
