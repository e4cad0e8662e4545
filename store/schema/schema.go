// Package schema implements the schema catalog of spec §4.2: it maps
// attribute names to stable properties (aid, valueType, cardinality,
// unique, isComponent), allocates aids, derives the reverse schema,
// and enforces the migration rules of spec §4.2/§9.
//
// Grounded on the donor's lock-guarded, atomically-republished cache
// pattern in datalog/storage/database.go (Database.mu sync.RWMutex
// guarding txCounter/activeTx) and on pikaia79-baud's master/id_generator.go
// monotone-counter-recovered-on-open discipline for aid/gt allocation.
package schema

import (
	"fmt"

	"github.com/wbrown/dlstore/store"
)

// Cardinality is whether an attribute may hold many values per
// entity or just one.
type Cardinality byte

const (
	CardinalityOne Cardinality = iota
	CardinalityMany
)

// Unique names the uniqueness constraint an attribute enforces.
type Unique byte

const (
	UniqueNone Unique = iota
	UniqueIdentity
	UniqueValue
)

// Props is the persisted value of a schema entry: everything spec
// §3 "Attribute properties" names.
type Props struct {
	Aid         uint32          `msgpack:"aid"`
	ValueType   store.ValueType `msgpack:"value_type"`
	Cardinality Cardinality     `msgpack:"cardinality"`
	Unique      Unique          `msgpack:"unique"`
	IsComponent bool            `msgpack:"is_component"`
}

// ErrConflict is returned when a migration violates spec §4.2's
// refusal rules. No state changes when this is returned.
type ErrConflict struct {
	Attr   string
	Reason string
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("schema: migration refused for %q: %s", e.Attr, e.Reason)
}

// Implicit returns the built-in attributes seeded on first open
// (spec §3 "Lifecycle" / SPEC_FULL §4.2), in the order they should
// receive aids so reopening an empty store is deterministic.
func Implicit() []string {
	return []string{
		":db/ident",
		":db/aid",
		":db/valueType",
		":db/cardinality",
		":db/unique",
		":db/isComponent",
		":db/txInstant",
	}
}

func implicitProps(name string, aid uint32) Props {
	switch name {
	case ":db/ident":
		return Props{Aid: aid, ValueType: store.TypeString, Cardinality: CardinalityOne, Unique: UniqueIdentity}
	case ":db/aid":
		return Props{Aid: aid, ValueType: store.TypeLong, Cardinality: CardinalityOne}
	case ":db/valueType":
		return Props{Aid: aid, ValueType: store.TypeKeyword, Cardinality: CardinalityOne}
	case ":db/cardinality":
		return Props{Aid: aid, ValueType: store.TypeKeyword, Cardinality: CardinalityOne}
	case ":db/unique":
		return Props{Aid: aid, ValueType: store.TypeKeyword, Cardinality: CardinalityOne}
	case ":db/isComponent":
		return Props{Aid: aid, ValueType: store.TypeBool, Cardinality: CardinalityOne}
	case ":db/txInstant":
		return Props{Aid: aid, ValueType: store.TypeInstant, Cardinality: CardinalityOne}
	default:
		return Props{Aid: aid, ValueType: store.TypeString, Cardinality: CardinalityOne}
	}
}

// ImplicitSchema returns the seeded {attr: Props} map with aids
// assigned in Implicit()'s order starting at 1 (0 is reserved as the
// "unknown attribute" sentinel used by codec bound construction).
func ImplicitSchema() map[string]Props {
	out := make(map[string]Props)
	var aid uint32 = 1
	for _, name := range Implicit() {
		out[name] = implicitProps(name, aid)
		aid++
	}
	return out
}

// Catalog is the pure, in-memory half of the schema catalog: it knows
// how to merge, allocate, migrate, and derive, but performs no I/O.
// The kv package owns persistence and wraps Catalog with locking and
// durability.
type Catalog struct {
	schema  map[string]Props
	rschema map[string]map[string]bool // property name -> set of attrs having it
	attrs   map[uint32]string          // aid -> attr name
	maxAid  uint32
}

// New builds a Catalog from a persisted {attr: Props} map (possibly
// empty, in which case the caller is expected to seed ImplicitSchema
// first — spec §4.2: "if Schema is empty, the implicit schema is
// written first").
func New(persisted map[string]Props) *Catalog {
	c := &Catalog{
		schema: make(map[string]Props, len(persisted)),
		attrs:  make(map[uint32]string, len(persisted)),
	}
	for attr, props := range persisted {
		c.schema[attr] = props
		c.attrs[props.Aid] = attr
		if props.Aid > c.maxAid {
			c.maxAid = props.Aid
		}
	}
	c.deriveRschema()
	return c
}

// Snapshot returns a defensive copy of the current schema map,
// suitable for persisting or for publish-by-replace (spec §5, §9).
func (c *Catalog) Snapshot() map[string]Props {
	out := make(map[string]Props, len(c.schema))
	for k, v := range c.schema {
		out[k] = v
	}
	return out
}

func (c *Catalog) Schema() map[string]Props {
	return c.Snapshot()
}

func (c *Catalog) Rschema() map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(c.rschema))
	for prop, attrs := range c.rschema {
		set := make(map[string]bool, len(attrs))
		for a := range attrs {
			set[a] = true
		}
		out[prop] = set
	}
	return out
}

func (c *Catalog) Attrs() map[uint32]string {
	out := make(map[uint32]string, len(c.attrs))
	for k, v := range c.attrs {
		out[k] = v
	}
	return out
}

func (c *Catalog) MaxAid() uint32 { return c.maxAid }

func (c *Catalog) Lookup(attr string) (Props, bool) {
	p, ok := c.schema[attr]
	return p, ok
}

func (c *Catalog) AttrByAid(aid uint32) (string, bool) {
	a, ok := c.attrs[aid]
	return a, ok
}

// Merge folds a caller-supplied schema into the catalog: existing
// attributes keep their aid, new ones get maxAid+1 (spec §4.2).
// Caller is responsible for persisting the resulting Snapshot.
func (c *Catalog) Merge(supplied map[string]Props) {
	for attr, props := range supplied {
		if existing, ok := c.schema[attr]; ok {
			props.Aid = existing.Aid
		} else {
			c.maxAid++
			props.Aid = c.maxAid
		}
		c.schema[attr] = props
		c.attrs[props.Aid] = attr
	}
	c.deriveRschema()
}

// Observe allocates a fresh aid for attr if it is not already known,
// using default properties (spec §4.4: ingestion auto-allocates via
// swap-attr(attr, identity) on first sight of an attribute).
func (c *Catalog) Observe(attr string, defaults Props) Props {
	if existing, ok := c.schema[attr]; ok {
		return existing
	}
	c.maxAid++
	defaults.Aid = c.maxAid
	c.schema[attr] = defaults
	c.attrs[defaults.Aid] = attr
	c.deriveRschema()
	return defaults
}

// HasDataFunc lets SwapAttr ask the storage layer whether an attribute
// currently has any data, without the schema package depending on the
// kv package (breaking what would otherwise be an import cycle).
type HasDataFunc func(attr string) (bool, error)

// ViolatesUniqueFunc lets SwapAttr ask whether introducing a unique
// constraint on attr would conflict with already-stored data.
type ViolatesUniqueFunc func(attr string) (bool, error)

// SwapAttr atomically recomputes attr's properties via f, enforcing
// the migration rules of spec §4.2/§9, and on success updates the
// catalog's in-memory state. Caller must hold whatever lock
// serializes catalog mutation (spec §5); SwapAttr itself only
// validates and mutates the maps.
func (c *Catalog) SwapAttr(
	attr string,
	f func(old Props, exists bool) (Props, error),
	hasData HasDataFunc,
	violatesUnique ViolatesUniqueFunc,
) (Props, error) {
	old, exists := c.schema[attr]
	if !exists {
		old = Props{Aid: c.maxAid + 1}
	}

	next, err := f(old, exists)
	if err != nil {
		return Props{}, err
	}
	if exists {
		next.Aid = old.Aid
	} else {
		next.Aid = old.Aid // maxAid+1, committed to maxAid below
	}

	if exists {
		if err := checkMigration(attr, old, next, hasData, violatesUnique); err != nil {
			return Props{}, err
		}
	}

	c.schema[attr] = next
	c.attrs[next.Aid] = attr
	if next.Aid > c.maxAid {
		c.maxAid = next.Aid
	}
	c.deriveRschema()
	return next, nil
}

// checkMigration implements spec §4.2's migration rules, resolving
// the cardinality-demotion and valueType-change TODOs the donor's
// source left open (spec §9 Design Notes) by refusing rather than
// silently accepting, as recommended there.
func checkMigration(attr string, old, next Props, hasData HasDataFunc, violatesUnique ViolatesUniqueFunc) error {
	if old.Cardinality == CardinalityMany && next.Cardinality == CardinalityOne {
		has, err := hasData(attr)
		if err != nil {
			return err
		}
		if has {
			return &ErrConflict{Attr: attr, Reason: "cannot demote cardinality/many to cardinality/one: data already conforms check is not implemented, refusing"}
		}
	}

	if old.ValueType != next.ValueType {
		has, err := hasData(attr)
		if err != nil {
			return err
		}
		if has {
			return &ErrConflict{Attr: attr, Reason: fmt.Sprintf("cannot change valueType from %s to %s: attribute has data", old.ValueType, next.ValueType)}
		}
	}

	if old.Unique == UniqueNone && next.Unique != UniqueNone {
		violates, err := violatesUnique(attr)
		if err != nil {
			return err
		}
		if violates {
			return &ErrConflict{Attr: attr, Reason: "cannot introduce uniqueness: existing data has duplicate values for this attribute"}
		}
	}

	return nil
}

func (c *Catalog) deriveRschema() {
	rs := make(map[string]map[string]bool)
	add := func(prop, attr string) {
		set, ok := rs[prop]
		if !ok {
			set = make(map[string]bool)
			rs[prop] = set
		}
		set[attr] = true
	}
	for attr, props := range c.schema {
		if props.Cardinality == CardinalityMany {
			add("db/cardinality-many", attr)
		}
		if props.Unique == UniqueIdentity {
			add("db/unique-identity", attr)
		}
		if props.Unique == UniqueValue {
			add("db/unique-value", attr)
		}
		if props.IsComponent {
			add("db/is-component", attr)
		}
		if props.ValueType == store.TypeRef {
			add("db/value-type-ref", attr)
		}
	}
	c.rschema = rs
}
