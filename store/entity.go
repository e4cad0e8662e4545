package store

import "fmt"

// Entity is a 64-bit entity identifier (spec §3: "e is a 64-bit
// entity id"). Unlike the donor's content-hashed Identity, entities
// here carry no derived encoding — they are opaque integers minted by
// the caller or by InitMaxEID-driven allocation in the layer above
// this store.
type Entity int64

// sentinel bounds used by the codec's low/high bound construction
// (spec §4.1). Kept here, next to Entity, because they are part of
// the entity's total order, not an encoding detail.
const (
	EntityMin Entity = 0
	EntityMax Entity = 1<<63 - 1
)

func (e Entity) String() string {
	return fmt.Sprintf("%d", int64(e))
}
