// Package codec implements the indexable key codec described in
// spec §4.1: it maps (e, aid, v, valueType) to a fixed-layout byte
// key whose lexicographic order matches the semantic order of the
// chosen index, and it classifies oversize values as "giant".
//
// Grounded on the donor's datalog/storage/key_encoder_binary.go
// (per-index byte layout, prefix/bound construction) and its
// datalog/value_encoding.go (big-endian numeric encoding) — extended
// here to be order-preserving, which the donor never needed because
// its indices key on fixed-width content hashes rather than raw
// values.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/wbrown/dlstore/store"
)

// Index identifies which covering index a key belongs to.
type Index uint8

const (
	EAV Index = iota
	AVE
	VEA
)

func (i Index) String() string {
	switch i {
	case EAV:
		return "eav"
	case AVE:
		return "ave"
	case VEA:
		return "vea"
	default:
		return fmt.Sprintf("index(%d)", byte(i))
	}
}

// MaxKeySize mirrors LMDB/badger's conventional maximum key length.
// header is e(8)+aid(4)+tag(1) in every index, only in a different
// order (EAV: e,aid,tag,v; AVE: aid,tag,v,e; VEA: tag,v,e,aid) — same
// total size either way.
const (
	MaxKeySize  = 511
	headerSize  = 8 + 4 + 1
	ValueBudget = MaxKeySize - headerSize
)

// ErrBadBound is returned when a range endpoint names a value but not
// an attribute, and the value is not a ref (spec §4.1, §7).
var ErrBadBound = fmt.Errorf("codec: bound has a value but no attribute, and the value is not a ref")

// Bound describes a (possibly partial) datom used as a range
// endpoint. A zero-value field with its *Known flag false is treated
// as a wildcard and filled in with the index's min/max sentinel by
// EncodeLow/EncodeHigh.
type Bound struct {
	EKnown   bool
	E        store.Entity
	AidKnown bool
	Aid      uint32
	VKnown   bool
	V        store.Value
}

// EncodeLow builds the smallest key consistent with the known
// components of b.
func EncodeLow(idx Index, b Bound) ([]byte, error) {
	return encodeBound(idx, b, false)
}

// EncodeHigh builds the largest key consistent with the known
// components of b.
func EncodeHigh(idx Index, b Bound) ([]byte, error) {
	return encodeBound(idx, b, true)
}

func encodeBound(idx Index, b Bound, high bool) ([]byte, error) {
	e := store.EntityMin
	if high {
		e = store.EntityMax
	}
	if b.EKnown {
		e = b.E
	}

	var aid uint32 = 0
	if high {
		aid = math.MaxUint32
	}
	if b.AidKnown {
		aid = b.Aid
	}

	var tag byte
	var payload []byte
	switch {
	case b.VKnown:
		if !b.AidKnown {
			if _, ok := b.V.(store.Entity); !ok {
				return nil, ErrBadBound
			}
		}
		tag, payload = encodeValue(b.V)
	case high:
		tag, payload = tagSysMax, nil
	default:
		tag, payload = tagSysMin, nil
	}

	return build(idx, e, aid, tag, payload), nil
}

// EncodeDatom builds the concrete key for (e, aid, v), returning the
// key bytes (value payload truncated to ValueBudget) and whether the
// full encoded value exceeds the budget (spec §4.1 "giant
// classification"). The caller stores the sentinel `normal` or a
// freshly-allocated `gt` id in the badger value column accordingly.
func EncodeDatom(idx Index, e store.Entity, aid uint32, v store.Value) (key []byte, giant bool) {
	tag, full := encodeValue(v)
	payload := full
	giant = len(full) > ValueBudget
	if giant {
		payload = full[:ValueBudget]
	}
	return build(idx, e, aid, tag, payload), giant
}

// EncodePrefix builds a key prefix for scanning all entries that
// share (e, aid) [EAV], aid alone [AVE prefix at attribute level], or
// similar, by concatenating parts in order. idx is not consulted: the
// caller supplies the parts in idx's field order. It is the
// variable-arity counterpart to build() used by callers that don't
// have a full Bound.
func EncodePrefix(idx Index, parts ...[]byte) []byte {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func build(idx Index, e store.Entity, aid uint32, tag byte, payload []byte) []byte {
	eb := encodeEntity(e)
	ab := make([]byte, 4)
	binary.BigEndian.PutUint32(ab, aid)

	switch idx {
	case EAV:
		return concat(eb, ab, []byte{tag}, payload)
	case AVE:
		return concat(ab, []byte{tag}, payload, eb)
	case VEA:
		return concat([]byte{tag}, payload, eb, ab)
	default:
		panic(fmt.Sprintf("codec: unknown index %v", idx))
	}
}

func concat(parts ...[]byte) []byte {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func encodeEntity(e store.Entity) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, flipSign(uint64(int64(e))))
	return buf
}

func decodeEntity(b []byte) store.Entity {
	return store.Entity(int64(unflipSign(binary.BigEndian.Uint64(b))))
}

// flipSign/unflipSign implement the standard order-preserving
// transform from signed two's-complement to unsigned byte order
// (spec §4.1: "Integers are written big-endian with the sign bit
// flipped").
func flipSign(u uint64) uint64 {
	return u ^ (1 << 63)
}

func unflipSign(u uint64) uint64 {
	return u ^ (1 << 63)
}

func encodeLong(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, flipSign(uint64(v)))
	return buf
}

func decodeLong(b []byte) int64 {
	return int64(unflipSign(binary.BigEndian.Uint64(b)))
}

// encodeDouble implements the standard IEEE-754 bit-flip trick (spec
// §4.1): for non-negative floats, flip the sign bit; for negative
// floats, flip every bit. This makes the big-endian byte order of the
// transformed bits match the real-number order of the float.
func encodeDouble(f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bits)
	return buf
}

func decodeDouble(b []byte) float64 {
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

func encodeValue(v store.Value) (tag byte, payload []byte) {
	switch val := v.(type) {
	case []byte:
		return tagBytes, val
	case string:
		return tagString, []byte(val)
	case store.Keyword:
		return tagKeyword, val.Bytes()
	case store.Symbol:
		return tagSymbol, []byte(val)
	case bool:
		if val {
			return tagBool, []byte{1}
		}
		return tagBool, []byte{0}
	case int64:
		return tagLong, encodeLong(val)
	case float64:
		return tagDouble, encodeDouble(val)
	case time.Time:
		return tagInstant, encodeLong(val.UnixNano())
	case uuid.UUID:
		b := val
		return tagUUID, b[:]
	case store.Entity:
		return tagRef, encodeLong(int64(val))
	default:
		panic(fmt.Sprintf("codec: cannot encode value of type %T", v))
	}
}

func decodeValue(tag byte, payload []byte) (store.Value, error) {
	switch tag {
	case tagBytes:
		return append([]byte(nil), payload...), nil
	case tagString:
		return string(payload), nil
	case tagKeyword:
		return store.NewKeyword(string(payload)), nil
	case tagSymbol:
		return store.Symbol(payload), nil
	case tagBool:
		if len(payload) != 1 {
			return nil, fmt.Errorf("codec: bad bool payload length %d", len(payload))
		}
		return payload[0] != 0, nil
	case tagLong:
		if len(payload) != 8 {
			return nil, fmt.Errorf("codec: bad long payload length %d", len(payload))
		}
		return decodeLong(payload), nil
	case tagDouble:
		if len(payload) != 8 {
			return nil, fmt.Errorf("codec: bad double payload length %d", len(payload))
		}
		return decodeDouble(payload), nil
	case tagInstant:
		if len(payload) != 8 {
			return nil, fmt.Errorf("codec: bad instant payload length %d", len(payload))
		}
		return time.Unix(0, decodeLong(payload)).UTC(), nil
	case tagUUID:
		if len(payload) != 16 {
			return nil, fmt.Errorf("codec: bad uuid payload length %d", len(payload))
		}
		u, err := uuid.FromBytes(payload)
		if err != nil {
			return nil, err
		}
		return u, nil
	case tagRef:
		if len(payload) != 8 {
			return nil, fmt.Errorf("codec: bad ref payload length %d", len(payload))
		}
		return store.Entity(decodeLong(payload)), nil
	case tagSysMin, tagSysMax:
		return nil, nil
	default:
		return nil, fmt.Errorf("codec: unknown type tag %d", tag)
	}
}

// EncodeValue returns the full, untruncated tag+payload encoding of
// v. Callers that persist values outside the key budget (the giants
// table) use this instead of the budget-truncated encoding EncodeDatom
// embeds in index keys.
func EncodeValue(v store.Value) (tag byte, payload []byte) {
	return encodeValue(v)
}

// DecodeValue decodes a tag+payload pair produced by EncodeValue.
func DecodeValue(tag byte, payload []byte) (store.Value, error) {
	return decodeValue(tag, payload)
}

// Decode recovers a Retrieved triple from an index key. The value it
// returns for a giant entry is only the truncated prefix stored in
// the key; callers must consult the badger value column (normal vs.
// gt id) to know whether to dereference the giants table instead
// (spec §3 invariant 2, §4.5).
func Decode(idx Index, key []byte) (store.Retrieved, error) {
	if len(key) < headerSize {
		return store.Retrieved{}, fmt.Errorf("codec: key too short: %d bytes", len(key))
	}

	var eb, ab []byte
	var tag byte
	var payload []byte

	switch idx {
	case EAV:
		eb = key[0:8]
		ab = key[8:12]
		tag = key[12]
		payload = key[13:]
	case AVE:
		ab = key[0:4]
		tag = key[4]
		payload = key[5 : len(key)-8]
		eb = key[len(key)-8:]
	case VEA:
		tag = key[0]
		payload = key[1 : len(key)-12]
		eb = key[len(key)-12 : len(key)-4]
		ab = key[len(key)-4:]
	default:
		return store.Retrieved{}, fmt.Errorf("codec: unknown index %v", idx)
	}

	v, err := decodeValue(tag, payload)
	if err != nil {
		return store.Retrieved{}, err
	}

	return store.Retrieved{
		E:   decodeEntity(eb),
		Aid: binary.BigEndian.Uint32(ab),
		V:   v,
	}, nil
}
