package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Value is any value that can be stored as the V of a Datom.
// Like C++'s boost::variant, we use interface{} with a closed set of
// concrete Go types rather than a tagged union struct.
type Value interface{}

// ValueType tags a Value for encoding purposes. The numeric order of
// the constants is NOT the sort order used by the codec — see
// store/codec for the byte-order table; it is kept here only because
// Go requires the tag to be declared somewhere, and this is the type
// the codec tags describe.
type ValueType byte

const (
	TypeString ValueType = iota
	TypeBytes
	TypeKeyword
	TypeSymbol
	TypeBool
	TypeLong
	TypeDouble
	TypeInstant
	TypeUUID
	TypeRef
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	case TypeKeyword:
		return "keyword"
	case TypeSymbol:
		return "symbol"
	case TypeBool:
		return "boolean"
	case TypeLong:
		return "long"
	case TypeDouble:
		return "double"
	case TypeInstant:
		return "instant"
	case TypeUUID:
		return "uuid"
	case TypeRef:
		return "ref"
	default:
		return fmt.Sprintf("valuetype(%d)", byte(t))
	}
}

// Symbol is a bare, uninterned symbol value. It is a value type of its
// own, separate from Keyword (which can also be stored as data), and
// the codec gives it its own tag (spec §4.1 lists "symbols" as a
// distinct tag from "keywords").
type Symbol string

// TypeOf returns the ValueType tag for v, panicking on an
// unsupported Go type the same way the donor's Type() did.
func TypeOf(v Value) ValueType {
	switch v.(type) {
	case string:
		return TypeString
	case []byte:
		return TypeBytes
	case Keyword:
		return TypeKeyword
	case Symbol:
		return TypeSymbol
	case bool:
		return TypeBool
	case int64:
		return TypeLong
	case float64:
		return TypeDouble
	case time.Time:
		return TypeInstant
	case uuid.UUID:
		return TypeUUID
	case Entity:
		return TypeRef
	default:
		panic(fmt.Sprintf("store: unsupported value type %T", v))
	}
}

// Helper constructors, mirroring the donor's String/Int/Float/Bool/...
// free functions in datalog/value.go.
func String(s string) Value        { return s }
func Long(i int64) Value           { return i }
func Double(f float64) Value       { return f }
func Bool(b bool) Value            { return b }
func Instant(t time.Time) Value    { return t }
func Bytes(b []byte) Value         { return b }
func Ref(e Entity) Value           { return e }
func KeywordValue(k Keyword) Value { return k }
func SymbolValue(s string) Value   { return Symbol(s) }
func UUID(u uuid.UUID) Value       { return u }
