package store

import "strings"

// Keyword is an attribute name, e.g. ":user/name", held as a plain
// string (spec §3: "a is the attribute keyword (a symbolic string)").
// A Keyword is interned only when obtained through InternKeyword.
type Keyword struct {
	value string
}

// NewKeyword wraps a string as a Keyword without interning. Prefer
// InternKeyword on any hot path that repeats attribute names.
func NewKeyword(s string) Keyword {
	return Keyword{value: s}
}

func (k Keyword) String() string {
	return k.value
}

func (k Keyword) Bytes() []byte {
	return []byte(k.value)
}

// Compare orders keywords lexicographically, matching the byte order
// the codec produces for TypeKeyword values (spec §3 invariant 6).
func (k Keyword) Compare(other Keyword) int {
	return strings.Compare(k.value, other.value)
}

func (k Keyword) IsZero() bool {
	return k.value == ""
}
