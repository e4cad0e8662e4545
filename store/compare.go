package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CompareValues compares two values and returns -1/0/1 accordingly.
// Values of the same type are compared by their natural order. Values
// of different types are ordered by their ValueType constants, which is
// not the codec's type-tag order (the codec sorts bytes before strings).
// Grounded on the donor's datalog/compare.go CompareValues, adapted
// to this package's value set (Entity replaces Identity, Symbol is
// new, UUID is new).
func CompareValues(left, right Value) int {
	if left == nil && right == nil {
		return 0
	}
	if left == nil {
		return -1
	}
	if right == nil {
		return 1
	}

	if lt, rt := TypeOf(left), TypeOf(right); lt != rt {
		if lt < rt {
			return -1
		}
		return 1
	}

	switch l := left.(type) {
	case string:
		return strings.Compare(l, right.(string))
	case []byte:
		return compareBytes(l, right.([]byte))
	case Keyword:
		return l.Compare(right.(Keyword))
	case Symbol:
		return strings.Compare(string(l), string(right.(Symbol)))
	case bool:
		r := right.(bool)
		if l == r {
			return 0
		}
		if !l {
			return -1
		}
		return 1
	case int64:
		return compareInt64s(l, right.(int64))
	case float64:
		return compareFloats(l, right.(float64))
	case time.Time:
		r := right.(time.Time)
		if l.Before(r) {
			return -1
		} else if l.After(r) {
			return 1
		}
		return 0
	case uuid.UUID:
		r := right.(uuid.UUID)
		return strings.Compare(l.String(), r.String())
	case Entity:
		return compareInt64s(int64(l), int64(right.(Entity)))
	}

	return strings.Compare(fmt.Sprintf("%v", left), fmt.Sprintf("%v", right))
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func compareInt64s(a, b int64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

func compareFloats(a, b float64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

// ValuesEqual reports whether a and b represent the same value.
// Grounded on the donor's ValuesEqual.
func ValuesEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if TypeOf(a) != TypeOf(b) {
		return false
	}
	return CompareValues(a, b) == 0
}
