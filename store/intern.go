package store

import "sync"

// KeywordIntern avoids repeated string allocations for the small,
// hot set of attribute names a schema typically has (grounded on the
// donor's datalog/intern.go, which interns Keyword and Identity the
// same way; Identity interning has no counterpart here since Entity
// is a bare int64 with nothing to intern).
type KeywordIntern struct {
	cache sync.Map // map[string]*Keyword
}

var keywordIntern = &KeywordIntern{}

// InternKeyword returns a process-wide interned *Keyword for s.
func InternKeyword(s string) *Keyword {
	if val, ok := keywordIntern.cache.Load(s); ok {
		return val.(*Keyword)
	}
	kw := &Keyword{value: s}
	actual, _ := keywordIntern.cache.LoadOrStore(s, kw)
	return actual.(*Keyword)
}

// ClearInterns drops the keyword intern cache. Exposed for tests that
// churn through many distinct attribute names.
func ClearInterns() {
	keywordIntern = &KeywordIntern{}
}
