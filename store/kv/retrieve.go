package kv

import (
	"bytes"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/wbrown/dlstore/store"
	"github.com/wbrown/dlstore/store/codec"
	"github.com/wbrown/dlstore/store/schema"
)

// Predicate is applied to the fully decoded datom, which means a giant
// value is materialized from the Giants table before the predicate
// ever sees it (spec §4.5).
type Predicate func(store.Datom) bool

func indexPrefix(idx codec.Index) byte {
	switch idx {
	case codec.EAV:
		return prefixEAV
	case codec.AVE:
		return prefixAVE
	case codec.VEA:
		return prefixVEA
	default:
		panic(fmt.Sprintf("kv: unknown index %v", idx))
	}
}

func (s *Store) rangeKeys(idx codec.Index, lo, hi codec.Bound) (loKey, hiKey []byte, err error) {
	loRaw, err := codec.EncodeLow(idx, lo)
	if err != nil {
		return nil, nil, err
	}
	hiRaw, err := codec.EncodeHigh(idx, hi)
	if err != nil {
		return nil, nil, err
	}
	p := indexPrefix(idx)
	return withPrefix(p, loRaw), withPrefix(p, hiRaw), nil
}

// forEachRaw walks [loKey, hiKey] (namespace-prefixed, inclusive) in the
// given index, in ascending or descending order, handing each entry's
// full key and value column to visit. visit returning false stops the
// scan early (used by Head/Tail and early-exit filters).
func (s *Store) forEachRaw(idx codec.Index, lo, hi codec.Bound, reverse bool, visit func(txn *badger.Txn, key, valCol []byte) (bool, error)) error {
	loKey, hiKey, err := s.rangeKeys(idx, lo, hi)
	if err != nil {
		return err
	}

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		start, bound := loKey, hiKey
		if reverse {
			start, bound = hiKey, loKey
		}

		for it.Seek(start); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if reverse {
				if bytes.Compare(key, bound) < 0 {
					break
				}
			} else {
				if bytes.Compare(key, bound) > 0 {
					break
				}
			}

			var valCol []byte
			if err := it.Item().Value(func(val []byte) error {
				valCol = append([]byte(nil), val...)
				return nil
			}); err != nil {
				return err
			}

			cont, err := visit(txn, key, valCol)
			if err != nil {
				return err
			}
			if !cont {
				break
			}
		}
		return nil
	})
}

// forEachDatom is forEachRaw plus key decoding and giant dereference,
// for callers that need the materialized Datom (spec §4.5
// "retrieved→datom").
func (s *Store) forEachDatom(idx codec.Index, lo, hi codec.Bound, reverse bool, visit func(store.Datom) (bool, error)) error {
	cat := s.catalog.Load()
	return s.forEachRaw(idx, lo, hi, reverse, func(txn *badger.Txn, key, valCol []byte) (bool, error) {
		r, err := codec.Decode(idx, key[1:])
		if err != nil {
			return false, err
		}
		d, err := datomFromRetrieved(txn, cat, r, valCol)
		if err != nil {
			return false, err
		}
		return visit(d)
	})
}

// datomFromRetrieved is retrieved→datom (spec §4.5): if the value
// column is normal, the datom is synthesized straight from the decoded
// key; otherwise the full value is fetched from Giants by gt.
func datomFromRetrieved(txn *badger.Txn, cat *schema.Catalog, r store.Retrieved, valCol []byte) (store.Datom, error) {
	attrName, ok := cat.AttrByAid(r.Aid)
	if !ok {
		return store.Datom{}, fmt.Errorf("kv: aid %d not present in schema", r.Aid)
	}

	v := r.V
	if gt, giant := isGiantColumn(valCol); giant {
		item, err := txn.Get(giantKey(gt))
		if err != nil {
			return store.Datom{}, fmt.Errorf("kv: dereference giant %d: %w", gt, err)
		}
		var rec []byte
		if err := item.Value(func(val []byte) error {
			rec = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return store.Datom{}, err
		}
		_, _, gv, err := decodeGiant(rec)
		if err != nil {
			return store.Datom{}, err
		}
		v = gv
	}

	return store.Datom{E: r.E, A: store.NewKeyword(attrName), V: v, Added: true}, nil
}

// Fetch is a single point lookup in EAV; it returns a 0- or 1-element
// list (spec §4.5).
func (s *Store) Fetch(d store.Datom) ([]store.Datom, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	cat := s.catalog.Load()
	props, ok := cat.Lookup(d.A.String())
	if !ok {
		return nil, nil
	}

	eavKey, _ := codec.EncodeDatom(codec.EAV, d.E, props.Aid, d.V)
	fullKey := withPrefix(prefixEAV, eavKey)

	var result []store.Datom
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fullKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var valCol []byte
		if err := item.Value(func(val []byte) error {
			valCol = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}
		datom, err := datomFromRetrieved(txn, cat, store.Retrieved{E: d.E, Aid: props.Aid, V: d.V}, valCol)
		if err != nil {
			return err
		}
		result = []store.Datom{datom}
		return nil
	})
	return result, err
}

// Populated reports whether [lo, hi] contains any entry in idx (spec §4.5).
func (s *Store) Populated(idx codec.Index, lo, hi codec.Bound) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	found := false
	err := s.forEachRaw(idx, lo, hi, false, func(_ *badger.Txn, _, _ []byte) (bool, error) {
		found = true
		return false, nil
	})
	return found, err
}

// Size returns the exact count of entries in [lo, hi] (spec §4.5).
func (s *Store) Size(idx codec.Index, lo, hi codec.Bound) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	n := 0
	err := s.forEachRaw(idx, lo, hi, false, func(_ *badger.Txn, _, _ []byte) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

// Head returns the first datom in the closed range, or nil if empty.
func (s *Store) Head(idx codec.Index, lo, hi codec.Bound) (*store.Datom, error) {
	return s.firstDatom(idx, lo, hi, false)
}

// Tail returns the last datom in the closed range, scanning in
// reverse, or nil if empty.
func (s *Store) Tail(idx codec.Index, lo, hi codec.Bound) (*store.Datom, error) {
	return s.firstDatom(idx, lo, hi, true)
}

func (s *Store) firstDatom(idx codec.Index, lo, hi codec.Bound, reverse bool) (*store.Datom, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var found *store.Datom
	err := s.forEachDatom(idx, lo, hi, reverse, func(d store.Datom) (bool, error) {
		dd := d
		found = &dd
		return false, nil
	})
	return found, err
}

// Slice materializes the closed range in ascending order.
func (s *Store) Slice(idx codec.Index, lo, hi codec.Bound) ([]store.Datom, error) {
	return s.sliceAll(idx, lo, hi, false, nil)
}

// RSlice materializes the closed range in descending order.
func (s *Store) RSlice(idx codec.Index, lo, hi codec.Bound) ([]store.Datom, error) {
	return s.sliceAll(idx, lo, hi, true, nil)
}

func (s *Store) sliceAll(idx codec.Index, lo, hi codec.Bound, reverse bool, pred Predicate) ([]store.Datom, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var out []store.Datom
	err := s.forEachDatom(idx, lo, hi, reverse, func(d store.Datom) (bool, error) {
		if pred == nil || pred(d) {
			out = append(out, d)
		}
		return true, nil
	})
	return out, err
}

// SliceFilter and RSliceFilter are Slice/RSlice skipping datoms that
// fail pred (spec §4.5 "*-filter").
func (s *Store) SliceFilter(idx codec.Index, pred Predicate, lo, hi codec.Bound) ([]store.Datom, error) {
	return s.sliceAll(idx, lo, hi, false, pred)
}

func (s *Store) RSliceFilter(idx codec.Index, pred Predicate, lo, hi codec.Bound) ([]store.Datom, error) {
	return s.sliceAll(idx, lo, hi, true, pred)
}

func (s *Store) PopulatedFilter(idx codec.Index, pred Predicate, lo, hi codec.Bound) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	found := false
	err := s.forEachDatom(idx, lo, hi, false, func(d store.Datom) (bool, error) {
		if pred(d) {
			found = true
			return false, nil
		}
		return true, nil
	})
	return found, err
}

func (s *Store) SizeFilter(idx codec.Index, pred Predicate, lo, hi codec.Bound) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	n := 0
	err := s.forEachDatom(idx, lo, hi, false, func(d store.Datom) (bool, error) {
		if pred(d) {
			n++
		}
		return true, nil
	})
	return n, err
}

func (s *Store) HeadFilter(idx codec.Index, pred Predicate, lo, hi codec.Bound) (*store.Datom, error) {
	return s.firstFiltered(idx, pred, lo, hi, false)
}

func (s *Store) TailFilter(idx codec.Index, pred Predicate, lo, hi codec.Bound) (*store.Datom, error) {
	return s.firstFiltered(idx, pred, lo, hi, true)
}

func (s *Store) firstFiltered(idx codec.Index, pred Predicate, lo, hi codec.Bound, reverse bool) (*store.Datom, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var found *store.Datom
	err := s.forEachDatom(idx, lo, hi, reverse, func(d store.Datom) (bool, error) {
		if pred(d) {
			dd := d
			found = &dd
			return false, nil
		}
		return true, nil
	})
	return found, err
}

// DatomCount returns the total number of entries in idx (spec §4.5).
func (s *Store) DatomCount(idx codec.Index) (int, error) {
	return s.Size(idx, codec.Bound{}, codec.Bound{})
}

// InitMaxEID scans EAV backwards for the largest entity id seen so far
// (spec §4.5), dereferencing Giants if the winning entry is giant.
func (s *Store) InitMaxEID() (store.Entity, error) {
	d, err := s.Tail(codec.EAV, codec.Bound{}, codec.Bound{})
	if err != nil {
		return 0, err
	}
	if d == nil {
		return store.EntityMin, nil
	}
	return d.E, nil
}

// LastModified returns the :last-modified meta timestamp.
func (s *Store) LastModified() (time.Time, error) {
	if err := s.checkOpen(); err != nil {
		return time.Time{}, err
	}
	return readLastModified(s.db)
}
