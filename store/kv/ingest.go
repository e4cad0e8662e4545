package kv

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/wbrown/dlstore/store"
	"github.com/wbrown/dlstore/store/codec"
	"github.com/wbrown/dlstore/store/schema"
)

// LoadDatoms ingests datoms in fixed-size batches, each committed as one
// atomic multi-key write across EAV, AVE, VEA and Giants (spec §4.4).
// Mutually exclusive with itself and with SwapAttr/SetSchema: the whole
// call holds writeMu (spec §5).
func (s *Store) LoadDatoms(datoms []store.Datom) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	gt := s.maxGt.Load()
	initialGt := gt

	for start := 0; start < len(datoms); start += s.batchSize {
		end := start + s.batchSize
		if end > len(datoms) {
			end = len(datoms)
		}

		// A fresh clone per batch, built from the last published
		// snapshot: once s.catalog.Store(cat) below hands cat to
		// readers, it is never mutated again — the next batch
		// mutates an entirely separate map (spec §5 publish-by-replace).
		cat := schema.New(s.catalog.Load().Snapshot())
		newGt, err := s.commitBatch(cat, gt, datoms[start:end])
		if err != nil {
			return err
		}
		gt = newGt
		s.catalog.Store(cat)
		s.maxGt.Store(gt)
	}

	if gt != initialGt {
		s.logger.WithFields(logrus.Fields{"datoms": len(datoms), "giants_allocated": gt - initialGt}).Debug("load-datoms committed")
	}
	return nil
}

// commitBatch runs one atomic transaction over batch, mutating cat
// in-memory and returning the giant-id high-water mark after the batch.
// cat is a private clone, not yet published; the caller publishes it
// only once the underlying transaction has durably committed.
func (s *Store) commitBatch(cat *schema.Catalog, gt uint64, batch []store.Datom) (uint64, error) {
	type pendingAttr struct {
		attr  string
		props schema.Props
	}
	var newAttrs []pendingAttr

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, d := range batch {
			attr := d.A.String()
			props, exists := cat.Lookup(attr)
			if !exists {
				if !d.Added {
					return fmt.Errorf("kv: retract unknown attribute %s: %w", attr, ErrUnknownAttribute)
				}
				defaults := schema.Props{ValueType: store.TypeOf(d.V), Cardinality: schema.CardinalityOne}
				props = cat.Observe(attr, defaults)
				newAttrs = append(newAttrs, pendingAttr{attr, props})
			}

			if d.Added {
				allocated, err := s.putDatom(txn, props, d, gt)
				if err != nil {
					return err
				}
				if allocated {
					gt++
				}
			} else {
				if err := s.deleteDatom(txn, props, d); err != nil {
					return err
				}
			}
		}

		for _, pa := range newAttrs {
			if err := persistOneAttr(txn, pa.attr, pa.props); err != nil {
				return err
			}
		}
		return putLastModified(txn, time.Now())
	})
	if err != nil {
		return 0, fmt.Errorf("kv: commit batch: %w", err)
	}
	return gt, nil
}

// putDatom emits the EAV/AVE/(VEA) puts for an assertion, and — if the
// value is giant — a Giants put keyed by gtCandidate (spec §4.4, §4.1
// "giant classification"). allocated reports whether gtCandidate was
// consumed, so the caller knows whether to advance its counter.
func (s *Store) putDatom(txn *badger.Txn, props schema.Props, d store.Datom, gtCandidate uint64) (allocated bool, err error) {
	eavKey, giant := codec.EncodeDatom(codec.EAV, d.E, props.Aid, d.V)
	aveKey, _ := codec.EncodeDatom(codec.AVE, d.E, props.Aid, d.V)

	valCol := normalValueColumn
	if giant {
		valCol = giantValueColumn(gtCandidate)
		rec, encErr := encodeGiant(d.E, props.Aid, d.V)
		if encErr != nil {
			return false, encErr
		}
		if err := txn.Set(giantKey(gtCandidate), rec); err != nil {
			return false, err
		}
		allocated = true
	}

	if err := txn.Set(withPrefix(prefixEAV, eavKey), valCol); err != nil {
		return false, err
	}
	if err := txn.Set(withPrefix(prefixAVE, aveKey), valCol); err != nil {
		return false, err
	}
	if props.ValueType == store.TypeRef {
		veaKey, _ := codec.EncodeDatom(codec.VEA, d.E, props.Aid, d.V)
		if err := txn.Set(withPrefix(prefixVEA, veaKey), valCol); err != nil {
			return false, err
		}
	}
	return allocated, nil
}

// deleteDatom removes a retracted datom from every index it appears in,
// consulting the EAV entry's value column to learn whether a Giants
// record needs cleaning up too (spec §4.4). Retracting a datom whose
// EAV entry does not exist is a silent no-op (spec §9), except that the
// caller still advances last-modified for the batch.
func (s *Store) deleteDatom(txn *badger.Txn, props schema.Props, d store.Datom) error {
	eavKey, _ := codec.EncodeDatom(codec.EAV, d.E, props.Aid, d.V)
	fullEavKey := withPrefix(prefixEAV, eavKey)

	item, err := txn.Get(fullEavKey)
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

	if err := txn.Delete(fullEavKey); err != nil {
		return err
	}
	aveKey, _ := codec.EncodeDatom(codec.AVE, d.E, props.Aid, d.V)
	if err := txn.Delete(withPrefix(prefixAVE, aveKey)); err != nil {
		return err
	}
	if props.ValueType == store.TypeRef {
		veaKey, _ := codec.EncodeDatom(codec.VEA, d.E, props.Aid, d.V)
		if err := txn.Delete(withPrefix(prefixVEA, veaKey)); err != nil {
			return err
		}
	}
	if gt, ok := isGiantColumn(valCol); ok {
		if err := txn.Delete(giantKey(gt)); err != nil {
			return err
		}
	}
	return nil
}

// SwapAttr atomically recomputes attr's properties via f, enforces the
// migration rules of spec §4.2/§9 against real AVE data, persists the
// result, and publishes the new catalog (spec §5).
func (s *Store) SwapAttr(attr string, f func(old schema.Props, exists bool) (schema.Props, error)) (schema.Props, error) {
	if err := s.checkOpen(); err != nil {
		return schema.Props{}, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cat := schema.New(s.catalog.Load().Snapshot())
	next, err := cat.SwapAttr(attr, f, s.attrHasData, s.attrViolatesUnique)
	if err != nil {
		return schema.Props{}, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := persistOneAttr(txn, attr, next); err != nil {
			return err
		}
		return putLastModified(txn, time.Now())
	})
	if err != nil {
		return schema.Props{}, fmt.Errorf("kv: swap-attr %s: %w", attr, err)
	}

	s.catalog.Store(cat)
	return next, nil
}

// SetSchema merges a caller-supplied schema into the catalog: existing
// attributes keep their aid, new ones get max_aid+1 (spec §4.2).
func (s *Store) SetSchema(supplied map[string]schema.Props) (map[string]schema.Props, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cat := schema.New(s.catalog.Load().Snapshot())
	cat.Merge(supplied)

	err := s.db.Update(func(txn *badger.Txn) error {
		for attr := range supplied {
			props, _ := cat.Lookup(attr)
			if err := persistOneAttr(txn, attr, props); err != nil {
				return err
			}
		}
		return putLastModified(txn, time.Now())
	})
	if err != nil {
		return nil, fmt.Errorf("kv: set-schema: %w", err)
	}

	s.catalog.Store(cat)
	return cat.Snapshot(), nil
}

// attrHasData reports whether attr has any AVE entries, used by
// SwapAttr's migration checks (spec §4.2).
func (s *Store) attrHasData(attr string) (bool, error) {
	props, ok := s.catalog.Load().Lookup(attr)
	if !ok {
		return false, nil
	}
	prefix := withPrefix(prefixAVE, codec.EncodePrefix(codec.AVE, aidBytes(props.Aid)))

	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Seek(prefix)
		found = it.ValidForPrefix(prefix)
		return nil
	})
	return found, err
}

// attrViolatesUnique scans attr's AVE entries for a duplicate value,
// used by SwapAttr when introducing a uniqueness constraint (spec §4.2).
func (s *Store) attrViolatesUnique(attr string) (bool, error) {
	props, ok := s.catalog.Load().Lookup(attr)
	if !ok {
		return false, nil
	}
	prefix := withPrefix(prefixAVE, codec.EncodePrefix(codec.AVE, aidBytes(props.Aid)))

	seen := make(map[string]bool)
	violates := false
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			// key = namespace(1) + aid(4) + tag(1) + payload + e(8)
			valuePart := string(key[5 : len(key)-8])
			if seen[valuePart] {
				violates = true
				return nil
			}
			seen[valuePart] = true
		}
		return nil
	})
	return violates, err
}

func aidBytes(aid uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, aid)
	return buf
}
