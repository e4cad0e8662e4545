// Package kv implements the index set (spec §4.3), ingestion engine
// (spec §4.4), and retrieval engine (spec §4.5) on top of BadgerDB,
// the chosen realization of spec §6's "underlying ordered key/value
// store" external collaborator.
//
// Grounded on the donor's datalog/storage/badger_store.go for the
// badger wiring and tuning, and on datalog/storage/database.go for
// the lock-guarded, publish-by-replace concurrency discipline (spec §5).
package kv

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/wbrown/dlstore/store/schema"
)

// txDatomBatchSize is +tx-datom-batch-size+ from spec §4.4.
const txDatomBatchSize = 1000

// Store owns the badger environment exclusively (spec §6 "open
// returns a handle that owns the K/V environment"). All schema
// mutation happens under writeMu and is published via the catalog
// atomic.Pointer so readers never block on writers (spec §5, §9).
type Store struct {
	dir string
	db  *badger.DB

	logger    logrus.FieldLogger
	batchSize int

	writeMu sync.Mutex
	catalog atomic.Pointer[schema.Catalog]
	maxGt   atomic.Uint64

	closed atomic.Bool
}

// Open opens (creating if absent) the store at dir, seeding the
// implicit schema on a fresh store (spec §3 "Lifecycle", §4.2).
func Open(dir string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(o)
	}

	bopts := badger.DefaultOptions(dir)
	bopts.Logger = nil
	bopts.MemTableSize = o.memTableSize
	bopts.BlockCacheSize = o.blockCacheSize
	bopts.DetectConflicts = false

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("kv: open badger at %s: %w", dir, err)
	}

	s := &Store{
		dir:       dir,
		db:        db,
		logger:    o.logger,
		batchSize: o.batchSize,
	}

	persisted, err := loadPersistedSchema(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: load schema: %w", err)
	}

	if len(persisted) == 0 {
		implicit := schema.ImplicitSchema()
		if err := persistSchema(db, implicit); err != nil {
			db.Close()
			return nil, fmt.Errorf("kv: seed implicit schema: %w", err)
		}
		persisted = implicit
	}
	s.catalog.Store(schema.New(persisted))

	maxGt, err := recoverMaxGt(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: recover max-gt: %w", err)
	}
	s.maxGt.Store(maxGt)

	s.logger.WithFields(logrus.Fields{"dir": dir, "max_gt": maxGt, "attrs": len(persisted)}).Debug("store opened")
	return s, nil
}

// Dir returns the directory the store was opened with.
func (s *Store) Dir() string { return s.dir }

// Closed reports whether Close has been called.
func (s *Store) Closed() bool { return s.closed.Load() }

// Close releases the badger environment. Idempotent (spec §5).
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Catalog returns the current published schema snapshot.
func (s *Store) Catalog() *schema.Catalog {
	return s.catalog.Load()
}

// MaxGt returns the current giant-id high-water mark.
func (s *Store) MaxGt() uint64 { return s.maxGt.Load() }

// AdvanceMaxGt reserves n giant ids out of band (spec §6 "advance-max-gt"),
// returning the first id in the reserved range. Serialized against
// LoadDatoms/SwapAttr/SetSchema via writeMu so gt allocation stays
// strictly increasing (spec invariant 4) even when a caller above this
// store reserves ids without going through LoadDatoms.
func (s *Store) AdvanceMaxGt(n uint64) (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	first := s.maxGt.Load()
	s.maxGt.Store(first + n)
	return first, nil
}

// MaxAid returns the current attribute-id high-water mark.
func (s *Store) MaxAid() uint32 { return s.catalog.Load().MaxAid() }

func schemaKey(attr string) []byte {
	return withPrefix(prefixSchema, []byte(attr))
}

func loadPersistedSchema(db *badger.DB) (map[string]schema.Props, error) {
	out := make(map[string]schema.Props)
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := prefixOnly(prefixSchema)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			attr := string(item.KeyCopy(nil)[1:])
			err := item.Value(func(val []byte) error {
				var props schema.Props
				if err := msgpack.Unmarshal(val, &props); err != nil {
					return err
				}
				out[attr] = props
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func persistSchema(db *badger.DB, entries map[string]schema.Props) error {
	return db.Update(func(txn *badger.Txn) error {
		for attr, props := range entries {
			data, err := msgpack.Marshal(&props)
			if err != nil {
				return err
			}
			if err := txn.Set(schemaKey(attr), data); err != nil {
				return err
			}
		}
		// spec §4.2: last-modified is updated on every schema write,
		// including the implicit-schema seed on first open.
		return putLastModified(txn, time.Now())
	})
}

func persistOneAttr(txn *badger.Txn, attr string, props schema.Props) error {
	data, err := msgpack.Marshal(&props)
	if err != nil {
		return err
	}
	return txn.Set(schemaKey(attr), data)
}
