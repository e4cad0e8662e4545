package kv

import (
	"encoding/binary"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Well-known meta keys (spec §3: "Meta record: well-known keys in
// the meta sub-database; currently :last-modified -> unix-ms-timestamp").
var metaLastModifiedKey = withPrefix(prefixMeta, []byte(":last-modified"))

func putLastModified(txn *badger.Txn, now time.Time) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(now.UnixMilli()))
	return txn.Set(metaLastModifiedKey, buf)
}

func readLastModified(db *badger.DB) (time.Time, error) {
	var ms int64
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaLastModifiedKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			ms = int64(binary.BigEndian.Uint64(val))
			return nil
		})
	})
	if err != nil {
		return time.Time{}, err
	}
	if ms == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms).UTC(), nil
}
