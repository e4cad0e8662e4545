package kv

import (
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/wbrown/dlstore/store"
	"github.com/wbrown/dlstore/store/codec"
)

// InitialGt is the first giant id ever allocated by a fresh store
// (spec §3 invariant 4: "max-gt is recovered on open as
// last-stored-gt+1 (or an initial constant if empty)"). Zero is
// reserved as the "normal" sentinel stored in the eav/ave/vea value
// column, so giant ids start at 1.
const InitialGt uint64 = 1

// giantRecord is the msgpack-persisted form of a full datom value
// that didn't fit inside an index key's value budget. Grounded on
// andreyvit-edb's schema/value persistence via
// github.com/vmihailenco/msgpack/v5, which the donor's own
// datalog/storage package never needed since it never had an
// out-of-line value table.
type giantRecord struct {
	E     int64  `msgpack:"e"`
	Aid   uint32 `msgpack:"aid"`
	VTag  byte   `msgpack:"vtag"`
	VData []byte `msgpack:"vdata"`
}

func encodeGiant(e store.Entity, aid uint32, v store.Value) ([]byte, error) {
	tag, payload := codec.EncodeValue(v)
	rec := giantRecord{E: int64(e), Aid: aid, VTag: tag, VData: payload}
	return msgpack.Marshal(&rec)
}

func decodeGiant(data []byte) (store.Entity, uint32, store.Value, error) {
	var rec giantRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return 0, 0, nil, fmt.Errorf("kv: decode giant record: %w", err)
	}
	v, err := codec.DecodeValue(rec.VTag, rec.VData)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("kv: decode giant value: %w", err)
	}
	return store.Entity(rec.E), rec.Aid, v, nil
}

func giantKey(gt uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, gt)
	return withPrefix(prefixGiants, buf)
}

func gtFromKey(key []byte) uint64 {
	// key[0] is the namespace prefix byte.
	return binary.BigEndian.Uint64(key[1:9])
}

// recoverMaxGt scans the giants table backwards for the
// highest-numbered entry and returns last+1, or InitialGt if the
// table is empty (spec §3 invariant 4, §9 "Global counters").
func recoverMaxGt(db *badger.DB) (uint64, error) {
	var maxGt uint64
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(prefixUpperBound(prefixGiants))
		if it.Valid() {
			key := it.Item().Key()
			if len(key) > 0 && key[0] == prefixGiants {
				maxGt = gtFromKey(key) + 1
				return nil
			}
		}
		maxGt = InitialGt
		return nil
	})
	if err != nil {
		return 0, err
	}
	return maxGt, nil
}

func giantValueColumn(gt uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, gt)
	return buf
}

var normalValueColumn = make([]byte, 8)

func isGiantColumn(col []byte) (uint64, bool) {
	gt := binary.BigEndian.Uint64(col)
	return gt, gt != 0
}
