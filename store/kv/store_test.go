package kv

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/wbrown/dlstore/store"
	"github.com/wbrown/dlstore/store/codec"
	"github.com/wbrown/dlstore/store/schema"
)

func tempStore(t *testing.T) (*Store, string) {
	dir, err := os.MkdirTemp("", "dlstore-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := Open(dir, WithLogger(nil))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s, dir
}

// TestBasicAssertRetract is spec §8 scenario 1.
func TestBasicAssertRetract(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()

	datoms := []store.Datom{
		{E: 1, A: store.NewKeyword(":name"), V: "Ada", Added: true},
		{E: 1, A: store.NewKeyword(":age"), V: int64(36), Added: true},
	}
	if err := s.LoadDatoms(datoms); err != nil {
		t.Fatalf("load-datoms: %v", err)
	}

	got, err := s.Slice(codec.EAV, codec.Bound{EKnown: true, E: 1}, codec.Bound{EKnown: true, E: 1})
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 datoms for entity 1, got %d: %v", len(got), got)
	}

	if err := s.LoadDatoms([]store.Datom{
		{E: 1, A: store.NewKeyword(":age"), V: int64(36), Added: false},
	}); err != nil {
		t.Fatalf("retract: %v", err)
	}

	got, err = s.Slice(codec.EAV, codec.Bound{EKnown: true, E: 1}, codec.Bound{EKnown: true, E: 1})
	if err != nil {
		t.Fatalf("slice after retract: %v", err)
	}
	if len(got) != 1 || got[0].A.String() != ":name" {
		t.Fatalf("expected only :name to remain, got %v", got)
	}
}

// TestGiantString is spec §8 scenario 2.
func TestGiantString(t *testing.T) {
	s, dir := tempStore(t)

	big := strings.Repeat("x", 1024)
	if err := s.LoadDatoms([]store.Datom{
		{E: 2, A: store.NewKeyword(":name"), V: big, Added: true},
	}); err != nil {
		t.Fatalf("load-datoms: %v", err)
	}

	got, err := s.Fetch(store.Datom{E: 2, A: store.NewKeyword(":name"), V: big})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected fetch to find the giant datom, got %d results", len(got))
	}
	if got[0].V.(string) != big {
		t.Fatalf("giant value did not round-trip intact")
	}

	count, err := s.DatomCount(codec.EAV)
	if err != nil {
		t.Fatalf("datom-count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 eav entry, got %d", count)
	}
	if s.MaxGt() != InitialGt+1 {
		t.Fatalf("expected max-gt to advance by 1, got %d", s.MaxGt())
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// The Reopen subtest, spec §8 scenario 6, continues from here.
	t.Run("Reopen", func(t *testing.T) {
		reopened, err := Open(dir, WithLogger(nil))
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		defer reopened.Close()

		if reopened.MaxGt() != InitialGt+1 {
			t.Fatalf("expected max-gt to survive reopen, got %d", reopened.MaxGt())
		}

		got, err := reopened.Fetch(store.Datom{E: 2, A: store.NewKeyword(":name"), V: big})
		if err != nil {
			t.Fatalf("fetch after reopen: %v", err)
		}
		if len(got) != 1 || got[0].V.(string) != big {
			t.Fatalf("giant value did not survive reopen")
		}

		props, ok := reopened.Catalog().Lookup(":name")
		if !ok {
			t.Fatalf("expected :name to persist across reopen")
		}
		origProps, _ := s.Catalog().Lookup(":name")
		if props.Aid != origProps.Aid {
			t.Fatalf("expected aid to survive reopen unchanged, got %d want %d", props.Aid, origProps.Aid)
		}
	})
}

// TestReverseAttribute is spec §8 scenario 3.
func TestReverseAttribute(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()

	if _, err := s.SetSchema(map[string]schema.Props{
		":friend": {ValueType: store.TypeRef, Cardinality: schema.CardinalityMany},
	}); err != nil {
		t.Fatalf("set-schema: %v", err)
	}

	if err := s.LoadDatoms([]store.Datom{
		{E: 10, A: store.NewKeyword(":friend"), V: store.Entity(20), Added: true},
		{E: 11, A: store.NewKeyword(":friend"), V: store.Entity(20), Added: true},
	}); err != nil {
		t.Fatalf("load-datoms: %v", err)
	}

	got, err := s.Slice(codec.VEA, codec.Bound{VKnown: true, V: store.Entity(20)}, codec.Bound{VKnown: true, V: store.Entity(20)})
	if err != nil {
		t.Fatalf("vea slice: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 vea entries pointing at entity 20, got %d", len(got))
	}
	if got[0].E > got[1].E {
		t.Fatalf("expected vea slice in ascending entity order, got %v", got)
	}

	empty, err := s.Slice(codec.EAV, codec.Bound{EKnown: true, E: 20}, codec.Bound{EKnown: true, E: 20})
	if err != nil {
		t.Fatalf("eav slice: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected entity 20 to have no outgoing facts, got %v", empty)
	}
}

// TestRangeBounds is spec §8 scenario 4.
func TestRangeBounds(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()

	if _, err := s.SetSchema(map[string]schema.Props{
		":score": {ValueType: store.TypeLong},
	}); err != nil {
		t.Fatalf("set-schema: %v", err)
	}

	datoms := make([]store.Datom, 0, 100)
	for e := 1; e <= 100; e++ {
		datoms = append(datoms, store.Datom{
			E: store.Entity(e), A: store.NewKeyword(":score"), V: int64(e * 10), Added: true,
		})
	}
	if err := s.LoadDatoms(datoms); err != nil {
		t.Fatalf("load-datoms: %v", err)
	}

	scoreAid, _ := s.Catalog().Lookup(":score")
	n, err := s.Size(codec.AVE,
		codec.Bound{AidKnown: true, Aid: scoreAid.Aid, VKnown: true, V: int64(250)},
		codec.Bound{AidKnown: true, Aid: scoreAid.Aid, VKnown: true, V: int64(500)})
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if n != 26 {
		t.Fatalf("expected 26 scores in [250,500], got %d", n)
	}
}

// TestPredicateFilter is spec §8 scenario 5.
func TestPredicateFilter(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()

	if _, err := s.SetSchema(map[string]schema.Props{
		":score": {ValueType: store.TypeLong},
	}); err != nil {
		t.Fatalf("set-schema: %v", err)
	}

	datoms := make([]store.Datom, 0, 100)
	for e := 1; e <= 100; e++ {
		datoms = append(datoms, store.Datom{
			E: store.Entity(e), A: store.NewKeyword(":score"), V: int64(e * 10), Added: true,
		})
	}
	if err := s.LoadDatoms(datoms); err != nil {
		t.Fatalf("load-datoms: %v", err)
	}

	scoreAid, _ := s.Catalog().Lookup(":score")
	multiplesOf100 := func(d store.Datom) bool {
		return d.V.(int64)%100 == 0
	}

	got, err := s.SliceFilter(codec.AVE, multiplesOf100,
		codec.Bound{AidKnown: true, Aid: scoreAid.Aid},
		codec.Bound{AidKnown: true, Aid: scoreAid.Aid})
	if err != nil {
		t.Fatalf("slice-filter: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 matching datoms, got %d", len(got))
	}
	for i, d := range got {
		want := int64((i + 1) * 100)
		if d.V.(int64) != want {
			t.Fatalf("result %d: expected score %d, got %v", i, want, d.V)
		}
	}
}

func TestLastModifiedSetByImplicitSchemaSeed(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()

	lm, err := s.LastModified()
	if err != nil {
		t.Fatalf("last-modified: %v", err)
	}
	if lm.IsZero() {
		t.Fatal("expected last-modified to be set by the implicit-schema seed on first open")
	}
}

func TestAdvanceMaxGt(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()

	before := s.MaxGt()
	first, err := s.AdvanceMaxGt(5)
	if err != nil {
		t.Fatalf("advance-max-gt: %v", err)
	}
	if first != before {
		t.Fatalf("expected reserved range to start at %d, got %d", before, first)
	}
	if s.MaxGt() != before+5 {
		t.Fatalf("expected max-gt to advance by 5, got %d", s.MaxGt())
	}
}

// TestLoadDatomsAcrossBatchesPublishesFreshCatalog forces more than one
// batch so new-attribute observation happens in more than one
// commitBatch call, guarding against republishing the same mutable
// Catalog object across batches (spec §5 publish-by-replace).
func TestLoadDatomsAcrossBatchesPublishesFreshCatalog(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()
	s.batchSize = 2

	datoms := []store.Datom{
		{E: 1, A: store.NewKeyword(":a"), V: "1", Added: true},
		{E: 2, A: store.NewKeyword(":b"), V: "2", Added: true},
		{E: 3, A: store.NewKeyword(":c"), V: "3", Added: true},
		{E: 4, A: store.NewKeyword(":d"), V: "4", Added: true},
		{E: 5, A: store.NewKeyword(":e"), V: "5", Added: true},
	}
	if err := s.LoadDatoms(datoms); err != nil {
		t.Fatalf("load-datoms: %v", err)
	}

	cat := s.Catalog()
	for _, attr := range []string{":a", ":b", ":c", ":d", ":e"} {
		if _, ok := cat.Lookup(attr); !ok {
			t.Fatalf("expected %s to be observed across batches, schema: %v", attr, cat.Snapshot())
		}
	}

	seen := make(map[uint32]bool)
	for _, attr := range []string{":a", ":b", ":c", ":d", ":e"} {
		props, _ := cat.Lookup(attr)
		if seen[props.Aid] {
			t.Fatalf("aid %d reused across attributes observed in different batches", props.Aid)
		}
		seen[props.Aid] = true
	}
}

func TestClosedStoreFailsFast(t *testing.T) {
	s, _ := tempStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close must be idempotent, got: %v", err)
	}

	if _, err := s.Fetch(store.Datom{E: 1, A: store.NewKeyword(":x"), V: "y"}); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := s.LoadDatoms([]store.Datom{{E: 1, A: store.NewKeyword(":x"), V: "y", Added: true}}); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRetractUnknownAttributeSurfacesError(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()

	err := s.LoadDatoms([]store.Datom{
		{E: 1, A: store.NewKeyword(":nonexistent"), V: "x", Added: false},
	})
	if err == nil {
		t.Fatal("expected retracting an unknown attribute to surface an error")
	}
}

func ExampleStore_LoadDatoms() {
	dir, _ := os.MkdirTemp("", "dlstore-example-*")
	defer os.RemoveAll(dir)

	s, err := Open(dir, WithLogger(nil))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer s.Close()

	_ = s.LoadDatoms([]store.Datom{
		{E: 1, A: store.NewKeyword(":name"), V: "Ada", Added: true},
	})
	got, _ := s.Fetch(store.Datom{E: 1, A: store.NewKeyword(":name"), V: "Ada"})
	fmt.Println(len(got))
	// Output: 1
}
