// storectl is a minimal smoke-test binary for the store package: it
// opens a store, ingests a handful of datoms, and prints what it can
// read back. It is not the Datalog shell (stat/dump/load/copy/drop/exec)
// that sits on top of this engine elsewhere.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wbrown/dlstore/store"
	"github.com/wbrown/dlstore/store/codec"
	"github.com/wbrown/dlstore/store/kv"
)

func main() {
	dir := flag.String("dir", "", "store directory (created if absent)")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "storectl: -dir is required")
		os.Exit(1)
	}

	s, err := kv.Open(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "storectl: open: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	datoms := []store.Datom{
		{E: 1, A: store.NewKeyword(":user/name"), V: "Ada Lovelace", Added: true},
		{E: 1, A: store.NewKeyword(":user/age"), V: int64(36), Added: true},
		{E: 2, A: store.NewKeyword(":user/name"), V: "Alan Turing", Added: true},
	}
	if err := s.LoadDatoms(datoms); err != nil {
		fmt.Fprintf(os.Stderr, "storectl: load-datoms: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("eav entries: ")
	all, err := s.Slice(codec.EAV, codec.Bound{}, codec.Bound{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "storectl: slice: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(len(all))
	for _, d := range all {
		fmt.Printf("  %s\n", d)
	}

	maxEID, err := s.InitMaxEID()
	if err != nil {
		fmt.Fprintf(os.Stderr, "storectl: init-max-eid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("max entity id: %s\n", maxEID)
}
