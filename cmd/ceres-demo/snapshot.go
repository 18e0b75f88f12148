package main

import (
	"log"
	"os"

	"github.com/ceres-search/ceres/search"
)

// writeSnapshot exports the current game tree as a Graphviz DOT file,
// grounded on search/snapshot.go's on-demand debug export.
func writeSnapshot(store *search.NodeStore, root search.NodeIdx, path string) {
	snap := search.BuildSnapshot(store, root, 5000)
	dot, err := snap.DOT()
	if err != nil {
		log.Printf("ceres-demo: snapshot failed: %v", err)
		return
	}
	if err := os.WriteFile(path, []byte(dot), 0o644); err != nil {
		log.Printf("ceres-demo: writing snapshot: %v", err)
	}
}
