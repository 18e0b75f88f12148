// ceres-demo drives the search engine against a single FEN position using a
// simple material-count evaluator, to exercise the full
// select->classify->evaluate->backup pipeline end to end without a real
// neural network (explicitly out of scope). Flag style grounded on
// cmd/generatemoves/main.go and cmd/infer/main.go.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/ceres-search/ceres/internal/chessfixture"
	"github.com/ceres-search/ceres/search"
)

var (
	fenFlag       = flag.String("fen", "", "FEN to search from (default: standard start position)")
	maxNodesFlag  = flag.Int("max_nodes", 20000, "node store capacity")
	timeFlag      = flag.Duration("time", 2*time.Second, "search time budget")
	workersFlag   = flag.Int("workers", 4, "number of search worker goroutines")
	snapshotFlag  = flag.String("snapshot", "", "if set, write a DOT game-tree snapshot to this path after searching")
)

func main() {
	flag.Parse()

	var pos *chessfixture.Position
	var err error
	if *fenFlag != "" {
		pos, err = chessfixture.FromFEN(*fenFlag)
	} else {
		pos = chessfixture.NewGame()
	}
	if err != nil {
		log.Fatalf("ceres-demo: %v", err)
	}

	cfg := search.DefaultConfig()
	cfg.MaxNodes = *maxNodesFlag
	cfg.NumWorkerThreads = *workersFlag
	if err := cfg.IsValid(); err != nil {
		log.Fatalf("ceres-demo: invalid config: %v", err)
	}

	store := search.NewNodeStore(cfg.MaxNodes, pos.ActionSpace(), cfg.NumWorkerThreads)
	gateway := search.NewGateway(&materialEvaluator{})
	driver := search.NewSearchDriver(store, gateway, cfg)

	if err := driver.SetRoot(pos); err != nil {
		log.Fatalf("ceres-demo: %v", err)
	}

	result, err := driver.Search(search.Limit{Kinds: search.LimitTime, TimeBudget: *timeFlag})
	if err != nil {
		log.Fatalf("ceres-demo: search failed: %v", err)
	}

	fmt.Printf("best move (encoded): %d\n", result.BestMove)
	fmt.Printf("Q: %.4f  nodes: %d  wall: %v  status: %v\n",
		result.Q, result.NodesSearched, result.WallTime, result.Status)
	fmt.Printf("pv: %v\n", result.PV)
	for _, c := range result.RootChildren {
		if c.Visits == 0 {
			continue
		}
		fmt.Printf("  move=%d visits=%d Q=%.4f prior=%.4f\n", c.Move, c.Visits, c.Q, c.Prior)
	}

	if *snapshotFlag != "" {
		writeSnapshot(store, driver.RootIndex(), *snapshotFlag)
	}
}
