package search

import "time"

// RootChildStat reports per-root-child statistics.
type RootChildStat struct {
	Move      EncodedMove
	Visits    uint32
	Q         float32
	Prior     float32
	MovesLeft float32
}

// SearchResult is everything a completed search emits.
type SearchResult struct {
	BestMove EncodedMove
	PV       []EncodedMove

	Q                float32
	ValueUncertainty float32
	MovesLeft        float32

	RootChildren []RootChildStat

	NodesSearched int
	WallTime      time.Duration
	BatchStats    []BatchStats

	Status Status
}
