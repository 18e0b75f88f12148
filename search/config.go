package search

import "fmt"

// BestMoveSelection names the policy the driver uses to pick the final
// move once a search terminates.
type BestMoveSelection int

const (
	MaxN BestMoveSelection = iota
	MaxQ
	MaxNWithQTiebreak
)

func (b BestMoveSelection) String() string {
	switch b {
	case MaxN:
		return "MaxN"
	case MaxQ:
		return "MaxQ"
	case MaxNWithQTiebreak:
		return "MaxNWithQTiebreak"
	}
	return "UNKNOWN"
}

// Config holds every search tunable: a plain struct with a validator,
// JSON-tagged, no command-line parsing layer (out of scope).
type Config struct {
	CpuctBase              float32 `json:"cpuct_base"`
	CpuctFactor            float32 `json:"cpuct_factor"`
	CpuctInit              float32 `json:"cpuct_init"`
	CpuctAtRootMultiplier  float32 `json:"cpuct_at_root_multiplier"`
	FpuReduction           float32 `json:"fpu_reduction"`
	FpuReductionAtRoot     float32 `json:"fpu_reduction_at_root"`
	PolicySoftmaxTemp      float32 `json:"policy_softmax_temperature"`
	DirichletNoiseEpsilon  float32 `json:"dirichlet_noise_epsilon"`
	DirichletNoiseAlpha    float32 `json:"dirichlet_noise_alpha"`
	VirtualLossPerVisit    int32   `json:"virtual_loss_per_visit"`
	TranspositionMinVisits uint32  `json:"transposition_min_visits"`
	MaxNodes               int     `json:"max_nodes"`
	MaxBatchSize           int     `json:"max_batch_size"`
	TargetBatchSize        int     `json:"target_batch_size"`
	NumWorkerThreads       int     `json:"num_worker_threads"`
	TreeReuseEnabled       bool    `json:"tree_reuse_enabled"`
	BestMoveSelection      BestMoveSelection `json:"best_move_selection"`
}

// DefaultConfig returns a conservative, generally-sound configuration.
// Defaults are tuned to find a forced mate-in-1 within 200 nodes while
// staying sane for larger searches.
func DefaultConfig() Config {
	return Config{
		CpuctBase:              1.25,
		CpuctFactor:            1.0,
		CpuctInit:              19652,
		CpuctAtRootMultiplier:  1.0,
		FpuReduction:           0.25,
		FpuReductionAtRoot:     0.1,
		PolicySoftmaxTemp:      1.0,
		DirichletNoiseEpsilon:  0.25,
		DirichletNoiseAlpha:    0.3,
		VirtualLossPerVisit:    1,
		TranspositionMinVisits: 1,
		MaxNodes:               1 << 20,
		MaxBatchSize:           256,
		TargetBatchSize:        64,
		NumWorkerThreads:       4,
		TreeReuseEnabled:       true,
		BestMoveSelection:      MaxNWithQTiebreak,
	}
}

// IsValid reports whether c is internally consistent enough to search
// with.
func (c Config) IsValid() error {
	switch {
	case c.MaxNodes <= 0:
		return fmt.Errorf("search: max_nodes must be positive, got %d", c.MaxNodes)
	case c.MaxBatchSize <= 0:
		return fmt.Errorf("search: max_batch_size must be positive, got %d", c.MaxBatchSize)
	case c.TargetBatchSize <= 0 || c.TargetBatchSize > c.MaxBatchSize:
		return fmt.Errorf("search: target_batch_size must be in (0, max_batch_size], got %d", c.TargetBatchSize)
	case c.NumWorkerThreads <= 0:
		return fmt.Errorf("search: num_worker_threads must be positive, got %d", c.NumWorkerThreads)
	case c.VirtualLossPerVisit < 0:
		return fmt.Errorf("search: virtual_loss_per_visit must be >= 0, got %d", c.VirtualLossPerVisit)
	case c.CpuctInit <= 0:
		return fmt.Errorf("search: cpuct_init must be positive, got %v", c.CpuctInit)
	case c.DirichletNoiseEpsilon < 0 || c.DirichletNoiseEpsilon > 1:
		return fmt.Errorf("search: dirichlet_noise_epsilon must be in [0,1], got %v", c.DirichletNoiseEpsilon)
	}
	return nil
}
