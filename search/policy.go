package search

import "sort"

// PolicyTopK is the number of explicit (move, probability) pairs kept in a
// CompressedPolicy. 16 entries of (uint16, uint16) is 64 bytes, meeting a
// "policy fits in ≤64 bytes" budget exactly.
const PolicyTopK = 16

// policyPair is one explicit entry of a CompressedPolicy.
type policyPair struct {
	Move EncodedMove
	Prob uint16 // fixed-point
}

// CompressedPolicy stores the top-K legal moves by probability explicitly;
// the remaining probability mass is spread uniformly across whatever legal
// moves aren't in the top K.
type CompressedPolicy struct {
	top       [PolicyTopK]policyPair
	n         int     // number of top entries actually used (<= PolicyTopK)
	residual  float32 // probability mass left for moves outside top
	numLegal  int     // total legal move count, for residual distribution
}

// CompressPolicy builds a CompressedPolicy from a full (move -> prob) set.
// moves and probs must be the same length; probs need not already be
// normalized to 1.0.
func CompressPolicy(moves []EncodedMove, probs []float32) CompressedPolicy {
	var total float32
	for _, p := range probs {
		total += p
	}
	if total <= 0 {
		total = 1
	}

	type mp struct {
		m EncodedMove
		p float32
	}
	pairs := make([]mp, len(moves))
	for i := range moves {
		pairs[i] = mp{moves[i], probs[i] / total}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].p > pairs[j].p })

	cp := CompressedPolicy{numLegal: len(moves)}
	k := PolicyTopK
	if k > len(pairs) {
		k = len(pairs)
	}
	var topMass float32
	for i := 0; i < k; i++ {
		cp.top[i] = policyPair{Move: pairs[i].m, Prob: encodePrior(pairs[i].p)}
		topMass += pairs[i].p
	}
	cp.n = k
	remaining := len(pairs) - k
	if remaining > 0 {
		cp.residual = (1 - topMass) / float32(remaining)
		if cp.residual < 0 {
			cp.residual = 0
		}
	}
	return cp
}

// Prior returns the prior probability of m: the explicit top-K value if
// present, otherwise the uniform residual share. Any move outside the
// top-K gets the residual, whether or not it was among the moves the policy
// was built from; callers only probe legal moves.
func (c *CompressedPolicy) Prior(m EncodedMove) float32 {
	for i := 0; i < c.n; i++ {
		if c.top[i].Move == m {
			return float32(c.top[i].Prob) / 65535.0
		}
	}
	return c.residual
}

// Entries returns the explicit top-K (move, prior) pairs, for callers that
// want to iterate rather than probe one move at a time (e.g. Dirichlet
// noise mixing at the root).
func (c *CompressedPolicy) Entries() []policyPair {
	return c.top[:c.n]
}

// ResidualPrior returns the uniform share assigned to moves outside the
// explicit top-K.
func (c *CompressedPolicy) ResidualPrior() float32 { return c.residual }
