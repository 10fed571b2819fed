// Package confidence derives a scalar confidence from retrieval relevance.
package confidence

import "github.com/fyrsmithlabs/answerd/internal/vectorstore"

// Default scoring constants. The cap signals "never fully certain", the
// floor signals "no evidence, answer may be unsupported".
const (
	DefaultCap     = 0.95
	DefaultFloor   = 0.1
	DefaultGeneral = 0.9
)

// Scorer computes confidence from a retrieved chunk set. The signal is
// retrieval-only; generation-side uncertainty is deliberately not folded in.
type Scorer struct {
	cap     float64
	floor   float64
	general float64
}

// NewScorer creates a Scorer. Zero parameters fall back to the defaults.
func NewScorer(cap, floor, general float64) *Scorer {
	if cap == 0 {
		cap = DefaultCap
	}
	if floor == 0 {
		floor = DefaultFloor
	}
	if general == 0 {
		general = DefaultGeneral
	}
	return &Scorer{cap: cap, floor: floor, general: general}
}

// Score returns min(avg(relevance), cap), or floor when chunks is empty.
func (s *Scorer) Score(chunks []vectorstore.SearchResult) float64 {
	if len(chunks) == 0 {
		return s.floor
	}
	var sum float64
	for _, c := range chunks {
		sum += c.Score
	}
	avg := sum / float64(len(chunks))
	if avg > s.cap {
		return s.cap
	}
	if avg < s.floor {
		return s.floor
	}
	return avg
}

// General returns the fixed confidence for pure general mode, where no
// retrieval was attempted.
func (s *Scorer) General() float64 {
	return s.general
}

// Floor returns the no-evidence confidence.
func (s *Scorer) Floor() float64 {
	return s.floor
}
