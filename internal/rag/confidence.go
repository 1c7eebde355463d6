package rag

import (
	"fmt"

	"github.com/askcorpus/askcorpus/internal/index"
)

// Gate decides whether retrieval results are trustworthy enough to answer
// from, or whether the system should say it does not know.
//
// Confidence starts at the best hit's similarity. When a runner-up exists,
// a small ambiguity penalty scaled by how close the runner-up is pulls the
// score down: two near-identical top hits from different contexts are a
// weaker signal than one clear winner.
type Gate struct {
	Threshold  float64 // answers below this fall back, in [0,1]
	GapPenalty float64 // ambiguity penalty weight, in [0,1]
}

// Decision is the gate's verdict for one query.
type Decision struct {
	Confidence float64
	Fallback   bool
}

// NewGate validates the gate parameters.
func NewGate(threshold, gapPenalty float64) (Gate, error) {
	if threshold < 0 || threshold > 1 {
		return Gate{}, fmt.Errorf("fallback threshold %f outside [0,1]", threshold)
	}
	if gapPenalty < 0 || gapPenalty > 1 {
		return Gate{}, fmt.Errorf("ambiguity gap penalty %f outside [0,1]", gapPenalty)
	}
	return Gate{Threshold: threshold, GapPenalty: gapPenalty}, nil
}

// Score computes the confidence for ranked hits. No hits means the corpus
// has nothing relevant: confidence 0, always a fallback.
func (g Gate) Score(hits []index.Hit) Decision {
	if len(hits) == 0 {
		return Decision{Confidence: 0, Fallback: true}
	}

	confidence := hits[0].Similarity
	if len(hits) >= 2 {
		gap := hits[0].Similarity - hits[1].Similarity
		confidence -= g.GapPenalty * (1 - gap)
	}

	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	return Decision{Confidence: confidence, Fallback: confidence < g.Threshold}
}
