package coverage

import (
	"fmt"
	"math/rand/v2"
)

const (
	PolicyLowest = "lowest"
	PolicyRandom = "random"
)

// Selector picks the file the coverage loop targets. ok is false for an empty report.
type Selector interface {
	Select(r Report) (FileReport, bool)
}

// LowestSelector picks the least-covered file; ties go to the lexically first path.
type LowestSelector struct{}

func (LowestSelector) Select(r Report) (FileReport, bool) {
	files := r.Files()
	if len(files) == 0 {
		return FileReport{}, false
	}
	best := files[0]
	for _, fr := range files[1:] {
		if fr.Percent < best.Percent {
			best = fr
		}
	}
	return best, true
}

// RandomSelector picks uniformly among all reported files.
type RandomSelector struct {
	rng *rand.Rand
}

// NewRandomSelector seeds a PCG source so selections are reproducible for a given seed.
func NewRandomSelector(seed uint64) *RandomSelector {
	return &RandomSelector{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *RandomSelector) Select(r Report) (FileReport, bool) {
	files := r.Files()
	if len(files) == 0 {
		return FileReport{}, false
	}
	return files[s.rng.IntN(len(files))], true
}

// NewSelector builds the selector for a policy name.
func NewSelector(policy string, seed uint64) (Selector, error) {
	switch policy {
	case "", PolicyLowest:
		return LowestSelector{}, nil
	case PolicyRandom:
		return NewRandomSelector(seed), nil
	default:
		return nil, fmt.Errorf("unknown selection policy %q", policy)
	}
}
