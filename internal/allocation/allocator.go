package allocation

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// WeightedProvider is one enabled provider competing for prompt assignments.
type WeightedProvider struct {
	ID     string
	Weight int
}

// ShuffleFunc reorders the flat assignment list in place. Injectable so tests
// can assert the distribution without depending on randomness.
type ShuffleFunc func(assignments []string)

// Allocator apportions a batch of prompts across providers by weight using
// the largest remainder (Hamilton) method, then shuffles the flat assignment
// list to avoid positional bias. The counting step is pure and deterministic;
// only the final shuffle is randomized.
type Allocator struct {
	shuffle ShuffleFunc
}

// NewAllocator creates an allocator using the given random source for the
// shuffle step.
func NewAllocator(rng *rand.Rand) *Allocator {
	return &Allocator{
		shuffle: func(assignments []string) {
			rng.Shuffle(len(assignments), func(i, j int) {
				assignments[i], assignments[j] = assignments[j], assignments[i]
			})
		},
	}
}

// NewAllocatorWithShuffle creates an allocator with a custom shuffle step.
// Passing nil keeps the assignment list in deterministic order.
func NewAllocatorWithShuffle(shuffle ShuffleFunc) *Allocator {
	return &Allocator{shuffle: shuffle}
}

// Allocate returns exactly totalUnits provider ids, one per prompt, with each
// provider's count within 1 of its ideal fractional share. The caller zips
// the result 1:1 against the ordered prompt list.
func (a *Allocator) Allocate(totalUnits int, providers []WeightedProvider) ([]string, error) {
	if totalUnits == 0 {
		return []string{}, nil
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no eligible providers")
	}

	totalWeight := 0
	for _, p := range providers {
		if p.Weight <= 0 {
			return nil, fmt.Errorf("provider %s has non-positive weight %d", p.ID, p.Weight)
		}
		totalWeight += p.Weight
	}

	if totalWeight == 0 {
		return nil, fmt.Errorf("no eligible providers")
	}

	counts := apportion(totalUnits, totalWeight, providers)

	// Build the flat assignment list and shuffle it so that provider order
	// carries no positional bias across the prompt list.
	assignments := make([]string, 0, totalUnits)
	for _, p := range providers {
		for i := 0; i < counts[p.ID]; i++ {
			assignments = append(assignments, p.ID)
		}
	}

	if a.shuffle != nil {
		a.shuffle(assignments)
	}

	return assignments, nil
}

// Counts returns the per-provider unit counts without building the flat list.
// Useful for auditing a batch before dispatch.
func (a *Allocator) Counts(totalUnits int, providers []WeightedProvider) (map[string]int, error) {
	if totalUnits == 0 {
		return map[string]int{}, nil
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no eligible providers")
	}

	totalWeight := 0
	for _, p := range providers {
		if p.Weight <= 0 {
			return nil, fmt.Errorf("provider %s has non-positive weight %d", p.ID, p.Weight)
		}
		totalWeight += p.Weight
	}

	return apportion(totalUnits, totalWeight, providers), nil
}

// apportion implements the largest remainder method: every provider gets the
// floor of its ideal share, and the leftover units go to the providers with
// the largest fractional remainders, ties broken by provider id ascending.
func apportion(totalUnits, totalWeight int, providers []WeightedProvider) map[string]int {
	type share struct {
		id        string
		base      int
		remainder float64
	}

	shares := make([]share, 0, len(providers))
	assignedTotal := 0

	for _, p := range providers {
		ideal := float64(p.Weight) / float64(totalWeight) * float64(totalUnits)
		base := int(math.Floor(ideal))
		shares = append(shares, share{
			id:        p.ID,
			base:      base,
			remainder: ideal - float64(base),
		})
		assignedTotal += base
	}

	leftover := totalUnits - assignedTotal

	sort.Slice(shares, func(i, j int) bool {
		if shares[i].remainder != shares[j].remainder {
			return shares[i].remainder > shares[j].remainder
		}
		return shares[i].id < shares[j].id
	})

	counts := make(map[string]int, len(shares))
	for i, s := range shares {
		count := s.base
		if i < leftover {
			count++
		}
		counts[s.id] = count
	}

	return counts
}
