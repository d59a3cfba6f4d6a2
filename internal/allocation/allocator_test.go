package allocation

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func countByProvider(assignments []string) map[string]int {
	counts := make(map[string]int)
	for _, id := range assignments {
		counts[id]++
	}
	return counts
}

func TestAllocator_ExactShares(t *testing.T) {
	// 3 providers with weights 5/3/2 over 10 prompts divide without leftover.
	allocator := NewAllocatorWithShuffle(nil)

	providers := []WeightedProvider{
		{ID: "openai", Weight: 5},
		{ID: "anthropic", Weight: 3},
		{ID: "gemini", Weight: 2},
	}

	assignments, err := allocator.Allocate(10, providers)
	assert.NoError(t, err)
	assert.Len(t, assignments, 10)

	counts := countByProvider(assignments)
	assert.Equal(t, 5, counts["openai"])
	assert.Equal(t, 3, counts["anthropic"])
	assert.Equal(t, 2, counts["gemini"])
}

func TestAllocator_LeftoverTieBreak(t *testing.T) {
	// Equal weights over an odd total: remainders tie at 0.5 and the extra
	// unit goes to the lowest provider id.
	allocator := NewAllocatorWithShuffle(nil)

	providers := []WeightedProvider{
		{ID: "beta", Weight: 1},
		{ID: "alpha", Weight: 1},
	}

	assignments, err := allocator.Allocate(3, providers)
	assert.NoError(t, err)
	assert.Len(t, assignments, 3)

	counts := countByProvider(assignments)
	assert.Equal(t, 2, counts["alpha"])
	assert.Equal(t, 1, counts["beta"])
}

func TestAllocator_CountsWithinOneOfIdeal(t *testing.T) {
	allocator := NewAllocatorWithShuffle(nil)

	tests := []struct {
		name       string
		totalUnits int
		providers  []WeightedProvider
	}{
		{
			name:       "Uneven weights",
			totalUnits: 17,
			providers: []WeightedProvider{
				{ID: "a", Weight: 7},
				{ID: "b", Weight: 2},
				{ID: "c", Weight: 4},
			},
		},
		{
			name:       "Single provider",
			totalUnits: 9,
			providers:  []WeightedProvider{{ID: "only", Weight: 3}},
		},
		{
			name:       "More providers than units",
			totalUnits: 2,
			providers: []WeightedProvider{
				{ID: "a", Weight: 1},
				{ID: "b", Weight: 1},
				{ID: "c", Weight: 1},
				{ID: "d", Weight: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assignments, err := allocator.Allocate(tt.totalUnits, tt.providers)
			assert.NoError(t, err)
			assert.Len(t, assignments, tt.totalUnits)

			totalWeight := 0
			for _, p := range tt.providers {
				totalWeight += p.Weight
			}

			counts := countByProvider(assignments)
			for _, p := range tt.providers {
				ideal := float64(p.Weight) / float64(totalWeight) * float64(tt.totalUnits)
				count := float64(counts[p.ID])
				assert.LessOrEqual(t, count, ideal+1, "provider %s over its share", p.ID)
				assert.GreaterOrEqual(t, count, ideal-1, "provider %s under its share", p.ID)
			}
		})
	}
}

func TestAllocator_ZeroUnits(t *testing.T) {
	allocator := NewAllocator(rand.New(rand.NewSource(1)))

	assignments, err := allocator.Allocate(0, []WeightedProvider{{ID: "a", Weight: 1}})
	assert.NoError(t, err)
	assert.Empty(t, assignments)
}

func TestAllocator_NoProviders(t *testing.T) {
	allocator := NewAllocator(rand.New(rand.NewSource(1)))

	_, err := allocator.Allocate(5, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no eligible providers")
}

func TestAllocator_NonPositiveWeight(t *testing.T) {
	allocator := NewAllocatorWithShuffle(nil)

	_, err := allocator.Allocate(5, []WeightedProvider{
		{ID: "a", Weight: 1},
		{ID: "b", Weight: 0},
	})
	assert.Error(t, err)

	_, err = allocator.Allocate(5, []WeightedProvider{{ID: "a", Weight: -2}})
	assert.Error(t, err)
}

func TestAllocator_ShufflePreservesCounts(t *testing.T) {
	// A seeded shuffle must not change how many units each provider gets.
	allocator := NewAllocator(rand.New(rand.NewSource(42)))

	providers := []WeightedProvider{
		{ID: "a", Weight: 3},
		{ID: "b", Weight: 1},
	}

	assignments, err := allocator.Allocate(12, providers)
	assert.NoError(t, err)

	counts := countByProvider(assignments)
	assert.Equal(t, 9, counts["a"])
	assert.Equal(t, 3, counts["b"])
}

func TestAllocator_Counts(t *testing.T) {
	allocator := NewAllocatorWithShuffle(nil)

	counts, err := allocator.Counts(10, []WeightedProvider{
		{ID: "a", Weight: 5},
		{ID: "b", Weight: 3},
		{ID: "c", Weight: 2},
	})
	assert.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 5, "b": 3, "c": 2}, counts)

	total := 0
	for _, c := range counts {
		total += c
	}
	assert.Equal(t, 10, total)
}
