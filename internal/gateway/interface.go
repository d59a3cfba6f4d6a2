package gateway

import (
	"context"

	"github.com/brandlens/visibility-bot/internal/models"
)

// Stats is the structured analysis a provider may return for one prompt.
type Stats struct {
	Visibility float64 `json:"visibility"`
	Position   float64 `json:"position"`
	Sentiment  float64 `json:"sentiment"`
	Volume     float64 `json:"volume"`
}

// Result is what a provider returned for one prompt: either structured stats,
// raw response text, or both. RawText is always populated when the provider
// answered with free text, so mention extraction can run on it.
type Result struct {
	Stats   *Stats `json:"stats,omitempty"`
	RawText string `json:"raw_text,omitempty"`
}

// Gateway defines the contract for talking to AI providers
type Gateway interface {
	// Analyze sends one prompt to the given provider and returns its answer.
	// The call is bounded by the context deadline; any error is a normal
	// per-prompt failure for the caller.
	Analyze(ctx context.Context, provider models.Provider, promptText string) (*Result, error)

	// Probe issues a lightweight liveness check against the provider.
	Probe(ctx context.Context, provider models.Provider) error
}
