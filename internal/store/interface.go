package store

import (
	"context"
	"time"

	"github.com/brandlens/visibility-bot/internal/models"
)

// Store defines the contract for persistence operations
type Store interface {
	// Providers. DisableProvider is the only mutation the pipeline performs
	// on the provider registry; it is used exclusively by the health monitor.
	ListProviders(ctx context.Context) ([]models.Provider, error)
	ListEnabledProviders(ctx context.Context) ([]models.Provider, error)
	DisableProvider(ctx context.Context, providerID, reason string) error

	// Brands and tracked entities.
	ListBrands(ctx context.Context) ([]models.Brand, error)
	GetBrand(ctx context.Context, brandID string) (*models.Brand, error)
	ListTrackedEntities(ctx context.Context, brandID string) ([]models.Entity, error)

	// Prompts.
	ListPromptsByStatus(ctx context.Context, brandID, status string) ([]models.Prompt, error)
	SavePromptResult(ctx context.Context, prompt *models.Prompt) error
	MarkPromptFailed(ctx context.Context, promptID, message string, failedAt time.Time) error
	CountAnalyzedPrompts(ctx context.Context, brandID string, windowStart, windowEnd time.Time, providerID string) (int, error)

	// Mentions are append-only; re-analysis writes new rows under a new
	// session id instead of mutating old ones.
	CreateMentions(ctx context.Context, mentions []models.Mention) error
	ListMentions(ctx context.Context, brandID, entityID string, windowStart, windowEnd time.Time, providerID string) ([]models.Mention, error)

	// Competitive stats are append-only snapshots; the latest row per entity
	// is the current state.
	CreateStats(ctx context.Context, stats []models.CompetitiveStat) error
	LatestStatBefore(ctx context.Context, brandID, entityID, providerID string, before time.Time) (*models.CompetitiveStat, error)
	LatestStats(ctx context.Context, brandID string) ([]models.CompetitiveStat, error)
}
