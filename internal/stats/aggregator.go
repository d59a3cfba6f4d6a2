package stats

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/brandlens/visibility-bot/internal/models"
	"github.com/brandlens/visibility-bot/internal/notifications"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store is the slice of persistence the aggregator needs.
type Store interface {
	ListBrands(ctx context.Context) ([]models.Brand, error)
	GetBrand(ctx context.Context, brandID string) (*models.Brand, error)
	ListTrackedEntities(ctx context.Context, brandID string) ([]models.Entity, error)
	CountAnalyzedPrompts(ctx context.Context, brandID string, windowStart, windowEnd time.Time, providerID string) (int, error)
	ListMentions(ctx context.Context, brandID, entityID string, windowStart, windowEnd time.Time, providerID string) ([]models.Mention, error)
	CreateStats(ctx context.Context, stats []models.CompetitiveStat) error
	LatestStatBefore(ctx context.Context, brandID, entityID, providerID string, before time.Time) (*models.CompetitiveStat, error)
	LatestStats(ctx context.Context, brandID string) ([]models.CompetitiveStat, error)
}

// Aggregator turns stored mentions into time-windowed competitive stats with
// trend comparison against the previous snapshot. Snapshots are append-only;
// the latest row per entity is the current state.
type Aggregator struct {
	store    Store
	notifier notifications.Notifier // nil disables digests

	// Recalculations for one brand are serialized so concurrent runs cannot
	// both read the same "previous" snapshot and write inconsistent trends.
	// Different brands proceed concurrently.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAggregator creates a new statistics aggregator
func NewAggregator(store Store, notifier notifications.Notifier) *Aggregator {
	return &Aggregator{
		store:    store,
		notifier: notifier,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (a *Aggregator) brandLock(brandID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	lock, ok := a.locks[brandID]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[brandID] = lock
	}
	return lock
}

// Recalculate computes one new snapshot per tracked entity that has mentions
// in the window, optionally scoped to a single provider. Entities without
// mentions are not evaluated: zero visibility and "not evaluated" are
// different things.
func (a *Aggregator) Recalculate(ctx context.Context, brandID string, windowStart, windowEnd time.Time, providerFilter string) ([]models.CompetitiveStat, error) {
	lock := a.brandLock(brandID)
	lock.Lock()
	defer lock.Unlock()

	logrus.Infof("Recalculating stats for brand %s (%s to %s, provider=%q)",
		brandID, windowStart.Format("2006-01-02"), windowEnd.Format("2006-01-02"), providerFilter)

	entities, err := a.store.ListTrackedEntities(ctx, brandID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}

	promptCount, err := a.store.CountAnalyzedPrompts(ctx, brandID, windowStart, windowEnd, providerFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to count analyzed prompts: %w", err)
	}

	analyzedAt := time.Now()
	sessionID := uuid.New().String()

	var snapshots []models.CompetitiveStat

	for _, entity := range entities {
		mentions, err := a.store.ListMentions(ctx, brandID, entity.ID, windowStart, windowEnd, providerFilter)
		if err != nil {
			// Aggregation errors for one entity do not sink the run.
			logrus.Errorf("Failed to load mentions for entity %s: %v", entity.ID, err)
			continue
		}

		if len(mentions) == 0 {
			continue
		}

		stat := buildSnapshot(brandID, entity, mentions, promptCount, windowStart, windowEnd, providerFilter, sessionID, analyzedAt)

		previous, err := a.store.LatestStatBefore(ctx, brandID, entity.ID, providerFilter, analyzedAt)
		if err != nil {
			logrus.Errorf("Failed to load previous stat for entity %s: %v", entity.ID, err)
			previous = nil
		}
		applyTrend(&stat, previous)

		snapshots = append(snapshots, stat)
	}

	// Always append, even when nothing changed since the previous run.
	if err := a.store.CreateStats(ctx, snapshots); err != nil {
		return nil, fmt.Errorf("failed to store snapshots: %w", err)
	}

	logrus.Infof("Wrote %d snapshots for brand %s (%d analyzed prompts in window)",
		len(snapshots), brandID, promptCount)

	return snapshots, nil
}

// RecalculateWindow recalculates over the trailing windowDays ending now.
func (a *Aggregator) RecalculateWindow(ctx context.Context, brandID string, windowDays int, providerFilter string) ([]models.CompetitiveStat, error) {
	windowEnd := time.Now()
	windowStart := windowEnd.AddDate(0, 0, -windowDays)
	return a.Recalculate(ctx, brandID, windowStart, windowEnd, providerFilter)
}

// RecalculateAll runs a trailing-window recalculation for every brand. Brands
// are independent; one failure does not stop the others.
func (a *Aggregator) RecalculateAll(ctx context.Context, windowDays int, providerFilter string) error {
	brands, err := a.store.ListBrands(ctx)
	if err != nil {
		return fmt.Errorf("failed to list brands: %w", err)
	}

	for _, brand := range brands {
		if _, err := a.RecalculateWindow(ctx, brand.ID, windowDays, providerFilter); err != nil {
			logrus.Errorf("Recalculation for brand %s failed: %v", brand.ID, err)
		}
	}

	return nil
}

// SendDigest emails/posts the brand's latest snapshots to operators.
func (a *Aggregator) SendDigest(ctx context.Context, brandID string, windowDays int) error {
	if a.notifier == nil {
		return nil
	}

	brand, err := a.store.GetBrand(ctx, brandID)
	if err != nil {
		return fmt.Errorf("failed to load brand: %w", err)
	}

	latest, err := a.store.LatestStats(ctx, brandID)
	if err != nil {
		return fmt.Errorf("failed to load latest stats: %w", err)
	}

	if len(latest) == 0 {
		logrus.Debugf("No stats to report for brand %s", brandID)
		return nil
	}

	report := &models.VisibilityReport{
		BrandID:     brand.ID,
		BrandName:   brand.Name,
		GeneratedAt: time.Now(),
		WindowDays:  windowDays,
		Stats:       latest,
	}

	return a.notifier.SendVisibilityReport(report)
}

// buildSnapshot computes the metric values for one entity from its in-window
// mentions.
func buildSnapshot(brandID string, entity models.Entity, mentions []models.Mention, promptCount int, windowStart, windowEnd time.Time, providerFilter, sessionID string, analyzedAt time.Time) models.CompetitiveStat {
	mentionedPrompts := make(map[string]bool)
	mentionCount := 0
	sentimentSum := 0.0
	positionSum := 0.0

	for _, m := range mentions {
		mentionedPrompts[m.PromptID] = true
		mentionCount += m.Count
		sentimentSum += m.Sentiment
		positionSum += float64(m.Position)
	}

	visibility := 0.0
	if promptCount > 0 {
		visibility = round2(float64(len(mentionedPrompts)) / float64(promptCount) * 100)
	}

	n := float64(len(mentions))

	return models.CompetitiveStat{
		ID:               uuid.New().String(),
		BrandID:          brandID,
		EntityID:         entity.ID,
		EntityName:       entity.Name,
		ProviderID:       providerFilter,
		WindowStart:      windowStart,
		WindowEnd:        windowEnd,
		PromptCount:      promptCount,
		MentionedPrompts: len(mentionedPrompts),
		MentionCount:     mentionCount,
		Visibility:       visibility,
		Sentiment:        round2(sentimentSum / n),
		Position:         round1(positionSum / n),
		SessionID:        sessionID,
		AnalyzedAt:       analyzedAt,
	}
}

// applyTrend fills the trend fields by comparing against the previous
// snapshot. With no previous snapshot every metric is "new" with zero delta.
// The position trend is inverted: a lower position is an improvement.
func applyTrend(current *models.CompetitiveStat, previous *models.CompetitiveStat) {
	if previous == nil {
		current.VisibilityTrend = models.TrendNew
		current.SentimentTrend = models.TrendNew
		current.PositionTrend = models.TrendNew
		return
	}

	current.VisibilityChange = round2(current.Visibility - previous.Visibility)
	current.VisibilityTrend = direction(current.Visibility, previous.Visibility)

	current.SentimentChange = round2(current.Sentiment - previous.Sentiment)
	current.SentimentTrend = direction(current.Sentiment, previous.Sentiment)

	current.PositionChange = round1(previous.Position - current.Position)
	current.PositionTrend = direction(previous.Position, current.Position)
}

func direction(current, previous float64) string {
	switch {
	case current > previous:
		return models.TrendUp
	case current < previous:
		return models.TrendDown
	default:
		return models.TrendStable
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
