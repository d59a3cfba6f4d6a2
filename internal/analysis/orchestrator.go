package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/brandlens/visibility-bot/internal/allocation"
	"github.com/brandlens/visibility-bot/internal/archive"
	"github.com/brandlens/visibility-bot/internal/extraction"
	"github.com/brandlens/visibility-bot/internal/gateway"
	"github.com/brandlens/visibility-bot/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store is the slice of persistence the orchestrator needs.
type Store interface {
	ListBrands(ctx context.Context) ([]models.Brand, error)
	ListEnabledProviders(ctx context.Context) ([]models.Provider, error)
	ListTrackedEntities(ctx context.Context, brandID string) ([]models.Entity, error)
	ListPromptsByStatus(ctx context.Context, brandID, status string) ([]models.Prompt, error)
	SavePromptResult(ctx context.Context, prompt *models.Prompt) error
	MarkPromptFailed(ctx context.Context, promptID, message string, failedAt time.Time) error
	CreateMentions(ctx context.Context, mentions []models.Mention) error
}

// Filter narrows which active prompts a batch run considers. The zero value
// selects every active prompt.
type Filter struct {
	PromptIDs  []string // explicit subset, e.g. a retry of failed prompts
	FailedOnly bool     // only prompts whose last analysis failed
}

// Orchestrator runs batch analyses: it apportions a brand's prompts across
// the enabled providers by weight, dispatches one independent unit of work
// per (prompt, provider) pair, and records success or failure per prompt.
// One failing unit never blocks the others.
type Orchestrator struct {
	store       Store
	gateway     gateway.Gateway
	allocator   *allocation.Allocator
	extractor   *extraction.Extractor
	archive     archive.Archive // nil disables session archiving
	workers     int
	unitTimeout time.Duration

	metrics *Metrics
	mu      sync.RWMutex
}

// Metrics holds the outcome of the most recent batch runs
type Metrics struct {
	LastRun         time.Time      `json:"last_run"`
	LastRunDuration string         `json:"last_run_duration"`
	LastSessionID   string         `json:"last_session_id"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	Skipped         int            `json:"skipped"`
	ProviderCounts  map[string]int `json:"provider_counts"`
}

// unit is one independent (prompt, provider) work item.
type unit struct {
	prompt   models.Prompt
	provider models.Provider
}

// outcome is the result of one unit, collected by the batch loop.
type outcome struct {
	promptID   string
	providerID string
	err        error
}

// NewOrchestrator creates a new analysis orchestrator
func NewOrchestrator(store Store, gw gateway.Gateway, allocator *allocation.Allocator, extractor *extraction.Extractor, arch archive.Archive, workers int, unitTimeout time.Duration) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		store:       store,
		gateway:     gw,
		allocator:   allocator,
		extractor:   extractor,
		archive:     arch,
		workers:     workers,
		unitTimeout: unitTimeout,
		metrics: &Metrics{
			ProviderCounts: make(map[string]int),
		},
	}
}

// RunBatch analyzes the eligible prompts of one brand. Individual unit
// failures are recorded on the affected prompt and reflected in the counts;
// only batch-level setup problems (no providers, store failures) return an
// error.
func (o *Orchestrator) RunBatch(ctx context.Context, brandID string, filter Filter, forceReanalyze bool, sessionID string) (*models.BatchResult, error) {
	start := time.Now()

	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	logrus.Infof("Starting batch analysis for brand %s (session %s, force=%v)", brandID, sessionID, forceReanalyze)

	prompts, err := o.store.ListPromptsByStatus(ctx, brandID, models.PromptStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	eligible, skipped := selectPrompts(prompts, filter, forceReanalyze)

	result := &models.BatchResult{
		BrandID:   brandID,
		SessionID: sessionID,
		Skipped:   skipped,
	}

	if len(eligible) == 0 {
		logrus.Infof("No eligible prompts for brand %s (%d skipped)", brandID, skipped)
		result.Duration = time.Since(start)
		return result, nil
	}

	providers, err := o.store.ListEnabledProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load providers: %w", err)
	}

	weighted := make([]allocation.WeightedProvider, 0, len(providers))
	providerByID := make(map[string]models.Provider, len(providers))
	for _, p := range providers {
		weighted = append(weighted, allocation.WeightedProvider{ID: p.ID, Weight: p.Weight})
		providerByID[p.ID] = p
	}

	// The shuffle is computed once per batch, before dispatch, so the
	// distribution stays stable and auditable.
	assignments, err := o.allocator.Allocate(len(eligible), weighted)
	if err != nil {
		return nil, fmt.Errorf("provider allocation failed: %w", err)
	}

	entities, err := o.store.ListTrackedEntities(ctx, brandID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}

	units := make([]unit, len(eligible))
	for i, prompt := range eligible {
		units[i] = unit{prompt: prompt, provider: providerByID[assignments[i]]}
	}

	outcomes := o.dispatch(ctx, units, entities, sessionID)

	providerCounts := make(map[string]int)
	for _, oc := range outcomes {
		providerCounts[oc.providerID]++
		if oc.err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}

	result.Duration = time.Since(start)
	o.updateMetrics(result, providerCounts, sessionID)
	o.archiveSession(result, outcomes)

	logrus.Infof("Batch for brand %s completed in %v: %d succeeded, %d failed, %d skipped",
		brandID, result.Duration, result.Succeeded, result.Failed, result.Skipped)

	return result, nil
}

// RunAll runs one batch per brand, each under its own session. A failing
// brand does not stop the others.
func (o *Orchestrator) RunAll(ctx context.Context, forceReanalyze bool) ([]models.BatchResult, error) {
	brands, err := o.store.ListBrands(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}

	var results []models.BatchResult
	for _, brand := range brands {
		result, err := o.RunBatch(ctx, brand.ID, Filter{}, forceReanalyze, "")
		if err != nil {
			logrus.Errorf("Batch for brand %s failed: %v", brand.ID, err)
			continue
		}
		results = append(results, *result)
	}

	return results, nil
}

// selectPrompts partitions active prompts into eligible and skipped. Prompts
// outside an explicit PromptIDs subset are not counted either way.
func selectPrompts(prompts []models.Prompt, filter Filter, forceReanalyze bool) ([]models.Prompt, int) {
	var idSet map[string]bool
	if len(filter.PromptIDs) > 0 {
		idSet = make(map[string]bool, len(filter.PromptIDs))
		for _, id := range filter.PromptIDs {
			idSet[id] = true
		}
	}

	var eligible []models.Prompt
	skipped := 0

	for _, prompt := range prompts {
		if idSet != nil && !idSet[prompt.ID] {
			continue
		}

		if filter.FailedOnly && prompt.FailedAt == nil {
			skipped++
			continue
		}

		if !forceReanalyze && prompt.CompletedAt != nil {
			skipped++
			continue
		}

		eligible = append(eligible, prompt)
	}

	return eligible, skipped
}

// dispatch runs the units through a bounded worker pool. Each prompt appears
// in exactly one unit, so no two units ever touch the same prompt.
func (o *Orchestrator) dispatch(ctx context.Context, units []unit, entities []models.Entity, sessionID string) []outcome {
	jobs := make(chan unit)
	results := make(chan outcome, len(units))

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				results <- o.runUnit(ctx, u, entities, sessionID)
			}
		}()
	}

	// Stop dispatching new units once the batch context is gone; in-flight
	// units run to completion or timeout.
	go func() {
		defer close(jobs)
		for _, u := range units {
			select {
			case jobs <- u:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var outcomes []outcome
	for oc := range results {
		outcomes = append(outcomes, oc)
	}
	return outcomes
}

// runUnit performs one independent analysis: gateway call, result persistence
// and mention extraction. Any error is recorded on this prompt alone.
func (o *Orchestrator) runUnit(ctx context.Context, u unit, entities []models.Entity, sessionID string) outcome {
	unitCtx, cancel := context.WithTimeout(ctx, o.unitTimeout)
	defer cancel()

	oc := outcome{promptID: u.prompt.ID, providerID: u.provider.ID}

	res, err := o.gateway.Analyze(unitCtx, u.provider, u.prompt.Text)
	if err != nil {
		oc.err = err
		logrus.Errorf("Analysis of prompt %s via %s failed: %v", u.prompt.ID, u.provider.ID, err)
		if markErr := o.store.MarkPromptFailed(ctx, u.prompt.ID, err.Error(), time.Now()); markErr != nil {
			logrus.Errorf("Failed to record failure on prompt %s: %v", u.prompt.ID, markErr)
		}
		return oc
	}

	mentions := o.extractor.Extract(u.prompt.ID, res.RawText, entities, sessionID, u.provider.ID)

	now := time.Now()
	prompt := u.prompt
	prompt.CompletedAt = &now
	prompt.FailedAt = nil
	prompt.ErrorMessage = ""
	prompt.ProviderID = u.provider.ID
	prompt.SessionID = sessionID
	prompt.RawResponse = res.RawText
	prompt.Resources = extraction.ResourcesJSON(o.extractor.ExtractResources(res.RawText))
	applyResultFields(&prompt, res, mentions, brandEntityID(entities))

	if err := o.store.SavePromptResult(ctx, &prompt); err != nil {
		oc.err = err
		logrus.Errorf("Failed to save result for prompt %s: %v", u.prompt.ID, err)
		return oc
	}

	// Extraction persistence failures are separable from analysis failures:
	// the prompt keeps its successful result either way.
	if len(mentions) > 0 {
		if err := o.store.CreateMentions(ctx, mentions); err != nil {
			logrus.Errorf("Failed to store mentions for prompt %s: %v", u.prompt.ID, err)
		}
	}

	return oc
}

// brandEntityID returns the id of the brand's own entity row, or "".
func brandEntityID(entities []models.Entity) string {
	for _, e := range entities {
		if e.Kind == models.EntityKindBrand {
			return e.ID
		}
	}
	return ""
}

// applyResultFields fills the prompt's result fields from structured provider
// stats when available, otherwise derives them from the brand's own mention
// in the raw text.
func applyResultFields(prompt *models.Prompt, res *gateway.Result, mentions []models.Mention, brandEntity string) {
	if res.Stats != nil {
		prompt.Visibility = res.Stats.Visibility
		prompt.Position = res.Stats.Position
		prompt.Sentiment = res.Stats.Sentiment
		prompt.Volume = res.Stats.Volume
		return
	}

	prompt.Visibility = 0
	prompt.Position = 0
	prompt.Sentiment = 0
	prompt.Volume = 0

	for _, m := range mentions {
		if m.EntityID == brandEntity {
			prompt.Visibility = 100
			prompt.Position = float64(m.Position)
			prompt.Sentiment = m.Sentiment
			prompt.Volume = float64(m.Count)
			return
		}
	}
}

func (o *Orchestrator) updateMetrics(result *models.BatchResult, providerCounts map[string]int, sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.metrics.LastRun = time.Now()
	o.metrics.LastRunDuration = result.Duration.String()
	o.metrics.LastSessionID = sessionID
	o.metrics.Succeeded = result.Succeeded
	o.metrics.Failed = result.Failed
	o.metrics.Skipped = result.Skipped
	o.metrics.ProviderCounts = providerCounts
}

// GetMetrics returns current metrics as JSON
func (o *Orchestrator) GetMetrics() string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	data, _ := json.MarshalIndent(o.metrics, "", "  ")
	return string(data)
}

// archiveSession stores a summary of the batch in the session archive.
// Best-effort: archive failures are logged, never surfaced.
func (o *Orchestrator) archiveSession(result *models.BatchResult, outcomes []outcome) {
	if o.archive == nil {
		return
	}

	type unitSummary struct {
		PromptID   string `json:"prompt_id"`
		ProviderID string `json:"provider_id"`
		Error      string `json:"error,omitempty"`
	}

	summary := struct {
		Result *models.BatchResult `json:"result"`
		Units  []unitSummary       `json:"units"`
	}{Result: result}

	for _, oc := range outcomes {
		us := unitSummary{PromptID: oc.promptID, ProviderID: oc.providerID}
		if oc.err != nil {
			us.Error = oc.err.Error()
		}
		summary.Units = append(summary.Units, us)
	}

	data, err := json.Marshal(summary)
	if err != nil {
		logrus.Errorf("Failed to marshal session summary: %v", err)
		return
	}

	name := fmt.Sprintf("sessions/%s.json", result.SessionID)
	if err := o.archive.Store(name, data); err != nil {
		logrus.Errorf("Failed to archive session %s: %v", result.SessionID, err)
	}
}
