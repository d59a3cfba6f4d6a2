package store

import (
	"context"
	"testing"
	"time"

	"github.com/brandlens/visibility-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	return s
}

func seedBrand(t *testing.T, s *GormStore) {
	t.Helper()
	err := s.Seed(context.Background(),
		[]models.Provider{
			{ID: "anthropic", Name: "Anthropic", Enabled: true, Weight: 3},
			{ID: "openai", Name: "OpenAI", Enabled: true, Weight: 5},
			{ID: "legacy", Name: "Legacy", Enabled: false, Weight: 1},
		},
		[]models.Brand{{ID: "acme", Name: "Acme", Domain: "acme.com"}},
		[]models.Entity{
			{ID: "ent-acme", BrandID: "acme", Kind: models.EntityKindBrand, Name: "Acme", Domain: "acme.com", Accepted: true},
			{ID: "ent-globex", BrandID: "acme", Kind: models.EntityKindCompetitor, Name: "Globex", Domain: "globex.io", Accepted: true},
			{ID: "ent-spam", BrandID: "acme", Kind: models.EntityKindCompetitor, Name: "Spam Corp", Accepted: false},
		},
		[]models.Prompt{
			{ID: "p1", BrandID: "acme", Text: "best tools?", Status: models.PromptStatusActive},
			{ID: "p2", BrandID: "acme", Text: "top vendors?", Status: models.PromptStatusActive},
			{ID: "p3", BrandID: "acme", Text: "draft idea", Status: models.PromptStatusSuggested},
		},
	)
	require.NoError(t, err)
}

func TestGormStore_SeedIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	seedBrand(t, s)
	seedBrand(t, s)

	brands, err := s.ListBrands(context.Background())
	assert.NoError(t, err)
	assert.Len(t, brands, 1)
}

func TestGormStore_ListEnabledProviders(t *testing.T) {
	s := newTestStore(t)
	seedBrand(t, s)
	ctx := context.Background()

	providers, err := s.ListEnabledProviders(ctx)
	assert.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, "anthropic", providers[0].ID)
	assert.Equal(t, "openai", providers[1].ID)

	err = s.DisableProvider(ctx, "openai", "probe failed: status 503")
	assert.NoError(t, err)

	providers, err = s.ListEnabledProviders(ctx)
	assert.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "anthropic", providers[0].ID)

	all, err := s.ListProviders(ctx)
	assert.NoError(t, err)
	for _, p := range all {
		if p.ID == "openai" {
			assert.False(t, p.Enabled)
			assert.Equal(t, "probe failed: status 503", p.DisabledReason)
		}
	}

	err = s.DisableProvider(ctx, "missing", "whatever")
	assert.Error(t, err)
}

func TestGormStore_ListTrackedEntities_SkipsUnacceptedCompetitors(t *testing.T) {
	s := newTestStore(t)
	seedBrand(t, s)

	entities, err := s.ListTrackedEntities(context.Background(), "acme")
	assert.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "ent-acme", entities[0].ID)
	assert.Equal(t, "ent-globex", entities[1].ID)
}

func TestGormStore_PromptStateTransitions(t *testing.T) {
	s := newTestStore(t)
	seedBrand(t, s)
	ctx := context.Background()

	prompts, err := s.ListPromptsByStatus(ctx, "acme", models.PromptStatusActive)
	assert.NoError(t, err)
	require.Len(t, prompts, 2)

	now := time.Now()
	prompt := prompts[0]
	prompt.CompletedAt = &now
	prompt.Visibility = 100
	prompt.Position = 1
	prompt.Sentiment = 72
	prompt.Volume = 2
	prompt.ProviderID = "openai"
	prompt.SessionID = "session-1"
	prompt.RawResponse = "Acme is great"

	require.NoError(t, s.SavePromptResult(ctx, &prompt))

	reloaded := loadPrompt(t, s, prompt.ID)
	assert.NotNil(t, reloaded.CompletedAt)
	assert.Nil(t, reloaded.FailedAt)
	assert.Empty(t, reloaded.ErrorMessage)
	assert.Equal(t, 100.0, reloaded.Visibility)

	// A later failed re-analysis flips the state but keeps the old result
	// fields readable.
	require.NoError(t, s.MarkPromptFailed(ctx, prompt.ID, "provider timeout", time.Now()))

	reloaded = loadPrompt(t, s, prompt.ID)
	assert.Nil(t, reloaded.CompletedAt)
	assert.NotNil(t, reloaded.FailedAt)
	assert.Equal(t, "provider timeout", reloaded.ErrorMessage)
	assert.Equal(t, 100.0, reloaded.Visibility)
	assert.Equal(t, "openai", reloaded.ProviderID)

	// A successful retry clears the failure again.
	later := time.Now()
	prompt.CompletedAt = &later
	require.NoError(t, s.SavePromptResult(ctx, &prompt))

	reloaded = loadPrompt(t, s, prompt.ID)
	assert.NotNil(t, reloaded.CompletedAt)
	assert.Nil(t, reloaded.FailedAt)
	assert.Empty(t, reloaded.ErrorMessage)
}

func loadPrompt(t *testing.T, s *GormStore, id string) models.Prompt {
	t.Helper()
	prompts, err := s.ListPromptsByStatus(context.Background(), "acme", models.PromptStatusActive)
	require.NoError(t, err)
	for _, p := range prompts {
		if p.ID == id {
			return p
		}
	}
	t.Fatalf("prompt %s not found", id)
	return models.Prompt{}
}

func TestGormStore_CountAnalyzedPrompts_ProviderScope(t *testing.T) {
	s := newTestStore(t)
	seedBrand(t, s)
	ctx := context.Background()

	now := time.Now()
	for i, id := range []string{"p1", "p2"} {
		providerID := "openai"
		if i == 1 {
			providerID = "anthropic"
		}
		prompt := models.Prompt{ID: id, CompletedAt: &now, ProviderID: providerID}
		require.NoError(t, s.SavePromptResult(ctx, &prompt))
	}

	windowStart := now.Add(-time.Hour)
	windowEnd := now.Add(time.Hour)

	count, err := s.CountAnalyzedPrompts(ctx, "acme", windowStart, windowEnd, "")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.CountAnalyzedPrompts(ctx, "acme", windowStart, windowEnd, "openai")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGormStore_MentionsWindow(t *testing.T) {
	s := newTestStore(t)
	seedBrand(t, s)
	ctx := context.Background()

	now := time.Now()
	mentions := []models.Mention{
		{ID: "m1", PromptID: "p1", BrandID: "acme", EntityID: "ent-acme", Count: 2, Position: 1, Sentiment: 70, CreatedAt: now},
		{ID: "m2", PromptID: "p2", BrandID: "acme", EntityID: "ent-acme", Count: 1, Position: 2, Sentiment: 50, CreatedAt: now},
		{ID: "m3", PromptID: "p1", BrandID: "acme", EntityID: "ent-globex", Count: 1, Position: 2, Sentiment: 50, CreatedAt: now.AddDate(0, 0, -60)},
	}
	require.NoError(t, s.CreateMentions(ctx, mentions))

	windowStart := now.AddDate(0, 0, -30)
	windowEnd := now.Add(time.Hour)

	got, err := s.ListMentions(ctx, "acme", "ent-acme", windowStart, windowEnd, "")
	assert.NoError(t, err)
	assert.Len(t, got, 2)

	// The old Globex mention falls outside the window.
	got, err = s.ListMentions(ctx, "acme", "ent-globex", windowStart, windowEnd, "")
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestGormStore_StatSnapshots(t *testing.T) {
	s := newTestStore(t)
	seedBrand(t, s)
	ctx := context.Background()

	now := time.Now()
	older := now.Add(-24 * time.Hour)

	require.NoError(t, s.CreateStats(ctx, []models.CompetitiveStat{
		{ID: "s1", BrandID: "acme", EntityID: "ent-acme", EntityName: "Acme", Visibility: 30, AnalyzedAt: older},
		{ID: "s2", BrandID: "acme", EntityID: "ent-acme", EntityName: "Acme", Visibility: 40, AnalyzedAt: now},
		{ID: "s3", BrandID: "acme", EntityID: "ent-globex", EntityName: "Globex", Visibility: 20, AnalyzedAt: now},
		{ID: "s4", BrandID: "acme", EntityID: "ent-acme", EntityName: "Acme", ProviderID: "openai", Visibility: 55, AnalyzedAt: now},
	}))

	// The previous snapshot is the newest one strictly before the reference
	// time, within the same provider scope.
	previous, err := s.LatestStatBefore(ctx, "acme", "ent-acme", "", now)
	assert.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, "s1", previous.ID)

	previous, err = s.LatestStatBefore(ctx, "acme", "ent-globex", "", now)
	assert.NoError(t, err)
	assert.Nil(t, previous)

	latest, err := s.LatestStats(ctx, "acme")
	assert.NoError(t, err)
	require.Len(t, latest, 2)

	byEntity := make(map[string]models.CompetitiveStat)
	for _, stat := range latest {
		byEntity[stat.EntityID] = stat
	}
	// Provider-scoped snapshots never leak into the unscoped digest.
	assert.Equal(t, 40.0, byEntity["ent-acme"].Visibility)
	assert.Equal(t, 20.0, byEntity["ent-globex"].Visibility)
}
