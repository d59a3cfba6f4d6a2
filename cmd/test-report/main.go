package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/brandlens/visibility-bot/internal/allocation"
	"github.com/brandlens/visibility-bot/internal/analysis"
	"github.com/brandlens/visibility-bot/internal/extraction"
	"github.com/brandlens/visibility-bot/internal/gateway"
	"github.com/brandlens/visibility-bot/internal/models"
	"github.com/brandlens/visibility-bot/internal/stats"
	"github.com/brandlens/visibility-bot/internal/store"
	"github.com/sirupsen/logrus"
)

// FakeGateway answers prompts from a canned response table instead of calling
// real AI providers.
type FakeGateway struct {
	responses map[string]string
}

func (f *FakeGateway) Analyze(ctx context.Context, provider models.Provider, promptText string) (*gateway.Result, error) {
	text, ok := f.responses[promptText]
	if !ok {
		return nil, fmt.Errorf("no canned response for prompt %q", promptText)
	}
	return &gateway.Result{RawText: text}, nil
}

func (f *FakeGateway) Probe(ctx context.Context, provider models.Provider) error {
	return nil
}

// TerminalNotifier prints reports to the terminal instead of Teams/email.
type TerminalNotifier struct{}

func (t *TerminalNotifier) SendProviderFailures(failures []models.ProviderFailure) error {
	fmt.Println("\n🚨 PROVIDER FAILURES")
	for _, f := range failures {
		fmt.Printf("   • %s (%s): %s\n", f.Name, f.ProviderID, f.Message)
	}
	return nil
}

func (t *TerminalNotifier) SendVisibilityReport(report *models.VisibilityReport) error {
	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Printf("📊 VISIBILITY REPORT — %s\n", report.BrandName)
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("🕒 Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Printf("📅 Window: last %d days\n\n", report.WindowDays)

	for _, stat := range report.Stats {
		arrow := map[string]string{
			models.TrendUp:     "▲",
			models.TrendDown:   "▼",
			models.TrendStable: "→",
			models.TrendNew:    "★",
		}
		fmt.Printf("   %-12s visibility %6.2f%% %s   sentiment %6.2f %s   position %4.1f %s\n",
			stat.EntityName,
			stat.Visibility, arrow[stat.VisibilityTrend],
			stat.Sentiment, arrow[stat.SentimentTrend],
			stat.Position, arrow[stat.PositionTrend])
		fmt.Printf("   %-12s mentioned in %d/%d prompts, %d total mentions\n\n",
			"", stat.MentionedPrompts, stat.PromptCount, stat.MentionCount)
	}

	fmt.Println(strings.Repeat("=", 70))
	return nil
}

func main() {
	fmt.Println("🤖 BrandLens Visibility Bot - Test Report Generator")
	fmt.Println("===================================================")

	logrus.SetLevel(logrus.WarnLevel)

	db, err := store.NewSQLite(":memory:")
	if err != nil {
		fmt.Printf("❌ Failed to open in-memory database: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	providers := []models.Provider{
		{ID: "openai", Name: "OpenAI", Enabled: true, Weight: 5, Model: "gpt-4o"},
		{ID: "anthropic", Name: "Anthropic", Enabled: true, Weight: 3, Model: "claude-sonnet"},
		{ID: "gemini", Name: "Gemini", Enabled: true, Weight: 2, Model: "gemini-pro"},
	}

	brand := models.Brand{ID: "acme", Name: "Acme", Domain: "acme.com"}

	entities := []models.Entity{
		{ID: "ent-acme", BrandID: "acme", Kind: models.EntityKindBrand, Name: "Acme", Domain: "acme.com", Accepted: true},
		{ID: "ent-globex", BrandID: "acme", Kind: models.EntityKindCompetitor, Name: "Globex", Domain: "globex.io", Accepted: true},
		{ID: "ent-initech", BrandID: "acme", Kind: models.EntityKindCompetitor, Name: "Initech", Domain: "initech.dev", Accepted: true},
	}

	sampleResponses := []string{
		"For project management, Acme is the most popular choice. Globex is a solid alternative, and some teams prefer Initech for small projects.",
		"The leading tools in this space are Globex and Acme. Acme (acme.com) has excellent reporting features.",
		"Initech offers the best free tier. Acme and Globex are better for larger organizations.",
		"Most reviewers recommend Acme for its reliability. See acme.com/pricing for details.",
		"There is no single best answer here; it depends on your team size and budget.",
		"Globex has improved a lot this year and many teams are switching to it from legacy tools.",
		"Acme, Globex and Initech all support integrations, but Acme has the widest marketplace.",
		"A great workflow combines Initech for planning with Acme for execution tracking.",
		"Popular options include Globex (globex.io) and Initech. Both have generous trial periods.",
		"Acme remains the market leader according to most industry surveys.",
	}

	prompts := make([]models.Prompt, len(sampleResponses))
	responses := make(map[string]string, len(sampleResponses))
	for i, text := range sampleResponses {
		promptText := fmt.Sprintf("What are the best project management tools? (variant %d)", i+1)
		prompts[i] = models.Prompt{
			ID:      fmt.Sprintf("prompt-%02d", i+1),
			BrandID: "acme",
			Text:    promptText,
			Status:  models.PromptStatusActive,
		}
		responses[promptText] = text
	}

	if err := db.Seed(ctx, providers, []models.Brand{brand}, entities, prompts); err != nil {
		fmt.Printf("❌ Failed to seed database: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n📊 Analyzing %d prompts across %d providers...\n", len(prompts), len(providers))

	orchestrator := analysis.NewOrchestrator(
		db,
		&FakeGateway{responses: responses},
		allocation.NewAllocator(rand.New(rand.NewSource(42))),
		extraction.NewExtractor(100),
		nil,
		4,
		30*time.Second,
	)

	result, err := orchestrator.RunBatch(ctx, "acme", analysis.Filter{}, false, "")
	if err != nil {
		fmt.Printf("❌ Batch analysis failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Batch complete in %v: %d succeeded, %d failed, %d skipped\n",
		result.Duration.Round(time.Millisecond), result.Succeeded, result.Failed, result.Skipped)

	notifier := &TerminalNotifier{}
	aggregator := stats.NewAggregator(db, notifier)

	if _, err := aggregator.RecalculateWindow(ctx, "acme", 30, ""); err != nil {
		fmt.Printf("❌ Recalculation failed: %v\n", err)
		os.Exit(1)
	}

	if err := aggregator.SendDigest(ctx, "acme", 30); err != nil {
		fmt.Printf("❌ Error sending report: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n✅ Test report generation completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Run 'go test ./...' for the full test suite")
	fmt.Println("   • Configure real provider endpoints and run the bot with 'go run cmd/bot/main.go'")
}
