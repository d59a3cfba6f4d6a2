package extraction

import (
	"strings"
	"testing"

	"github.com/brandlens/visibility-bot/internal/models"
	"github.com/stretchr/testify/assert"
)

func trackedEntities() []models.Entity {
	return []models.Entity{
		{ID: "ent-acme", BrandID: "brand-1", Kind: models.EntityKindBrand, Name: "Acme", Domain: "https://www.acme.com", Accepted: true},
		{ID: "ent-globex", BrandID: "brand-1", Kind: models.EntityKindCompetitor, Name: "Globex", Domain: "globex.io", Accepted: true},
		{ID: "ent-initech", BrandID: "brand-1", Kind: models.EntityKindCompetitor, Name: "Initech", Domain: "initech.dev", Accepted: true},
	}
}

func mentionByEntity(mentions []models.Mention, entityID string) *models.Mention {
	for i := range mentions {
		if mentions[i].EntityID == entityID {
			return &mentions[i]
		}
	}
	return nil
}

func TestExtractor_CountsAndPositions(t *testing.T) {
	extractor := NewExtractor(100)

	// Acme appears at offsets 10 and 50, Globex at offset 30.
	text := "Try using Acme first, then maybe Globex, although Acme is better overall."

	mentions := extractor.Extract("prompt-1", text, trackedEntities(), "session-1", "openai")
	assert.Len(t, mentions, 2)

	acme := mentionByEntity(mentions, "ent-acme")
	assert.NotNil(t, acme)
	assert.Equal(t, 2, acme.Count)
	assert.Equal(t, 1, acme.Position)

	globex := mentionByEntity(mentions, "ent-globex")
	assert.NotNil(t, globex)
	assert.Equal(t, 1, globex.Count)
	assert.Equal(t, 2, globex.Position)

	// Initech never matched, so no row is written for it.
	assert.Nil(t, mentionByEntity(mentions, "ent-initech"))
}

func TestExtractor_CaseInsensitiveAndDomainMatch(t *testing.T) {
	extractor := NewExtractor(100)

	tests := []struct {
		name     string
		text     string
		entityID string
		count    int
	}{
		{
			name:     "Uppercase name",
			text:     "ACME is a popular choice.",
			entityID: "ent-acme",
			count:    1,
		},
		{
			name:     "Domain without protocol",
			text:     "See acme.com for details.",
			entityID: "ent-acme",
			count:    1,
		},
		{
			name:     "Domain with www",
			text:     "Their site is www.globex.io apparently.",
			entityID: "ent-globex",
			count:    1,
		},
		{
			name:     "Name and domain both counted",
			text:     "Globex (globex.io) ships fast.",
			entityID: "ent-globex",
			count:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mentions := extractor.Extract("prompt-1", tt.text, trackedEntities(), "session-1", "openai")
			m := mentionByEntity(mentions, tt.entityID)
			assert.NotNil(t, m)
			assert.Equal(t, tt.count, m.Count)
		})
	}
}

func TestExtractor_Deterministic(t *testing.T) {
	extractor := NewExtractor(100)
	text := "Globex and Acme and Initech all compete; Acme leads, initech.dev trails."

	first := extractor.Extract("prompt-1", text, trackedEntities(), "session-1", "openai")

	for i := 0; i < 10; i++ {
		again := extractor.Extract("prompt-1", text, trackedEntities(), "session-1", "openai")
		assert.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].EntityID, again[j].EntityID)
			assert.Equal(t, first[j].Count, again[j].Count)
			assert.Equal(t, first[j].Position, again[j].Position)
			assert.Equal(t, first[j].Context, again[j].Context)
		}
	}
}

func TestExtractor_UnacceptedCompetitorSkipped(t *testing.T) {
	extractor := NewExtractor(100)

	entities := []models.Entity{
		{ID: "ent-acme", BrandID: "brand-1", Kind: models.EntityKindBrand, Name: "Acme", Accepted: true},
		{ID: "ent-rejected", BrandID: "brand-1", Kind: models.EntityKindCompetitor, Name: "Hooli", Accepted: false},
	}

	mentions := extractor.Extract("prompt-1", "Acme beats Hooli easily.", entities, "session-1", "openai")
	assert.Len(t, mentions, 1)
	assert.Equal(t, "ent-acme", mentions[0].EntityID)
}

func TestExtractor_ContextSnippet(t *testing.T) {
	extractor := NewExtractor(25)

	text := "padding padding padding   Acme\n\nis   the answer padding padding padding"
	mentions := extractor.Extract("prompt-1", text, trackedEntities(), "session-1", "openai")

	acme := mentionByEntity(mentions, "ent-acme")
	assert.NotNil(t, acme)
	assert.Contains(t, acme.Context, "Acme is the answer")
	assert.NotContains(t, acme.Context, "\n")
	assert.LessOrEqual(t, len(acme.Context), 51)
}

func TestExtractor_EmptyInput(t *testing.T) {
	extractor := NewExtractor(100)

	assert.Nil(t, extractor.Extract("prompt-1", "", trackedEntities(), "session-1", "openai"))
	assert.Nil(t, extractor.Extract("prompt-1", "   \n ", trackedEntities(), "session-1", "openai"))
	assert.Nil(t, extractor.Extract("prompt-1", "some text", nil, "session-1", "openai"))
	assert.Nil(t, extractor.Extract("prompt-1", "nothing relevant here", trackedEntities(), "session-1", "openai"))
}

func TestExtractor_ExtractResources(t *testing.T) {
	extractor := NewExtractor(100)

	text := "Compare https://acme.com/pricing and https://globex.io/docs. " +
		"More at https://acme.com/pricing."

	resources := extractor.ExtractResources(text)
	assert.Equal(t, []string{"https://acme.com/pricing", "https://globex.io/docs"}, resources)

	assert.Nil(t, extractor.ExtractResources("no links here"))
}

func TestResourcesJSON(t *testing.T) {
	assert.Equal(t, "", ResourcesJSON(nil))
	assert.Equal(t, `["https://a.com"]`, ResourcesJSON([]string{"https://a.com"}))
}

func TestScoreSentiment(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, score float64)
	}{
		{
			name:    "Positive content",
			content: "Acme is a great, reliable and recommended option",
			check: func(t *testing.T, score float64) {
				assert.Greater(t, score, 50.0)
			},
		},
		{
			name:    "Negative content",
			content: "Globex is unreliable and expensive, avoid it",
			check: func(t *testing.T, score float64) {
				assert.Less(t, score, 50.0)
			},
		},
		{
			name:    "Neutral content",
			content: "Acme is a company based in Springfield",
			check: func(t *testing.T, score float64) {
				assert.Equal(t, 50.0, score)
			},
		},
		{
			name:    "Clamped at bounds",
			content: strings.Join(positiveWords, " "),
			check: func(t *testing.T, score float64) {
				assert.Equal(t, 100.0, score)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, scoreSentiment(tt.content))
		})
	}
}
