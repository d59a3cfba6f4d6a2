package extraction

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/brandlens/visibility-bot/internal/models"
	"github.com/google/uuid"
)

// Extractor finds brand and competitor mentions in raw AI response text.
// Extraction is deterministic: entities are evaluated brand first, then
// competitors by id, so repeated runs over identical input produce identical
// counts and positions.
type Extractor struct {
	contextRadius int
}

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>)\]]+`)

// NewExtractor creates an extractor. contextRadius is the number of bytes of
// surrounding text captured on each side of an entity's first match.
func NewExtractor(contextRadius int) *Extractor {
	if contextRadius <= 0 {
		contextRadius = 100
	}
	return &Extractor{contextRadius: contextRadius}
}

// entityMatch is the working state for one entity before ranking.
type entityMatch struct {
	entity      models.Entity
	offsets     []int
	firstOffset int
}

// Extract returns one Mention per tracked entity that appears in the text.
// Position is the ordinal rank of the entity's earliest occurrence among all
// entities that matched; entities with zero matches produce no row.
func (e *Extractor) Extract(promptID, text string, entities []models.Entity, sessionID, providerID string) []models.Mention {
	if strings.TrimSpace(text) == "" || len(entities) == 0 {
		return nil
	}

	lowerText := strings.ToLower(text)
	var matches []entityMatch

	for _, entity := range orderEntities(entities) {
		offsets := findOccurrences(lowerText, strings.ToLower(entity.Name))

		if domain := normalizeDomain(entity.Domain); domain != "" {
			offsets = append(offsets, findOccurrences(lowerText, domain)...)
		}

		// A name match and a domain match can start at the same offset
		// ("globex" inside "globex.io"); that is one occurrence, not two.
		offsets = dedupeOffsets(offsets)

		if len(offsets) == 0 {
			continue
		}

		sort.Ints(offsets)
		matches = append(matches, entityMatch{
			entity:      entity,
			offsets:     offsets,
			firstOffset: offsets[0],
		})
	}

	if len(matches) == 0 {
		return nil
	}

	// Rank by earliest occurrence; ties keep the stable entity order.
	ranked := make([]entityMatch, len(matches))
	copy(ranked, matches)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].firstOffset < ranked[j].firstOffset
	})

	positions := make(map[string]int, len(ranked))
	for i, m := range ranked {
		positions[m.entity.ID] = i + 1
	}

	now := time.Now()
	mentions := make([]models.Mention, 0, len(matches))

	for _, m := range matches {
		context := e.contextSnippet(text, m.firstOffset)
		mentions = append(mentions, models.Mention{
			ID:         uuid.New().String(),
			PromptID:   promptID,
			BrandID:    m.entity.BrandID,
			EntityID:   m.entity.ID,
			EntityName: m.entity.Name,
			SessionID:  sessionID,
			ProviderID: providerID,
			Count:      len(m.offsets),
			Position:   positions[m.entity.ID],
			Context:    context,
			Sentiment:  scoreSentiment(context),
			CreatedAt:  now,
		})
	}

	return mentions
}

// ExtractResources returns the distinct URLs cited in the response text, in
// order of first appearance.
func (e *Extractor) ExtractResources(text string) []string {
	raw := urlPattern.FindAllString(text, -1)
	if len(raw) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(raw))
	var resources []string
	for _, u := range raw {
		u = strings.TrimRight(u, ".,;")
		if !seen[u] {
			seen[u] = true
			resources = append(resources, u)
		}
	}
	return resources
}

// orderEntities returns the tracked entities in their defined evaluation
// order: the brand first, then competitors by id ascending. Unaccepted
// entities are dropped.
func orderEntities(entities []models.Entity) []models.Entity {
	var brand []models.Entity
	var competitors []models.Entity

	for _, entity := range entities {
		if !entity.Accepted && entity.Kind != models.EntityKindBrand {
			continue
		}
		if entity.Kind == models.EntityKindBrand {
			brand = append(brand, entity)
		} else {
			competitors = append(competitors, entity)
		}
	}

	sort.Slice(competitors, func(i, j int) bool {
		return competitors[i].ID < competitors[j].ID
	})

	return append(brand, competitors...)
}

// findOccurrences returns the byte offsets of every non-overlapping
// occurrence of term in text. Both arguments must already be lowercased.
func findOccurrences(text, term string) []int {
	if term == "" {
		return nil
	}

	var offsets []int
	start := 0
	for {
		idx := strings.Index(text[start:], term)
		if idx < 0 {
			break
		}
		offsets = append(offsets, start+idx)
		start += idx + len(term)
	}
	return offsets
}

// dedupeOffsets drops duplicate start offsets, preserving order.
func dedupeOffsets(offsets []int) []int {
	if len(offsets) < 2 {
		return offsets
	}

	seen := make(map[int]bool, len(offsets))
	var unique []int
	for _, off := range offsets {
		if !seen[off] {
			seen[off] = true
			unique = append(unique, off)
		}
	}
	return unique
}

// normalizeDomain strips the protocol and a leading www. so that
// "https://www.acme.com/" matches "acme.com" in response text.
func normalizeDomain(domain string) string {
	domain = strings.TrimSpace(strings.ToLower(domain))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimPrefix(domain, "www.")
	return strings.TrimSuffix(domain, "/")
}

// contextSnippet returns a bounded substring centered on the match offset
// with surrounding whitespace collapsed.
func (e *Extractor) contextSnippet(text string, offset int) string {
	start := offset - e.contextRadius
	if start < 0 {
		start = 0
	}
	end := offset + e.contextRadius
	if end > len(text) {
		end = len(text)
	}

	return strings.Join(strings.Fields(text[start:end]), " ")
}

// ResourcesJSON marshals the extracted resource list the way the prompt row
// stores it. An empty list marshals to an empty string, not "[]".
func ResourcesJSON(resources []string) string {
	if len(resources) == 0 {
		return ""
	}

	data, err := json.Marshal(resources)
	if err != nil {
		return ""
	}
	return string(data)
}
