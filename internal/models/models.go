package models

import "time"

// Prompt lifecycle statuses.
const (
	PromptStatusSuggested = "suggested"
	PromptStatusActive    = "active"
	PromptStatusInactive  = "inactive"
)

// Entity kinds.
const (
	EntityKindBrand      = "brand"
	EntityKindCompetitor = "competitor"
)

// Trend directions for competitive stats.
const (
	TrendNew    = "new"
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

// Provider is a third-party AI system that answers prompts.
// Providers are created by operators and disabled automatically by the
// health monitor; they are never deleted.
type Provider struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	Name           string    `json:"name"`
	Enabled        bool      `json:"enabled" gorm:"index"`
	Weight         int       `json:"weight"` // relative share of prompts, positive
	PromptQuota    int       `json:"prompt_quota"`
	Endpoint       string    `json:"endpoint"`
	APIKey         string    `json:"-"`
	Model          string    `json:"model"`
	DisabledReason string    `json:"disabled_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Brand is the account whose visibility is being tracked.
type Brand struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
}

// Entity is something we look for in AI responses: the brand itself or
// one of its accepted competitors. Name and Domain are both matched.
type Entity struct {
	ID       string `json:"id" gorm:"primaryKey"`
	BrandID  string `json:"brand_id" gorm:"index"`
	Kind     string `json:"kind"` // "brand" or "competitor"
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Accepted bool   `json:"accepted"`
}

// Prompt is one curated question asked of the AI providers on behalf of
// a brand. Analysis state is derived from CompletedAt/FailedAt/ErrorMessage,
// which are mutually exclusive at any instant.
type Prompt struct {
	ID      string `json:"id" gorm:"primaryKey"`
	BrandID string `json:"brand_id" gorm:"index"`
	Text    string `json:"text"`
	Status  string `json:"status" gorm:"index"` // suggested, active, inactive

	// Analysis outcome. A successful run sets CompletedAt and clears the
	// failure fields; a failed run sets FailedAt and ErrorMessage but leaves
	// previous result fields untouched.
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`

	// Result fields from the last successful analysis.
	Sentiment   float64   `json:"sentiment"`
	Position    float64   `json:"position"`
	Visibility  float64   `json:"visibility"`
	Volume      float64   `json:"volume"`
	RawResponse string    `json:"raw_response,omitempty"`
	ProviderID  string    `json:"provider_id" gorm:"index"`
	Resources   string    `json:"resources,omitempty"` // JSON array of cited URLs
	SessionID   string    `json:"session_id" gorm:"index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Mention is one recorded occurrence of an entity in one AI response.
// Rows are immutable; re-analysis writes new rows under a new session id,
// preserving history.
type Mention struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	PromptID   string    `json:"prompt_id" gorm:"index"`
	BrandID    string    `json:"brand_id" gorm:"index"`
	EntityID   string    `json:"entity_id" gorm:"index"`
	EntityName string    `json:"entity_name"`
	SessionID  string    `json:"session_id" gorm:"index"`
	ProviderID string    `json:"provider_id" gorm:"index"`
	Count      int       `json:"count"`
	Position   int       `json:"position"` // 1 = first entity mentioned in the response
	Context    string    `json:"context"`
	Sentiment  float64   `json:"sentiment"` // 0-100
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}

// CompetitiveStat is an append-only snapshot of one entity's visibility,
// sentiment and position for a brand over a time window, optionally scoped
// to a single provider. The latest row per entity is the current state; the
// immediately preceding one drives the trend fields.
type CompetitiveStat struct {
	ID         string `json:"id" gorm:"primaryKey"`
	BrandID    string `json:"brand_id" gorm:"index"`
	EntityID   string `json:"entity_id" gorm:"index"`
	EntityName string `json:"entity_name"`
	ProviderID string `json:"provider_id,omitempty" gorm:"index"`

	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	PromptCount      int     `json:"prompt_count"`
	MentionedPrompts int     `json:"mentioned_prompts"`
	MentionCount     int     `json:"mention_count"`
	Visibility       float64 `json:"visibility"` // 0-100, percentage of prompts mentioning the entity
	Sentiment        float64 `json:"sentiment"`  // 0-100
	Position         float64 `json:"position"`   // mean first-mention rank, lower is better

	VisibilityTrend  string  `json:"visibility_trend"` // new, up, down, stable
	VisibilityChange float64 `json:"visibility_change"`
	SentimentTrend   string  `json:"sentiment_trend"`
	SentimentChange  float64 `json:"sentiment_change"`
	PositionTrend    string  `json:"position_trend"` // up = improved (lower position)
	PositionChange   float64 `json:"position_change"`

	SessionID  string    `json:"session_id" gorm:"index"`
	AnalyzedAt time.Time `json:"analyzed_at" gorm:"index"`
}

// BatchResult summarizes one orchestration run. Partial failure is a normal
// outcome; individual unit failures never escalate to a batch error.
type BatchResult struct {
	BrandID   string        `json:"brand_id"`
	SessionID string        `json:"session_id"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// ProviderFailure describes one provider that failed its health probe.
type ProviderFailure struct {
	ProviderID string    `json:"provider_id"`
	Name       string    `json:"name"`
	Message    string    `json:"message"`
	CheckedAt  time.Time `json:"checked_at"`
}

// VisibilityReport is a digest of the latest competitive stats for a brand,
// sent to operators after a recalculation.
type VisibilityReport struct {
	BrandID     string            `json:"brand_id"`
	BrandName   string            `json:"brand_name"`
	GeneratedAt time.Time         `json:"generated_at"`
	WindowDays  int               `json:"window_days"`
	Stats       []CompetitiveStat `json:"stats"`
}
