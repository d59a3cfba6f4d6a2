package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brandlens/visibility-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// Client is the HTTP implementation of the Gateway, posting prompts to each
// provider's configured endpoint.
type Client struct {
	client *resty.Client
}

// Ensure Client implements Gateway
var _ Gateway = (*Client)(nil)

type analyzeRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// analyzeResponse covers both response shapes providers use: structured
// stats fields, or a free-text answer. Pointer fields distinguish a zero
// value from an absent one.
type analyzeResponse struct {
	Visibility *float64 `json:"visibility"`
	Position   *float64 `json:"position"`
	Sentiment  *float64 `json:"sentiment"`
	Volume     *float64 `json:"volume"`
	Response   string   `json:"response"`
	Error      string   `json:"error"`
}

// NewClient creates a new gateway client
func NewClient() *Client {
	return &Client{
		client: resty.New().SetTimeout(120 * time.Second),
	}
}

func (c *Client) Analyze(ctx context.Context, provider models.Provider, promptText string) (*Result, error) {
	if provider.Endpoint == "" {
		return nil, fmt.Errorf("provider %s has no endpoint configured", provider.ID)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+provider.APIKey).
		SetBody(analyzeRequest{Model: provider.Model, Prompt: promptText}).
		Post(provider.Endpoint)

	if err != nil {
		return nil, fmt.Errorf("provider %s request failed: %w", provider.ID, err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("provider %s returned status %d", provider.ID, resp.StatusCode())
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("provider %s returned malformed response: %w", provider.ID, err)
	}

	if parsed.Error != "" {
		return nil, fmt.Errorf("provider %s error: %s", provider.ID, parsed.Error)
	}

	result := &Result{RawText: parsed.Response}

	// Structured stats only count when the provider sent all four fields;
	// a partial set falls back to raw text.
	if parsed.Visibility != nil && parsed.Position != nil && parsed.Sentiment != nil && parsed.Volume != nil {
		result.Stats = &Stats{
			Visibility: *parsed.Visibility,
			Position:   *parsed.Position,
			Sentiment:  *parsed.Sentiment,
			Volume:     *parsed.Volume,
		}
	}

	if result.Stats == nil && result.RawText == "" {
		return nil, fmt.Errorf("provider %s returned neither stats nor text", provider.ID)
	}

	logrus.Debugf("Provider %s answered (structured=%v, %d chars)", provider.ID, result.Stats != nil, len(result.RawText))
	return result, nil
}

func (c *Client) Probe(ctx context.Context, provider models.Provider) error {
	_, err := c.Analyze(ctx, provider, "ping")
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	return nil
}
