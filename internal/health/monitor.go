package health

import (
	"context"
	"fmt"
	"time"

	"github.com/brandlens/visibility-bot/internal/gateway"
	"github.com/brandlens/visibility-bot/internal/models"
	"github.com/brandlens/visibility-bot/internal/notifications"
	"github.com/sirupsen/logrus"
)

// Registry is the narrow slice of the provider store the monitor needs.
// Disabling is the only mutation it performs.
type Registry interface {
	ListEnabledProviders(ctx context.Context) ([]models.Provider, error)
	DisableProvider(ctx context.Context, providerID, reason string) error
}

// CheckSummary is the outcome of one health check run.
type CheckSummary struct {
	Healthy int                      `json:"healthy"`
	Failed  []models.ProviderFailure `json:"failed"`
}

// Monitor probes the enabled AI providers and disables the ones that fail.
// Fail-fast: there is no retry budget inside a check; a disabled provider
// stays disabled until an operator re-enables it or a later scheduled run
// is preceded by manual recovery.
type Monitor struct {
	registry     Registry
	gateway      gateway.Gateway
	notifier     notifications.Notifier
	probeTimeout time.Duration
}

// NewMonitor creates a new provider health monitor
func NewMonitor(registry Registry, gw gateway.Gateway, notifier notifications.Notifier, probeTimeout time.Duration) *Monitor {
	return &Monitor{
		registry:     registry,
		gateway:      gw,
		notifier:     notifier,
		probeTimeout: probeTimeout,
	}
}

// CheckAll probes every enabled provider. Failing providers are disabled
// immediately; after all checks one batched notification covers every
// failure, so a bad day produces one alert instead of a storm.
func (m *Monitor) CheckAll(ctx context.Context) (*CheckSummary, error) {
	providers, err := m.registry.ListEnabledProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	logrus.Infof("Health-checking %d enabled providers", len(providers))

	summary := &CheckSummary{}

	for _, provider := range providers {
		ok, message := m.check(ctx, provider)
		if ok {
			summary.Healthy++
			logrus.Debugf("Provider %s healthy", provider.ID)
			continue
		}

		logrus.Errorf("Provider %s failed health check: %s", provider.ID, message)

		if err := m.registry.DisableProvider(ctx, provider.ID, message); err != nil {
			logrus.Errorf("Failed to disable provider %s: %v", provider.ID, err)
		}

		summary.Failed = append(summary.Failed, models.ProviderFailure{
			ProviderID: provider.ID,
			Name:       provider.Name,
			Message:    message,
			CheckedAt:  time.Now(),
		})
	}

	if len(summary.Failed) > 0 && m.notifier != nil {
		if err := m.notifier.SendProviderFailures(summary.Failed); err != nil {
			logrus.Errorf("Failed to send provider failure notification: %v", err)
		}
	}

	logrus.Infof("Health check complete: %d healthy, %d disabled", summary.Healthy, len(summary.Failed))
	return summary, nil
}

// CheckOne probes a single provider by id without disabling it. Used by the
// trigger surface to verify a provider before re-enabling it.
func (m *Monitor) CheckOne(ctx context.Context, providerID string) (bool, string) {
	providers, err := m.registry.ListEnabledProviders(ctx)
	if err != nil {
		return false, fmt.Sprintf("failed to list providers: %v", err)
	}

	for _, provider := range providers {
		if provider.ID == providerID {
			return m.check(ctx, provider)
		}
	}

	return false, fmt.Sprintf("provider %s not found or not enabled", providerID)
}

func (m *Monitor) check(ctx context.Context, provider models.Provider) (bool, string) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	if err := m.gateway.Probe(probeCtx, provider); err != nil {
		return false, err.Error()
	}
	return true, ""
}
