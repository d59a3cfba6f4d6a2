package notifications

import "github.com/brandlens/visibility-bot/internal/models"

// Notifier defines the contract for operator notifications
type Notifier interface {
	// SendProviderFailures raises one batched notification covering every
	// provider that failed its health check. Fire-and-forget, at-least-once.
	SendProviderFailures(failures []models.ProviderFailure) error

	// SendVisibilityReport sends the competitive visibility digest for a
	// brand after a recalculation.
	SendVisibilityReport(report *models.VisibilityReport) error
}
