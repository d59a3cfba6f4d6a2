package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/brandlens/visibility-bot/internal/config"
	"github.com/brandlens/visibility-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Service sends operator notifications via Teams webhook and/or e-mail,
// whichever is configured.
type Service struct {
	config *config.Config
	client *resty.Client
}

// Ensure Service implements Notifier
var _ Notifier = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type     string         `json:"@type"`
	Context  string         `json:"@context"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Sections []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle string      `json:"activityTitle,omitempty"`
	ActivityText  string      `json:"activityText,omitempty"`
	Facts         []TeamsFact `json:"facts,omitempty"`
	Markdown      bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// SendProviderFailures sends a single batched alert listing every failed
// provider and its error message. One notification per check run, never one
// per provider.
func (s *Service) SendProviderFailures(failures []models.ProviderFailure) error {
	if len(failures) == 0 {
		return nil
	}

	var errors []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.postToTeams(s.buildFailureTeamsMessage(failures)); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Info("Successfully sent provider failure alert to Teams")
		}
	}

	if s.config.NotificationEmail != "" {
		subject := fmt.Sprintf("AI provider health alert: %d provider(s) disabled", len(failures))
		if err := s.sendEmail(subject, s.buildFailureEmailText(failures), ""); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Info("Successfully sent provider failure alert via email")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// SendVisibilityReport sends the competitive visibility digest for a brand.
func (s *Service) SendVisibilityReport(report *models.VisibilityReport) error {
	var errors []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.postToTeams(s.buildReportTeamsMessage(report)); err != nil {
			logrus.Errorf("Failed to send Teams report: %v", err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		}
	}

	if s.config.NotificationEmail != "" {
		subject := fmt.Sprintf("Visibility report - %s (%d day window)", report.BrandName, report.WindowDays)

		htmlBody, err := s.buildReportEmailHTML(report)
		if err != nil {
			return fmt.Errorf("failed to build report email: %w", err)
		}

		if err := s.sendEmail(subject, s.buildReportEmailText(report), htmlBody); err != nil {
			logrus.Errorf("Failed to send email report: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) postToTeams(message *TeamsMessage) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) buildFailureTeamsMessage(failures []models.ProviderFailure) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   "AI Provider Health Alert",
		Text:    fmt.Sprintf("%d provider(s) failed their health check and were disabled", len(failures)),
	}

	var facts []TeamsFact
	for _, failure := range failures {
		facts = append(facts, TeamsFact{
			Name:  failure.Name,
			Value: failure.Message,
		})
	}

	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Disabled Providers",
		Facts:         facts,
		Markdown:      true,
	})

	return message
}

func (s *Service) buildFailureEmailText(failures []models.ProviderFailure) string {
	var text strings.Builder

	text.WriteString("AI PROVIDER HEALTH ALERT\n")
	text.WriteString("========================\n\n")
	text.WriteString(fmt.Sprintf("%d provider(s) failed their health check and were disabled:\n\n", len(failures)))

	for i, failure := range failures {
		text.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, failure.Name, failure.ProviderID))
		text.WriteString(fmt.Sprintf("   Checked: %s\n", failure.CheckedAt.Format("2006-01-02 15:04:05 UTC")))
		text.WriteString(fmt.Sprintf("   Error: %s\n\n", failure.Message))
	}

	text.WriteString("Re-enable a provider from the admin panel once it has recovered.\n")

	return text.String()
}

func (s *Service) buildReportTeamsMessage(report *models.VisibilityReport) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("Visibility Report - %s", report.BrandName),
		Text:    fmt.Sprintf("Competitive visibility over the last %d days", report.WindowDays),
	}

	var facts []TeamsFact
	for _, stat := range report.Stats {
		facts = append(facts, TeamsFact{
			Name: stat.EntityName,
			Value: fmt.Sprintf("visibility %.2f%% (%s), sentiment %.0f (%s), position %.1f (%s)",
				stat.Visibility, stat.VisibilityTrend, stat.Sentiment, stat.SentimentTrend, stat.Position, stat.PositionTrend),
		})
	}

	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Entities",
		Facts:         facts,
		Markdown:      true,
	})

	return message
}

func (s *Service) buildReportEmailHTML(report *models.VisibilityReport) (string, error) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Visibility Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #0078d4; color: white; padding: 20px; border-radius: 5px; }
        table { border-collapse: collapse; margin-top: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px 12px; text-align: left; }
        th { background-color: #f5f5f5; }
        .up { color: #107c10; }
        .down { color: #d13438; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Visibility Report - {{.BrandName}}</h1>
        <p>Last {{.WindowDays}} days, generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    <table>
        <tr>
            <th>Entity</th>
            <th>Visibility</th>
            <th>Sentiment</th>
            <th>Position</th>
        </tr>
        {{range .Stats}}
        <tr>
            <td>{{.EntityName}}</td>
            <td class="{{.VisibilityTrend}}">{{printf "%.2f" .Visibility}}% ({{.VisibilityTrend}})</td>
            <td class="{{.SentimentTrend}}">{{printf "%.0f" .Sentiment}} ({{.SentimentTrend}})</td>
            <td class="{{.PositionTrend}}">{{printf "%.1f" .Position}} ({{.PositionTrend}})</td>
        </tr>
        {{end}}
    </table>

    <hr>
    <p><small>This report was generated automatically by the visibility bot.</small></p>
</body>
</html>
`

	t, err := template.New("report").Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, report); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *Service) buildReportEmailText(report *models.VisibilityReport) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("Visibility Report - %s\n", report.BrandName))
	text.WriteString(fmt.Sprintf("Window: last %d days\n", report.WindowDays))
	text.WriteString(fmt.Sprintf("Generated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC")))

	for _, stat := range report.Stats {
		text.WriteString(fmt.Sprintf("%s\n", stat.EntityName))
		text.WriteString(fmt.Sprintf("  Visibility: %.2f%% (%s, %+.2f)\n", stat.Visibility, stat.VisibilityTrend, stat.VisibilityChange))
		text.WriteString(fmt.Sprintf("  Sentiment:  %.0f (%s, %+.2f)\n", stat.Sentiment, stat.SentimentTrend, stat.SentimentChange))
		text.WriteString(fmt.Sprintf("  Position:   %.1f (%s, %+.1f)\n\n", stat.Position, stat.PositionTrend, stat.PositionChange))
	}

	text.WriteString("---\nThis report was generated automatically by the visibility bot.\n")

	return text.String()
}

func (s *Service) sendEmail(subject, textBody, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	if htmlBody != "" {
		m.AddAlternative("text/html", htmlBody)
	}

	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}
