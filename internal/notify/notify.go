// Package notify dispatches completion notifications. Dispatch is
// fire-and-forget from the supervisor's point of view: a failed send
// never changes job status.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"sheetsight/internal/job"
	"sheetsight/internal/store"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Email sends completion mails through SendGrid.
type Email struct {
	client  *sendgrid.Client
	from    string
	baseURL string
	log     *slog.Logger
}

// NewEmail builds the notifier. Without an API key notifications are
// disabled and every dispatch is a logged no-op.
func NewEmail(apiKey, fromAddr, baseURL string, log *slog.Logger) job.Notifier {
	if apiKey == "" {
		log.Warn("SENDGRID_API_KEY not set, email notifications disabled")
		return &disabled{log: log}
	}
	return &Email{
		client:  sendgrid.NewSendClient(apiKey),
		from:    fromAddr,
		baseURL: baseURL,
		log:     log,
	}
}

// AnalysisComplete implements job.Notifier. Errored jobs notify too,
// with the diagnostic instead of a dashboard link.
func (e *Email) AnalysisComplete(ctx context.Context, n job.Notification) error {
	subject, plain, html := buildMessage(n, e.baseURL)

	msg := mail.NewSingleEmail(
		mail.NewEmail("Sheetsight", e.from),
		subject,
		mail.NewEmail("", n.Email),
		plain,
		html,
	)

	resp, err := e.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("send notification for %s: %w", n.JobID, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("send notification for %s: sendgrid returned %d", n.JobID, resp.StatusCode)
	}
	e.log.Info("completion notification sent", "job_id", n.JobID, "to", n.Email)
	return nil
}

// buildMessage composes the subject and both bodies for a finished job.
func buildMessage(n job.Notification, baseURL string) (subject, plain, html string) {
	if n.Status == store.StatusError {
		subject = fmt.Sprintf("There was a problem analyzing %s", n.Filename)
		plain = fmt.Sprintf("Unfortunately the analysis of %s failed.\n\nJob ID: %s\nError: %s\n\nPlease try again, or contact support if the problem persists.\n",
			n.Filename, n.JobID, n.Message)
		html = fmt.Sprintf(
			`<p>Unfortunately the analysis of <strong>%s</strong> failed.</p><p>Job ID: %s<br>Error: %s</p><p>Please try again, or contact support if the problem persists.</p>`,
			n.Filename, n.JobID, n.Message)
		return subject, plain, html
	}

	subject = fmt.Sprintf("Your analysis of %s is ready", n.Filename)
	if n.Status == store.StatusPartial {
		subject = fmt.Sprintf("Your analysis of %s finished with partial results", n.Filename)
	}

	dashboardURL := fmt.Sprintf("%s/dashboards/%s", baseURL, n.JobID)
	plain = fmt.Sprintf("Your analysis of %s has finished.\n\nView the dashboard: %s\n", n.Filename, dashboardURL)
	html = fmt.Sprintf(
		`<p>Your analysis of <strong>%s</strong> has finished.</p><p><a href="%s">View the dashboard</a></p>`,
		n.Filename, dashboardURL)
	return subject, plain, html
}

type disabled struct {
	log *slog.Logger
}

func (d *disabled) AnalysisComplete(_ context.Context, n job.Notification) error {
	d.log.Info("notifications disabled, skipping dispatch", "job_id", n.JobID, "to", n.Email)
	return nil
}
