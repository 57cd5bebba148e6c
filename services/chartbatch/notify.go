package chartbatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"platscore-backend/lib/timezone"

	"github.com/jordan-wright/email"
)

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	To           []string `json:"to"`
}

// Notifier sends the best-effort run lifecycle mails. a nil Notifier
// is valid and sends nothing; mail failures are logged, never fatal.
type Notifier struct {
	config   SmtpConfig
	password string
	runID    string
}

func NewNotifier(config SmtpConfig, password, runID string) *Notifier {
	if config.Server == "" || len(config.To) == 0 {
		return nil
	}
	return &Notifier{
		config:   config,
		password: password,
		runID:    runID,
	}
}

func (n *Notifier) NotifyStart(ctx context.Context) {
	n.send(ctx, "batch run started", fmt.Sprintf(
		"The chart data batch run started at %s.",
		timezone.Now().Format("2006-01-02 15:04:05"),
	))
}

func (n *Notifier) NotifyCompletion(ctx context.Context, summary string) {
	n.send(ctx, "batch run completed", fmt.Sprintf(
		"The chart data batch run completed at %s.\n\n%s",
		timezone.Now().Format("2006-01-02 15:04:05"),
		summary,
	))
}

func (n *Notifier) NotifyError(ctx context.Context, runErr error) {
	n.send(ctx, "batch run FAILED", fmt.Sprintf(
		"The chart data batch run failed at %s.\n\n%s",
		timezone.Now().Format("2006-01-02 15:04:05"),
		runErr.Error(),
	))
}

func (n *Notifier) send(ctx context.Context, subject, body string) {
	if n == nil {
		return
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Chart Data Batch <%s>", n.config.EmailAddress)
	mail.To = n.config.To
	mail.Subject = fmt.Sprintf("[%s] %s", n.runID, subject)
	mail.Text = []byte(body)

	addr := fmt.Sprintf("%s:%d", n.config.Server, n.config.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", n.config.EmailAddress, n.password, n.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to send notification mail", "subject", subject, "err", err)
	}
}
