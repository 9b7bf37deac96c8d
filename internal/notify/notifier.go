package notify

import (
	"fmt"

	"go-lead-import/internal/config"
	"go-lead-import/internal/models"

	"go.uber.org/zap"
)

// Notifier sends fire-and-forget emails about job outcomes. Failures are
// logged and never influence the import result.
type Notifier interface {
	JobCompleted(job *models.ImportJob)
	JobFailed(job *models.ImportJob)
}

type EmailNotifier struct {
	smtp SMTPConfig
	from string
	log  *zap.Logger
}

func NewNotifier(cfg *config.Config, log *zap.Logger) Notifier {
	return &EmailNotifier{
		smtp: SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		},
		from: cfg.SMTPFrom,
		log:  log,
	}
}

func (n *EmailNotifier) JobCompleted(job *models.ImportJob) {
	subject := fmt.Sprintf("Import %q completed", job.FileName)
	body := fmt.Sprintf(
		"<p>Your import of <b>%s</b> finished.</p><p>%d rows imported, %d skipped, %d invalid.</p>",
		job.FileName, job.ImportedRows, job.SkippedRows, job.InvalidRows,
	)
	n.send(job, subject, body)
}

func (n *EmailNotifier) JobFailed(job *models.ImportJob) {
	subject := fmt.Sprintf("Import %q failed", job.FileName)
	body := fmt.Sprintf(
		"<p>Your import of <b>%s</b> failed.</p><p>%s</p>",
		job.FileName, job.ErrorMessage,
	)
	n.send(job, subject, body)
}

func (n *EmailNotifier) send(job *models.ImportJob, subject, body string) {
	if n.smtp.Host == "" || job.OwnerEmail == "" {
		return
	}

	go func() {
		err := SendSMTP(n.smtp, &Email{
			From:     n.from,
			To:       []string{job.OwnerEmail},
			Subject:  subject,
			HtmlBody: body,
		})
		if err != nil {
			n.log.Warn("notification email failed",
				zap.String("jobId", job.ID.Hex()),
				zap.Error(err))
		}
	}()
}
