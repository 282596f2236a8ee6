package pdfagent

import (
	"fmt"
	"path/filepath"

	"gopkg.in/gomail.v2"

	"ieee-pdf-agent/internal/logger"
)

// Mailer sends produced artifacts over SMTP with STARTTLS. gomail
// attaches the file as a base64-encoded MIME part and negotiates TLS
// after connecting, matching the usual submission-port setup.
type Mailer struct {
	cfg  EmailConfig
	log  logger.AppLogger
	send func(m *gomail.Message) error
}

// NewMailer creates a Mailer from the email configuration.
func NewMailer(cfg EmailConfig, log logger.AppLogger) *Mailer {
	d := gomail.NewDialer(cfg.SMTPServer, cfg.SMTPPort, cfg.Username, cfg.Password)
	return &Mailer{
		cfg:  cfg,
		log:  log.With("service", "mailer"),
		send: func(m *gomail.Message) error { return d.DialAndSend(m) },
	}
}

// Send emails the artifact to the recipient. Incomplete configuration
// (missing credentials or recipient) is a non-fatal skip reported as
// ErrEmailConfigIncomplete; callers are expected to log and move on.
func (m *Mailer) Send(attachmentPath, recipient, subject string) error {
	if m.cfg.Username == "" || m.cfg.Password == "" || recipient == "" {
		m.log.Warn("skipping email delivery", "reason", ErrEmailConfigIncomplete.Error())
		return ErrEmailConfigIncomplete
	}

	from := m.cfg.FromEmail
	if from == "" {
		from = m.cfg.Username
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", "Please find attached your IEEE formatted document.")
	msg.Attach(attachmentPath)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	m.log.Info("email sent", "to", recipient, "attachment", filepath.Base(attachmentPath))
	return nil
}
