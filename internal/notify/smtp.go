package notify

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"dounotify/internal/config"

	"github.com/wneessen/go-mail"
)

// messageSender is the part of *mail.Client used for delivery.
type messageSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPMailer delivers Mail over SMTP.
// Params: SMTP host/port, credentials, sender identity, and TLS policy.
// Returns: mail sink for EmailNotifier.
type SMTPMailer struct {
	cfg       config.SMTPConfig
	newClient func() (messageSender, error)
}

// NewSMTPMailer creates the SMTP mail sink.
// Params: SMTP config.
// Returns: initialized mailer; the connection is opened per message.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	m := &SMTPMailer{cfg: cfg}
	m.newClient = func() (messageSender, error) {
		return m.createClient()
	}
	return m
}

// Send builds one message and delivers it.
// Params: context and mail payload.
// Returns: validation, build, dial, or send error.
func (m *SMTPMailer) Send(ctx context.Context, payload Mail) error {
	if len(payload.To) == 0 {
		return errors.New("at least one recipient is required")
	}
	msg, err := m.buildMessage(payload)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}
	client, err := m.newClient()
	if err != nil {
		return fmt.Errorf("create mail client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// createClient builds a go-mail client from config.
func (m *SMTPMailer) createClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(time.Duration(m.cfg.TimeoutSec) * time.Second),
	}
	switch m.cfg.TLS {
	case config.SMTPTLSImplicit:
		opts = append(opts, mail.WithSSL())
	case config.SMTPTLSOpportunistic:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	case config.SMTPTLSNone:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if strings.TrimSpace(m.cfg.Username) != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	return mail.NewClient(m.cfg.Host, opts...)
}

// buildMessage converts Mail into a go-mail message.
func (m *SMTPMailer) buildMessage(payload Mail) (*mail.Msg, error) {
	charset := payload.Charset
	if strings.TrimSpace(charset) == "" {
		charset = m.cfg.Charset
	}
	if strings.TrimSpace(charset) == "" {
		charset = defaultCharset
	}
	msg := mail.NewMsg(mail.WithCharset(mail.Charset(charset)))

	if m.cfg.FromName != "" {
		if err := msg.FromFormat(m.cfg.FromName, m.cfg.From); err != nil {
			return nil, fmt.Errorf("set from: %w", err)
		}
	} else if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(payload.To...); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	msg.Subject(payload.Subject)
	msg.SetBodyString(mail.TypeTextHTML, payload.HTMLBody)
	for _, path := range payload.Attachments {
		msg.AttachFile(path, mail.WithFileName(filepath.Base(path)))
	}
	msg.SetDate()
	msg.SetMessageID()
	return msg, nil
}
