package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"dounotify/internal/dag"
	"dounotify/internal/render/email"
)

const defaultCharset = "utf-8"

// Mail is one outbound HTML message.
// Params: recipients, subject, HTML body, attachment file paths, and charset.
// Returns: mail sink input.
type Mail struct {
	To          []string
	Subject     string
	HTMLBody    string
	Attachments []string
	Charset     string
}

// Mailer hands one message to the mail transport.
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// Archiver stores rendered report artifacts.
// Params: context, object key relative to the archive prefix, content type, and body.
// Returns: storage error.
type Archiver interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
}

// EmailNotifier renders the HTML report and sends it through a Mailer.
type EmailNotifier struct {
	mailer   Mailer
	renderer *email.Renderer
	tempDir  string
	charset  string
	archiver Archiver
	logger   *slog.Logger
}

// EmailOption customizes EmailNotifier.
type EmailOption func(*EmailNotifier)

// WithTempDir sets the directory used for CSV attachments.
func WithTempDir(dir string) EmailOption {
	return func(n *EmailNotifier) { n.tempDir = dir }
}

// WithCharset overrides the message charset.
func WithCharset(charset string) EmailOption {
	return func(n *EmailNotifier) {
		if strings.TrimSpace(charset) != "" {
			n.charset = charset
		}
	}
}

// WithArchiver uploads every sent report to archive storage.
func WithArchiver(archiver Archiver) EmailOption {
	return func(n *EmailNotifier) { n.archiver = archiver }
}

// WithLogger sets the logger used for non-fatal archive failures.
func WithLogger(logger *slog.Logger) EmailOption {
	return func(n *EmailNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewEmailNotifier creates the mail notifier.
// Params: mail transport, HTML renderer (nil uses the default stylesheet), and options.
// Returns: initialized notifier.
func NewEmailNotifier(mailer Mailer, renderer *email.Renderer, opts ...EmailOption) *EmailNotifier {
	if renderer == nil {
		renderer = email.NewRenderer("")
	}
	n := &EmailNotifier{
		mailer:   mailer,
		renderer: renderer,
		charset:  defaultCharset,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Channel returns notifier channel name.
func (n *EmailNotifier) Channel() string {
	return ChannelEmail
}

// Enabled reports whether the DAG has recipients.
func (n *EmailNotifier) Enabled(cfg dag.DAGConfig) bool {
	return len(cfg.Emails) > 0
}

// Notify renders and sends the report email.
// Params: context and delivery input.
// Returns: render, attachment, or mail transport error.
func (n *EmailNotifier) Notify(ctx context.Context, delivery Delivery) error {
	body, err := n.renderer.RenderHTML(delivery.Report, delivery.Config)
	if errors.Is(err, email.ErrSkip) {
		return nil
	}
	if err != nil {
		return err
	}

	mail := Mail{
		To:       delivery.Config.Emails,
		Subject:  delivery.Subject,
		HTMLBody: body,
		Charset:  n.charset,
	}
	if attachCSV(delivery) {
		path, cleanup, err := email.WriteCSVTempFile(delivery.Report, n.tempDir)
		if err != nil {
			return fmt.Errorf("attach csv: %w", err)
		}
		defer cleanup()
		mail.Attachments = []string{path}
	}

	if err := n.mailer.Send(ctx, mail); err != nil {
		return err
	}

	n.archive(ctx, delivery, body)
	return nil
}

// archive uploads the rendered artifacts; failures are logged only.
func (n *EmailNotifier) archive(ctx context.Context, delivery Delivery, body string) {
	if n.archiver == nil {
		return
	}
	logger := n.logger.With("run_id", delivery.RunID, "dag_id", delivery.Config.DagID)

	if err := n.archiver.Put(ctx, ArchiveKey(delivery, "report.html"), "text/html; charset=utf-8", []byte(body)); err != nil {
		logger.Warn("archive html report failed", "error", err.Error())
	}
	if !attachCSV(delivery) {
		return
	}
	csvBody, err := email.RenderCSV(delivery.Report)
	if err != nil {
		logger.Warn("render csv for archive failed", "error", err.Error())
		return
	}
	if err := n.archiver.Put(ctx, ArchiveKey(delivery, "report.csv"), "text/csv; charset=utf-8", csvBody); err != nil {
		logger.Warn("archive csv report failed", "error", err.Error())
	}
}

// attachCSV reports whether the CSV export goes out; empty reports never carry one.
func attachCSV(delivery Delivery) bool {
	return delivery.Config.AttachCSV && !delivery.Report.IsEmpty()
}

// ArchiveKey builds `{dag_id}/{report date}/{run_id}/{name}` with the date made path safe.
func ArchiveKey(delivery Delivery, name string) string {
	date := strings.ReplaceAll(delivery.ReportDate, "/", "-")
	return strings.Join([]string{delivery.Config.DagID, date, delivery.RunID, name}, "/")
}
