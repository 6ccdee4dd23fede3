package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"dounotify/internal/archive"
	"dounotify/internal/clock"
	"dounotify/internal/config"
	"dounotify/internal/dag"
	"dounotify/internal/logging"
	"dounotify/internal/notify"
	"dounotify/internal/render/chat"
	"dounotify/internal/render/email"
	"dounotify/internal/report"
	"dounotify/internal/termsql"
	"dounotify/internal/variables"
)

const (
	// FormatHTML renders the email body.
	FormatHTML = "html"
	// FormatCSV renders the CSV attachment.
	FormatCSV = "csv"
	// FormatSlack renders the Slack webhook payload.
	FormatSlack = "slack"
	// FormatDiscord renders the Discord webhook messages.
	FormatDiscord = "discord"
)

// ErrSMTPDisabled is returned by the email channel when [smtp] is not enabled.
var ErrSMTPDisabled = errors.New("smtp transport is not enabled")

// Service composes runtime dependencies for one parse or notify cycle.
// Params: validated config, clock, and optional sink overrides.
// Returns: runnable notifier service.
type Service struct {
	cfg      config.Config
	logger   *slog.Logger
	closeLog func()
	clock    clock.Clock

	vars       variables.Store
	terms      dag.TermQuerier
	closeTerms func()
	renderer   *email.Renderer
	mailer     notify.Mailer
	poster     notify.WebhookPoster
	archiver   notify.Archiver
	dispatcher *notify.Dispatcher
}

// Option overrides one dependency of Service.
type Option func(*Service)

// WithLogger replaces the logger built from [log].
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithVariables replaces the store selected by [variables].
func WithVariables(store variables.Store) Option {
	return func(s *Service) { s.vars = store }
}

// WithTermQuerier replaces the SQL runner built from [database].
func WithTermQuerier(querier dag.TermQuerier) Option {
	return func(s *Service) { s.terms = querier }
}

// WithMailer replaces the SMTP mailer.
func WithMailer(mailer notify.Mailer) Option {
	return func(s *Service) { s.mailer = mailer }
}

// WithWebhookPoster replaces the HTTP webhook poster.
func WithWebhookPoster(poster notify.WebhookPoster) Option {
	return func(s *Service) { s.poster = poster }
}

// WithArchiver replaces the S3 archive uploader.
func WithArchiver(archiver notify.Archiver) Option {
	return func(s *Service) { s.archiver = archiver }
}

// NewService builds service instance from config.
// Params: context for backend connections, config snapshot, clock, and overrides.
// Returns: initialized service or setup error.
func NewService(ctx context.Context, cfg config.Config, clk clock.Clock, opts ...Option) (*Service, error) {
	s := &Service{cfg: cfg, clock: clk}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		logger, closeLog, err := logging.New(cfg.Log)
		if err != nil {
			return nil, err
		}
		s.logger = logger
		s.closeLog = closeLog
	}

	stylesheet, err := email.LoadStylesheet(cfg.Report.Stylesheet)
	if err != nil {
		s.cleanupInitResources()
		return nil, err
	}
	s.renderer = email.NewRenderer(stylesheet)

	if s.vars == nil {
		store, err := variables.New(ctx, cfg.Variables)
		if err != nil {
			s.cleanupInitResources()
			return nil, fmt.Errorf("open variables store: %w", err)
		}
		s.vars = store
	}
	if s.terms == nil {
		runner := termsql.NewRunner(cfg.Database)
		s.terms = runner
		s.closeTerms = runner.Close
	}
	if s.mailer == nil {
		if cfg.SMTP.Enabled {
			s.mailer = notify.NewSMTPMailer(cfg.SMTP)
		} else {
			s.mailer = disabledMailer{}
		}
	}
	if s.poster == nil {
		s.poster = notify.NewHTTPWebhookPoster(cfg.Webhook)
	}
	if s.archiver == nil && cfg.Archive.Enabled {
		uploader, err := archive.NewUploader(ctx, cfg.Archive)
		if err != nil {
			s.cleanupInitResources()
			return nil, fmt.Errorf("build archive uploader: %w", err)
		}
		s.archiver = uploader
		s.logger.Debug("report archive enabled", "bucket", uploader.Bucket())
	}

	emailOpts := []notify.EmailOption{
		notify.WithTempDir(cfg.Report.TempDir),
		notify.WithCharset(cfg.SMTP.Charset),
		notify.WithLogger(s.logger),
	}
	if s.archiver != nil {
		emailOpts = append(emailOpts, notify.WithArchiver(s.archiver))
	}
	s.dispatcher = notify.NewDispatcher(s.logger,
		notify.NewEmailNotifier(s.mailer, s.renderer, emailOpts...),
		notify.NewSlackNotifier(s.poster),
		notify.NewDiscordNotifier(s.poster),
	)
	return s, nil
}

// ParseDAG reads one DAG YAML file.
// Params: context, file path, and whether `from_db_select` searches run their SQL now.
// Returns: parsed config or ConfigError / lookup / query error.
func (s *Service) ParseDAG(ctx context.Context, path string, resolveSQL bool) (dag.DAGConfig, error) {
	cfg, err := dag.NewParser(s.vars).ParseFile(ctx, path)
	if err != nil {
		return dag.DAGConfig{}, err
	}
	if !resolveSQL {
		return cfg, nil
	}
	return dag.ResolveDeferredTerms(ctx, cfg, s.terms)
}

// DAGSummary is the printable view of one parsed DAG.
type DAGSummary struct {
	DAG     dag.DAGConfig `json:"dag"`
	NextRun *time.Time    `json:"next_run,omitempty"`
}

// Summarize attaches the next scheduled run to a parsed DAG.
// Params: parsed config.
// Returns: summary or schedule parse error.
func (s *Service) Summarize(cfg dag.DAGConfig) (DAGSummary, error) {
	summary := DAGSummary{DAG: cfg}
	next, ok, err := dag.NextRun(cfg.Schedule, s.clock.Now())
	if err != nil {
		return DAGSummary{}, err
	}
	if ok {
		summary.NextRun = &next
	}
	return summary, nil
}

// Variable reads one raw value from the variable store.
func (s *Service) Variable(ctx context.Context, name string) (string, error) {
	return s.vars.Lookup(ctx, name)
}

// SetVariable writes one value to a writable variable store.
// Params: context, variable name, and raw value.
// Returns: variables.ErrReadOnly for static/env/redis backends or store error.
func (s *Service) SetVariable(ctx context.Context, name, value string) error {
	rev, err := variables.Set(ctx, s.vars, name, value)
	if err != nil {
		return err
	}
	s.logger.Info("variable stored", "name", name, "revision", rev)
	return nil
}

// ReportDate returns today's date in the service timezone.
func (s *Service) ReportDate() string {
	loc, err := s.cfg.Location()
	if err != nil {
		loc = time.UTC
	}
	return clock.ReportDate(s.clock, loc, s.cfg.Report.DateFormat)
}

// RunCycle parses the DAG, loads the report, and dispatches notifications.
// Params: context, DAG path, report JSON path, and report date (empty means today).
// Returns: dispatch result or parse/load/delivery error.
func (s *Service) RunCycle(ctx context.Context, dagPath, reportPath, reportDate string) (notify.Result, error) {
	cfg, err := s.ParseDAG(ctx, dagPath, false)
	if err != nil {
		return notify.Result{}, err
	}
	rep, err := report.LoadFile(reportPath)
	if err != nil {
		return notify.Result{}, err
	}
	if strings.TrimSpace(reportDate) == "" {
		reportDate = s.ReportDate()
	}
	return s.dispatcher.Dispatch(ctx, rep, cfg, reportDate)
}

// Render writes one rendered payload without contacting any sink.
// Params: writer, report, DAG settings, and output format.
// Returns: email.ErrSkip when the report would be suppressed, or render error.
func (s *Service) Render(w io.Writer, rep report.Report, cfg dag.DAGConfig, format string) error {
	if rep.IsEmpty() && cfg.SkipNull {
		return email.ErrSkip
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatHTML:
		body, err := s.renderer.RenderHTML(rep, cfg)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, body)
		return err
	case FormatCSV:
		body, err := email.RenderCSV(rep)
		if err != nil {
			return err
		}
		_, err = w.Write(body)
		return err
	case FormatSlack:
		blocks := chat.SlackBlocks(rep)
		if len(blocks) == 0 {
			blocks = chat.SlackNoResults(cfg.NoResultsFoundText)
		}
		return writeJSON(w, chat.NewSlackPayload(blocks))
	case FormatDiscord:
		messages, err := chat.DiscordMessages(rep)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			messages = chat.DiscordNoResults(cfg.NoResultsFoundText)
		}
		return writeJSON(w, messages)
	default:
		return fmt.Errorf("unsupported render format %q", format)
	}
}

// Close releases backend connections and log sinks.
// Params: none.
// Returns: first close error.
func (s *Service) Close() error {
	var firstErr error
	if s.closeTerms != nil {
		s.closeTerms()
	}
	if s.vars != nil {
		if err := s.vars.Close(); err != nil {
			s.logger.Error("variables store close failed", "error", err.Error())
			firstErr = fmt.Errorf("variables store close: %w", err)
		}
	}
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
func (s *Service) cleanupInitResources() {
	if s.closeTerms != nil {
		s.closeTerms()
		s.closeTerms = nil
	}
	if s.vars != nil {
		_ = s.vars.Close()
		s.vars = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(value)
}

// disabledMailer fails every send so DAGs with recipients surface the missing transport.
type disabledMailer struct{}

func (disabledMailer) Send(context.Context, notify.Mail) error {
	return ErrSMTPDisabled
}
