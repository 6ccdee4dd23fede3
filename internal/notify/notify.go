package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dounotify/internal/dag"
	"dounotify/internal/report"

	"github.com/google/uuid"
)

const (
	// ChannelEmail identifies the mail sink.
	ChannelEmail = "email"
	// ChannelSlack identifies the Slack incoming webhook sink.
	ChannelSlack = "slack"
	// ChannelDiscord identifies the Discord webhook sink.
	ChannelDiscord = "discord"
)

// Delivery is everything one notifier needs for one cycle.
// Params: report, DAG settings, precomputed subject, report date, and run id.
// Returns: immutable input shared by all notifiers of a cycle.
type Delivery struct {
	RunID      string
	Report     report.Report
	Config     dag.DAGConfig
	Subject    string
	ReportDate string
}

// Notifier renders one report for one sink and hands it over.
// Params: context and delivery input.
// Returns: sink error; nil when the sink accepted the payload.
type Notifier interface {
	Channel() string
	Enabled(cfg dag.DAGConfig) bool
	Notify(ctx context.Context, delivery Delivery) error
}

// DeliveryError wraps a sink failure with the channel that produced it.
type DeliveryError struct {
	Channel string
	Err     error
}

// Error formats channel-prefixed failure.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s: %v", e.Channel, e.Err)
}

// Unwrap exposes the sink error.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Result describes one dispatch cycle.
// Params: run id, skip flag, and channels that accepted the notification in order.
// Returns: cycle outcome for the caller.
type Result struct {
	RunID    string
	Skipped  bool
	Channels []string
}

// Dispatcher decides suppression and fans one report out to notifiers.
// Params: ordered notifiers and logger.
// Returns: dispatch helper for the service layer.
type Dispatcher struct {
	notifiers []Notifier
	logger    *slog.Logger
	newRunID  func() string
}

// NewDispatcher builds a dispatcher over the given notifiers.
// Params: optional logger and notifiers in delivery order.
// Returns: dispatcher instance.
func NewDispatcher(logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		notifiers: notifiers,
		logger:    logger,
		newRunID:  uuid.NewString,
	}
}

// Subject builds the mail subject for one report date.
// Params: configured subject prefix and report date text.
// Returns: `{subject} - DOs de {date}`.
func Subject(subject, reportDate string) string {
	return subject + " - DOs de " + reportDate
}

// Dispatch sends one report to every applicable notifier.
// Params: context, report, DAG settings, and report date text.
// Returns: skipped result when nothing matched and skip_null is set, otherwise
// accepted channels; first sink failure aborts with *DeliveryError.
func (d *Dispatcher) Dispatch(ctx context.Context, rep report.Report, cfg dag.DAGConfig, reportDate string) (Result, error) {
	runID := d.newRunID()
	logger := d.logger.With("run_id", runID, "dag_id", cfg.DagID, "report_date", reportDate)
	result := Result{RunID: runID}

	if rep.IsEmpty() && cfg.SkipNull {
		logger.Info("no matches found, notification skipped")
		result.Skipped = true
		return result, nil
	}

	delivery := Delivery{
		RunID:      runID,
		Report:     rep,
		Config:     cfg,
		Subject:    Subject(cfg.Subject, reportDate),
		ReportDate: reportDate,
	}
	for _, notifier := range d.notifiers {
		channel := notifier.Channel()
		if !notifier.Enabled(cfg) {
			logger.Debug("notifier not configured for dag", "channel", channel)
			continue
		}
		if err := notifier.Notify(ctx, delivery); err != nil {
			logger.Error("notification failed", "channel", channel, "error", err.Error())
			return result, &DeliveryError{Channel: channel, Err: err}
		}
		logger.Info("notification sent", "channel", channel)
		result.Channels = append(result.Channels, channel)
	}
	return result, nil
}

// IsDeliveryError reports whether err came from a sink and returns the channel.
func IsDeliveryError(err error) (string, bool) {
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Channel, true
	}
	return "", false
}
