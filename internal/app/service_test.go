package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dounotify/internal/clock"
	"dounotify/internal/config"
	"dounotify/internal/dag"
	"dounotify/internal/notify"
	"dounotify/internal/render/email"
	"dounotify/internal/report"
	"dounotify/internal/variables"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullDAG = `
dag:
  id: licitacoes
  description: Licitações do dia
  schedule: 0 8 * * MON-FRI
  search:
    - header: Termos fixos
      terms:
        from_airflow_variable: termos_licitacao
    - header: Termos do banco
      terms:
        from_db_select:
          sql: SELECT termo FROM termos
          conn_id: pg
  report:
    subject: Licitações
    emails:
      - dest@economia.gov.br
    attach_csv: true
    skip_null: false
    slack:
      webhook: https://hooks.slack.test/x
    discord:
      webhook: https://discord.test/hook
`

const matchesReport = `[
  {
    "header": "Termos fixos",
    "department": null,
    "result": {
      "single_group": {
        "pregão": [{"section": "Seção 3", "href": "https://in.gov.br/1", "title": "Aviso", "abstract": "Pregão eletrônico", "date": "15/03/2024"}]
      }
    }
  }
]`

const emptyReport = `[
  {"header": null, "department": null, "result": {"single_group": {"pregão": []}}}
]`

type fakeMailer struct {
	sent []notify.Mail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, mail notify.Mail) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, mail)
	return nil
}

type fakePoster struct {
	urls []string
}

func (p *fakePoster) PostJSON(_ context.Context, url string, _ any) error {
	p.urls = append(p.urls, url)
	return nil
}

type fakeTerms struct {
	calls int
}

func (q *fakeTerms) RunQuery(context.Context, string, string) ([]string, error) {
	q.calls++
	return []string{"dispensa", "inexigibilidade"}, nil
}

type harness struct {
	svc    *Service
	mailer *fakeMailer
	poster *fakePoster
	terms  *fakeTerms
	dir    string
}

func newHarness(t *testing.T, mutate func(*config.Config)) harness {
	t.Helper()

	cfg := config.Default()
	cfg.Report.TempDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	h := harness{
		mailer: &fakeMailer{},
		poster: &fakePoster{},
		terms:  &fakeTerms{},
		dir:    t.TempDir(),
	}
	now := clock.Fixed(time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC))
	svc, err := NewService(context.Background(), cfg, now,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithVariables(variables.NewStaticStore(map[string]string{
			"termos_licitacao": "['pregão', 'licitação']",
		})),
		WithTermQuerier(h.terms),
		WithMailer(h.mailer),
		WithWebhookPoster(h.poster),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	h.svc = svc
	return h
}

func (h harness) write(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParseDAGKeepsSQLDeferredUnlessRequested(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	path := h.write(t, "licitacoes.yaml", fullDAG)

	cfg, err := h.svc.ParseDAG(context.Background(), path, false)
	require.NoError(t, err)
	require.Len(t, cfg.Search, 2)
	assert.Equal(t, []string{"pregão", "licitação"}, cfg.Search[0].Terms)
	assert.True(t, cfg.Search[1].UsesSQL())
	assert.Empty(t, cfg.Search[1].Terms)
	assert.Zero(t, h.terms.calls)

	resolved, err := h.svc.ParseDAG(context.Background(), path, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"dispensa", "inexigibilidade"}, resolved.Search[1].Terms)
	assert.Equal(t, 1, h.terms.calls)
}

func TestParseDAGReturnsConfigError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	path := h.write(t, "broken.yaml", "dag:\n  id: broken\n")

	_, err := h.svc.ParseDAG(context.Background(), path, false)
	var cfgErr *dag.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestSummarizeAddsNextRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	cfg, err := h.svc.ParseDAG(context.Background(), h.write(t, "d.yaml", fullDAG), false)
	require.NoError(t, err)

	summary, err := h.svc.Summarize(cfg)
	require.NoError(t, err)
	require.NotNil(t, summary.NextRun)
	assert.True(t, summary.NextRun.After(time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)))

	cfg.Schedule = ""
	summary, err = h.svc.Summarize(cfg)
	require.NoError(t, err)
	assert.Nil(t, summary.NextRun)
}

func TestReportDateUsesServiceTimezone(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	assert.Equal(t, "15/03/2024", h.svc.ReportDate())
}

func TestRunCycleDeliversToEveryChannel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	dagPath := h.write(t, "d.yaml", fullDAG)
	reportPath := h.write(t, "report.json", matchesReport)

	result, err := h.svc.RunCycle(context.Background(), dagPath, reportPath, "")
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, []string{notify.ChannelEmail, notify.ChannelSlack, notify.ChannelDiscord}, result.Channels)

	require.Len(t, h.mailer.sent, 1)
	sent := h.mailer.sent[0]
	assert.Equal(t, "Licitações - DOs de 15/03/2024", sent.Subject)
	assert.Equal(t, []string{"dest@economia.gov.br"}, sent.To)
	assert.Len(t, sent.Attachments, 1)
	assert.Contains(t, sent.HTMLBody, "Aviso")
	// one Slack payload, then one Discord message for the term and one for the match
	assert.Equal(t, []string{"https://hooks.slack.test/x", "https://discord.test/hook", "https://discord.test/hook"}, h.poster.urls)
}

func TestRunCycleSkipsEmptyReport(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	body := strings.Replace(fullDAG, "skip_null: false", "skip_null: true", 1)
	dagPath := h.write(t, "d.yaml", body)
	reportPath := h.write(t, "report.json", emptyReport)

	result, err := h.svc.RunCycle(context.Background(), dagPath, reportPath, "16/03/2024")
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, h.mailer.sent)
	assert.Empty(t, h.poster.urls)
}

func TestRunCycleSurfacesDisabledSMTP(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Report.TempDir = t.TempDir()
	svc, err := NewService(context.Background(), cfg, clock.RealClock{},
		WithLogger(slog.New(slog.DiscardHandler)),
		WithVariables(variables.NewStaticStore(map[string]string{"termos_licitacao": "pregão"})),
		WithTermQuerier(&fakeTerms{}),
		WithWebhookPoster(&fakePoster{}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	dir := t.TempDir()
	dagPath := filepath.Join(dir, "d.yaml")
	reportPath := filepath.Join(dir, "r.json")
	require.NoError(t, os.WriteFile(dagPath, []byte(fullDAG), 0o600))
	require.NoError(t, os.WriteFile(reportPath, []byte(matchesReport), 0o600))

	_, err = svc.RunCycle(context.Background(), dagPath, reportPath, "15/03/2024")
	require.ErrorIs(t, err, ErrSMTPDisabled)
	channel, ok := notify.IsDeliveryError(err)
	assert.True(t, ok)
	assert.Equal(t, notify.ChannelEmail, channel)
}

func TestRunCycleStopsOnMailFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.mailer.err = errors.New("relay refused")

	_, err := h.svc.RunCycle(context.Background(), h.write(t, "d.yaml", fullDAG), h.write(t, "r.json", matchesReport), "15/03/2024")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay refused")
	assert.Empty(t, h.poster.urls)
}

func TestRenderFormats(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	cfg, err := h.svc.ParseDAG(context.Background(), h.write(t, "d.yaml", fullDAG), false)
	require.NoError(t, err)
	rep, err := report.Decode([]byte(matchesReport))
	require.NoError(t, err)

	var html bytes.Buffer
	require.NoError(t, h.svc.Render(&html, rep, cfg, FormatHTML))
	assert.Contains(t, html.String(), "<style>")

	var csvOut bytes.Buffer
	require.NoError(t, h.svc.Render(&csvOut, rep, cfg, FormatCSV))
	assert.Contains(t, csvOut.String(), "pregão")

	var slack bytes.Buffer
	require.NoError(t, h.svc.Render(&slack, rep, cfg, FormatSlack))
	var payload map[string]any
	require.NoError(t, json.Unmarshal(slack.Bytes(), &payload))
	assert.NotEmpty(t, payload["blocks"])

	var discord bytes.Buffer
	require.NoError(t, h.svc.Render(&discord, rep, cfg, "Discord"))
	var messages []map[string]string
	require.NoError(t, json.Unmarshal(discord.Bytes(), &messages))
	assert.NotEmpty(t, messages)

	assert.EqualError(t, h.svc.Render(&bytes.Buffer{}, rep, cfg, "pdf"), `unsupported render format "pdf"`)
}

func TestRenderSkipsSuppressedEmptyReport(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	rep, err := report.Decode([]byte(emptyReport))
	require.NoError(t, err)

	err = h.svc.Render(&bytes.Buffer{}, rep, dag.DAGConfig{SkipNull: true}, FormatSlack)
	assert.ErrorIs(t, err, email.ErrSkip)
}

func TestNewServiceRejectsMissingStylesheet(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Report.Stylesheet = filepath.Join(t.TempDir(), "missing.css")
	_, err := NewService(context.Background(), cfg, clock.RealClock{},
		WithLogger(slog.New(slog.DiscardHandler)),
		WithVariables(variables.NewStaticStore(nil)),
	)
	require.Error(t, err)
}

func TestVariableAccess(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	value, err := h.svc.Variable(context.Background(), "termos_licitacao")
	require.NoError(t, err)
	assert.Equal(t, "['pregão', 'licitação']", value)

	_, err = h.svc.Variable(context.Background(), "missing")
	assert.ErrorIs(t, err, variables.ErrNotFound)
	assert.ErrorIs(t, h.svc.SetVariable(context.Background(), "x", "y"), variables.ErrReadOnly)
}
