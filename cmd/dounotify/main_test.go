package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"dounotify/internal/dag"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cliDAG = `
dag:
  id: cli_dag
  description: CLI DAG
  schedule: 0 8 * * *
  search:
    terms: [pregão]
  report:
    emails: [dest@economia.gov.br]
`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		configFile, configDir = "", ""
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseCommandPrintsSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli_dag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cliDAG), 0o600))

	out, err := runCLI(t, "parse", path)
	require.NoError(t, err)

	var summary struct {
		DAG     map[string]any `json:"dag"`
		NextRun string         `json:"next_run"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "cli_dag", summary.DAG["dag_id"])
	assert.NotEmpty(t, summary.NextRun)
}

func TestRenderCommandWritesCSV(t *testing.T) {
	dir := t.TempDir()
	dagPath := filepath.Join(dir, "cli_dag.yaml")
	reportPath := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(dagPath, []byte(cliDAG), 0o600))
	require.NoError(t, os.WriteFile(reportPath, []byte(`[{"header": null, "department": null, "result": {"single_group": {"pregão": [
	  {"section": "Seção 3", "href": "https://in.gov.br/1", "title": "Aviso", "abstract": "Resumo", "date": "15/03/2024"}
	]}}}]`), 0o600))

	out, err := runCLI(t, "render", dagPath, reportPath, "--format", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "Aviso")
}

func TestExitCodeForConfigErrors(t *testing.T) {
	assert.Equal(t, 2, exitCode(&dag.ConfigError{}))
	assert.Equal(t, 1, exitCode(os.ErrNotExist))
}
