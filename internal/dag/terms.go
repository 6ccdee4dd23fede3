package dag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	termsFromVariable = "from_airflow_variable"
	termsFromDBSelect = "from_db_select"

	invalidTermsMessage = "O campo `terms` aceita como valores válidos " +
		"uma lista de strings ou parâmetros do tipo " +
		"`from_airflow_variable` ou `from_db_select`."
)

// ErrLookupNotConfigured is returned when a DAG uses variable indirection
// but the parser has no variable store.
var ErrLookupNotConfigured = errors.New("variable lookup is not configured")

// TermQuerier runs deferred `from_db_select` term queries.
// Params: context, SQL text, and connection id from the DAG file.
// Returns: one term per row.
type TermQuerier interface {
	RunQuery(ctx context.Context, sql, connID string) ([]string, error)
}

// resolveTerms resolves the `terms` field of one search block.
// Params: context and search mapping.
// Returns: literal terms, or empty terms plus SQL/conn id for deferred queries.
func (d *document) resolveTerms(ctx context.Context, node map[string]any) ([]string, string, string, error) {
	raw, err := d.require(node, "terms")
	if err != nil {
		return nil, "", "", err
	}

	indirection, ok := raw.(map[string]any)
	if !ok {
		terms, err := d.stringList("terms", raw)
		return terms, "", "", err
	}

	if _, ok := present(indirection, termsFromVariable); ok {
		name, err := d.requireString(indirection, termsFromVariable)
		if err != nil {
			return nil, "", "", err
		}
		terms, err := d.termsFromVariable(ctx, name)
		return terms, "", "", err
	}
	if _, ok := present(indirection, termsFromDBSelect); ok {
		selectNode, err := d.requireMap(indirection, termsFromDBSelect)
		if err != nil {
			return nil, "", "", err
		}
		sql, err := d.requireString(selectNode, "sql")
		if err != nil {
			return nil, "", "", err
		}
		connID, err := d.requireString(selectNode, "conn_id")
		if err != nil {
			return nil, "", "", err
		}
		return []string{}, sql, connID, nil
	}
	return nil, "", "", &ConfigError{File: d.file, Field: "terms", Message: invalidTermsMessage}
}

// termsFromVariable reads a term list stored in the variable store.
// Params: context and variable name.
// Returns: parsed list literal or one term per line; lookup errors unchanged.
func (d *document) termsFromVariable(ctx context.Context, name string) ([]string, error) {
	if d.lookup == nil {
		return nil, ErrLookupNotConfigured
	}
	value, err := d.lookup.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if terms, ok := parseListLiteral(value); ok {
		return terms, nil
	}
	return splitLines(value), nil
}

// parseListLiteral accepts `["a", "b"]`, `['a', 'b']` and tuple forms.
// Only a single flow sequence of quoted strings qualifies; bare words, numbers
// and trailing content make the value fall back to line splitting.
// Params: raw variable value.
// Returns: decoded items and true when value is a flat list literal.
func parseListLiteral(value string) ([]string, bool) {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < 2 {
		return nil, false
	}
	switch {
	case trimmed[0] == '[' && trimmed[len(trimmed)-1] == ']':
	case trimmed[0] == '(' && trimmed[len(trimmed)-1] == ')':
		trimmed = "[" + trimmed[1:len(trimmed)-1] + "]"
	default:
		return nil, false
	}

	decoder := yaml.NewDecoder(strings.NewReader(trimmed))
	var doc yaml.Node
	if err := decoder.Decode(&doc); err != nil {
		return nil, false
	}
	var extra yaml.Node
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, false
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, false
	}
	seq := doc.Content[0]
	if seq.Kind != yaml.SequenceNode || seq.Style&yaml.FlowStyle == 0 {
		return nil, false
	}

	out := make([]string, 0, len(seq.Content))
	for _, item := range seq.Content {
		if item.Kind != yaml.ScalarNode || item.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) == 0 {
			return nil, false
		}
		out = append(out, item.Value)
	}
	return out, true
}

// splitLines splits on \n, \r\n and \r without a trailing empty item.
func splitLines(value string) []string {
	normalized := strings.ReplaceAll(value, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	normalized = strings.TrimSuffix(normalized, "\n")
	if normalized == "" {
		return []string{}
	}
	return strings.Split(normalized, "\n")
}

// ResolveDeferredTerms fills SQL-backed searches with query results.
// Params: context, parsed config, and term querier.
// Returns: copy of cfg with terms populated; cfg itself is left untouched.
func ResolveDeferredTerms(ctx context.Context, cfg DAGConfig, querier TermQuerier) (DAGConfig, error) {
	resolved := cfg
	resolved.Search = make([]SearchConfig, len(cfg.Search))
	copy(resolved.Search, cfg.Search)
	for i, search := range resolved.Search {
		if !search.UsesSQL() {
			continue
		}
		terms, err := querier.RunQuery(ctx, search.SQL, search.ConnID)
		if err != nil {
			return DAGConfig{}, fmt.Errorf("resolve terms for search %d of %s: %w", i, cfg.DagID, err)
		}
		resolved.Search[i].Terms = terms
	}
	return resolved, nil
}
