package dag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// VariableLookup reads one value from the external variable store.
// Params: context and variable name.
// Returns: stored raw value or store error.
type VariableLookup interface {
	Lookup(ctx context.Context, name string) (string, error)
}

// Parser turns DAG YAML documents into validated DAGConfig snapshots.
// Params: variable lookup used by `from_airflow_variable` term lists.
// Returns: stateless parser safe for reuse across files.
type Parser struct {
	lookup VariableLookup
}

// NewParser builds parser bound to a variable store.
// Params: lookup may be nil when no DAG uses variable indirection.
// Returns: parser instance.
func NewParser(lookup VariableLookup) *Parser {
	return &Parser{lookup: lookup}
}

// ParseFile reads and parses one DAG YAML file.
// Params: context and file path.
// Returns: resolved DAG config or read/validation error.
func (p *Parser) ParseFile(ctx context.Context, path string) (DAGConfig, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return DAGConfig{}, fmt.Errorf("read dag file %q: %w", path, err)
	}
	return p.Parse(ctx, path, body)
}

// Parse decodes YAML body and normalizes it into DAGConfig.
// Params: context, source path used in error messages, and raw YAML.
// Returns: resolved DAG config or the first validation error.
func (p *Parser) Parse(ctx context.Context, path string, body []byte) (DAGConfig, error) {
	var root map[string]any
	if err := yaml.Unmarshal(body, &root); err != nil {
		return DAGConfig{}, fmt.Errorf("decode dag file %q: %w", path, err)
	}
	doc := &document{file: filepath.Base(path), lookup: p.lookup}
	return doc.build(ctx, root)
}

// document carries per-file state while one YAML tree is normalized.
type document struct {
	file   string
	lookup VariableLookup
}

// build walks the decoded YAML tree and produces the DAG config.
// Params: context for variable lookups and decoded root mapping.
// Returns: DAG config or ConfigError.
func (d *document) build(ctx context.Context, root map[string]any) (DAGConfig, error) {
	dagNode, err := d.requireMap(root, "dag")
	if err != nil {
		return DAGConfig{}, err
	}
	dagID, err := d.requireString(dagNode, "id")
	if err != nil {
		return DAGConfig{}, err
	}
	description, err := d.requireString(dagNode, "description")
	if err != nil {
		return DAGConfig{}, err
	}
	report, err := d.reportSection(root, dagNode)
	if err != nil {
		return DAGConfig{}, err
	}
	searchNode, err := d.require(dagNode, "search")
	if err != nil {
		return DAGConfig{}, err
	}
	search, err := d.buildSearches(ctx, searchNode)
	if err != nil {
		return DAGConfig{}, err
	}

	cfg := DAGConfig{
		DagID:       dagID,
		Search:      search,
		Description: description,
	}

	owners, err := d.optionalStrings(dagNode, "owner", nil)
	if err != nil {
		return DAGConfig{}, err
	}
	cfg.Owner = strings.Join(owners, ", ")
	if cfg.Schedule, err = d.optionalString(dagNode, "schedule", ""); err != nil {
		return DAGConfig{}, err
	}
	if cfg.Dataset, err = d.optionalString(dagNode, "dataset", ""); err != nil {
		return DAGConfig{}, err
	}
	docMD, err := d.optionalString(dagNode, "doc_md", "")
	if err != nil {
		return DAGConfig{}, err
	}
	cfg.DocMD = dedent(docMD)
	declaredTags, err := d.optionalStrings(dagNode, "tags", nil)
	if err != nil {
		return DAGConfig{}, err
	}
	cfg.Tags = tagSet(declaredTags)

	if err := d.applyReport(&cfg, report); err != nil {
		return DAGConfig{}, err
	}
	return cfg, nil
}

// reportSection locates the report mapping in current or top-level shape.
// Params: root document and dag mapping.
// Returns: report mapping or ConfigError naming `report`.
func (d *document) reportSection(root, dagNode map[string]any) (map[string]any, error) {
	if _, ok := present(dagNode, "report"); ok {
		return d.requireMap(dagNode, "report")
	}
	if _, ok := present(root, "report"); ok {
		return d.requireMap(root, "report")
	}
	return nil, &ConfigError{File: d.file, Field: "report"}
}

// applyReport copies report settings into cfg with defaults.
// Params: destination config and report mapping.
// Returns: ConfigError on invalid report fields.
func (d *document) applyReport(cfg *DAGConfig, report map[string]any) error {
	var err error
	if cfg.Emails, err = d.optionalStrings(report, "emails", nil); err != nil {
		return err
	}
	if cfg.Subject, err = d.optionalString(report, "subject", defaultSubject); err != nil {
		return err
	}
	if cfg.AttachCSV, err = d.optionalBool(report, "attach_csv", false); err != nil {
		return err
	}
	if cfg.SkipNull, err = d.optionalBool(report, "skip_null", true); err != nil {
		return err
	}
	if cfg.HideFilters, err = d.optionalBool(report, "hide_filters", false); err != nil {
		return err
	}
	if cfg.HeaderText, err = d.optionalString(report, "header_text", ""); err != nil {
		return err
	}
	if cfg.FooterText, err = d.optionalString(report, "footer_text", ""); err != nil {
		return err
	}
	if cfg.NoResultsFoundText, err = d.optionalString(report, "no_results_found_text", defaultNoResultsFoundText); err != nil {
		return err
	}
	if cfg.DiscordWebhook, err = d.webhook(report, "discord"); err != nil {
		return err
	}
	if cfg.SlackWebhook, err = d.webhook(report, "slack"); err != nil {
		return err
	}
	return nil
}

// webhook reads `<parent>.webhook` when parent section is declared.
// Params: report mapping and chat platform key.
// Returns: webhook URL, empty string when parent is absent, or ConfigError.
func (d *document) webhook(report map[string]any, parent string) (string, error) {
	raw, ok := present(report, parent)
	if !ok || isEmptyValue(raw) {
		return "", nil
	}
	section, err := d.requireMap(report, parent)
	if err != nil {
		return "", err
	}
	return d.requireString(section, "webhook")
}

// buildSearches normalizes legacy single-block and list shapes.
// Params: context and raw `search` value.
// Returns: ordered search configs.
func (d *document) buildSearches(ctx context.Context, raw any) ([]SearchConfig, error) {
	var blocks []any
	switch typed := raw.(type) {
	case []any:
		blocks = typed
	default:
		blocks = []any{typed}
	}

	out := make([]SearchConfig, 0, len(blocks))
	for _, block := range blocks {
		node, ok := block.(map[string]any)
		if !ok {
			return nil, d.invalid("search", "deve ser um objeto ou uma lista de objetos")
		}
		search, err := d.buildSearch(ctx, node)
		if err != nil {
			return nil, err
		}
		out = append(out, search)
	}
	return out, nil
}

// buildSearch applies defaults to one search block.
// Params: context and search mapping.
// Returns: normalized search config.
func (d *document) buildSearch(ctx context.Context, node map[string]any) (SearchConfig, error) {
	var (
		search SearchConfig
		err    error
	)
	if search.Header, err = d.optionalString(node, "header", ""); err != nil {
		return SearchConfig{}, err
	}
	if search.Sources, err = d.optionalStrings(node, "sources", []string{defaultSource}); err != nil {
		return SearchConfig{}, err
	}
	if search.Terms, search.SQL, search.ConnID, err = d.resolveTerms(ctx, node); err != nil {
		return SearchConfig{}, err
	}
	if search.TerritoryID, err = d.optionalIntPtr(node, "territory_id"); err != nil {
		return SearchConfig{}, err
	}
	if search.DOUSections, err = d.optionalStrings(node, "dou_sections", []string{defaultDOUSection}); err != nil {
		return SearchConfig{}, err
	}
	if search.SearchDate, err = d.optionalString(node, "date", defaultSearchDate); err != nil {
		return SearchConfig{}, err
	}
	if search.Field, err = d.optionalString(node, "field", defaultField); err != nil {
		return SearchConfig{}, err
	}
	if search.IsExactSearch, err = d.optionalBool(node, "is_exact_search", true); err != nil {
		return SearchConfig{}, err
	}
	if search.IgnoreSignatureMatch, err = d.optionalBool(node, "ignore_signature_match", false); err != nil {
		return SearchConfig{}, err
	}
	if search.ForceRematch, err = d.optionalBoolPtr(node, "force_rematch"); err != nil {
		return SearchConfig{}, err
	}
	if search.FullText, err = d.optionalBoolPtr(node, "full_text"); err != nil {
		return SearchConfig{}, err
	}
	if search.UseSummary, err = d.optionalBoolPtr(node, "use_summary"); err != nil {
		return SearchConfig{}, err
	}
	if search.Department, err = d.optionalStrings(node, "department", nil); err != nil {
		return SearchConfig{}, err
	}
	return search, nil
}

// present returns the value stored at key, treating YAML null as absent.
func present(node map[string]any, key string) (any, bool) {
	value, ok := node[key]
	if !ok || value == nil {
		return nil, false
	}
	return value, true
}

// isEmptyValue mirrors truthiness checks for optional sections.
func isEmptyValue(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return typed == ""
	case map[string]any:
		return len(typed) == 0
	case []any:
		return len(typed) == 0
	case bool:
		return !typed
	default:
		return false
	}
}

// require is the single funnel for mandatory fields.
// Params: mapping, field name, and optional message replacing the default one.
// Returns: field value or ConfigError carrying file and field.
func (d *document) require(node map[string]any, field string, message ...string) (any, error) {
	value, ok := present(node, field)
	if ok {
		return value, nil
	}
	err := &ConfigError{File: d.file, Field: field}
	if len(message) > 0 {
		err.Message = message[0]
	}
	return nil, err
}

// requireMap fetches a mandatory nested mapping.
func (d *document) requireMap(node map[string]any, field string) (map[string]any, error) {
	value, err := d.require(node, field)
	if err != nil {
		return nil, err
	}
	typed, ok := value.(map[string]any)
	if !ok {
		return nil, d.invalid(field, "deve ser um objeto")
	}
	return typed, nil
}

// requireString fetches a mandatory scalar as string.
func (d *document) requireString(node map[string]any, field string) (string, error) {
	value, err := d.require(node, field)
	if err != nil {
		return "", err
	}
	return d.scalarString(field, value)
}

// invalid builds a ConfigError for a field with wrong shape.
func (d *document) invalid(field, reason string) error {
	return &ConfigError{
		File:    d.file,
		Field:   field,
		Message: fmt.Sprintf("O campo `%s` %s.", field, reason),
	}
}

func (d *document) scalarString(field string, value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case int:
		return strconv.Itoa(typed), nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(typed), nil
	default:
		return "", d.invalid(field, "deve ser um texto")
	}
}

func (d *document) optionalString(node map[string]any, field, fallback string) (string, error) {
	value, ok := present(node, field)
	if !ok {
		return fallback, nil
	}
	return d.scalarString(field, value)
}

// optionalStrings reads a list of strings; a single scalar becomes a one-item list.
func (d *document) optionalStrings(node map[string]any, field string, fallback []string) ([]string, error) {
	value, ok := present(node, field)
	if !ok {
		return fallback, nil
	}
	return d.stringList(field, value)
}

func (d *document) stringList(field string, value any) ([]string, error) {
	items, ok := value.([]any)
	if !ok {
		single, err := d.scalarString(field, value)
		if err != nil {
			return nil, d.invalid(field, "deve ser uma lista de textos")
		}
		return []string{single}, nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		text, err := d.scalarString(field, item)
		if err != nil {
			return nil, d.invalid(field, "deve ser uma lista de textos")
		}
		out = append(out, text)
	}
	return out, nil
}

func (d *document) optionalBool(node map[string]any, field string, fallback bool) (bool, error) {
	value, ok := present(node, field)
	if !ok {
		return fallback, nil
	}
	typed, ok := value.(bool)
	if !ok {
		return false, d.invalid(field, "deve ser verdadeiro ou falso")
	}
	return typed, nil
}

func (d *document) optionalBoolPtr(node map[string]any, field string) (*bool, error) {
	if _, ok := present(node, field); !ok {
		return nil, nil
	}
	value, err := d.optionalBool(node, field, false)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (d *document) optionalIntPtr(node map[string]any, field string) (*int, error) {
	value, ok := present(node, field)
	if !ok {
		return nil, nil
	}
	switch typed := value.(type) {
	case int:
		return &typed, nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return nil, d.invalid(field, "deve ser um número inteiro")
		}
		return &parsed, nil
	default:
		return nil, d.invalid(field, "deve ser um número inteiro")
	}
}

// dedent removes whitespace common to every non-blank line.
// Params: multi-line text from YAML block scalars.
// Returns: text with shared indentation removed; blank lines emptied.
func dedent(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	margin := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			margin = indent
			first = false
			continue
		}
		margin = commonPrefix(margin, indent)
	}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = strings.TrimPrefix(line, margin)
	}
	return strings.Join(lines, "\n")
}

func commonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:n]
}
