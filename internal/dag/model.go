package dag

import "sort"

const (
	defaultSource             = "DOU"
	defaultDOUSection         = "TODOS"
	defaultField              = "TUDO"
	defaultSearchDate         = "DIA"
	defaultSubject            = "Extraçao do DOU"
	defaultNoResultsFoundText = "Nenhum dos termos pesquisados foi encontrado nesta consulta"

	// TagDOU is always attached to generated DAG tags.
	TagDOU = "dou"
	// TagGeneratedDAG is always attached to generated DAG tags.
	TagGeneratedDAG = "generated_dag"
)

// SearchConfig describes one declared search unit.
// Params: YAML `search` entry after defaults and term resolution.
// Returns: immutable search definition consumed by the search engine.
type SearchConfig struct {
	Header               string   `json:"header,omitempty"`
	Sources              []string `json:"sources"`
	TerritoryID          *int     `json:"territory_id,omitempty"`
	DOUSections          []string `json:"dou_sections"`
	Field                string   `json:"field"`
	SearchDate           string   `json:"search_date"`
	IsExactSearch        bool     `json:"is_exact_search"`
	IgnoreSignatureMatch bool     `json:"ignore_signature_match"`
	ForceRematch         *bool    `json:"force_rematch,omitempty"`
	FullText             *bool    `json:"full_text,omitempty"`
	UseSummary           *bool    `json:"use_summary,omitempty"`
	Terms                []string `json:"terms"`
	SQL                  string   `json:"sql,omitempty"`
	ConnID               string   `json:"conn_id,omitempty"`
	Department           []string `json:"department,omitempty"`
}

// UsesSQL reports whether terms are deferred to a database query.
// Params: none.
// Returns: true when the search was declared with `from_db_select`.
func (s SearchConfig) UsesSQL() bool {
	return s.SQL != ""
}

// DAGConfig is the fully resolved search-and-report configuration.
// Params: parsed YAML document.
// Returns: configuration snapshot for one parse-then-notify cycle.
type DAGConfig struct {
	DagID              string         `json:"dag_id"`
	Search             []SearchConfig `json:"search"`
	Emails             []string       `json:"emails"`
	Subject            string         `json:"subject"`
	AttachCSV          bool           `json:"attach_csv"`
	DiscordWebhook     string         `json:"discord_webhook,omitempty"`
	SlackWebhook       string         `json:"slack_webhook,omitempty"`
	Schedule           string         `json:"schedule,omitempty"`
	Dataset            string         `json:"dataset,omitempty"`
	Description        string         `json:"description"`
	SkipNull           bool           `json:"skip_null"`
	DocMD              string         `json:"doc_md,omitempty"`
	Tags               []string       `json:"dag_tags"`
	Owner              string         `json:"owner"`
	HideFilters        bool           `json:"hide_filters"`
	HeaderText         string         `json:"header_text,omitempty"`
	FooterText         string         `json:"footer_text,omitempty"`
	NoResultsFoundText string         `json:"no_results_found_text"`
}

// tagSet merges declared tags with the fixed defaults as a sorted set.
func tagSet(declared []string) []string {
	seen := make(map[string]struct{}, len(declared)+2)
	for _, tag := range append(append([]string(nil), declared...), TagDOU, TagGeneratedDAG) {
		seen[tag] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
