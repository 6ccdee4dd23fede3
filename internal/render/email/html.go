package email

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"html"
	"os"
	"strings"

	"dounotify/internal/dag"
	"dounotify/internal/report"

	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

const emptyGroupMessage = "Nenhum dos termos pesquisados foi encontrado nesta consulta."

//go:embed style.css
var defaultStylesheet string

// ErrSkip signals that the report is empty and the DAG asked to skip notifications.
var ErrSkip = errors.New("notification skipped: no matches found")

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	`*`, `\*`,
	`_`, `\_`,
	`[`, `\[`,
	`]`, `\]`,
	`<`, `&lt;`,
	`#`, `\#`,
)

// Renderer turns search reports into HTML email bodies.
// Params: stylesheet injected into the document head and markdown engine.
// Returns: reusable renderer.
type Renderer struct {
	stylesheet string
	markdown   goldmark.Markdown
}

// NewRenderer builds renderer with a custom stylesheet.
// Params: CSS text; empty uses the embedded default stylesheet.
// Returns: renderer ready for RenderHTML.
func NewRenderer(stylesheet string) *Renderer {
	if strings.TrimSpace(stylesheet) == "" {
		stylesheet = defaultStylesheet
	}
	return &Renderer{
		stylesheet: stylesheet,
		markdown: goldmark.New(
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
	}
}

// LoadStylesheet reads CSS from disk.
// Params: stylesheet path; empty path returns the embedded default.
// Returns: CSS text or read error.
func LoadStylesheet(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return defaultStylesheet, nil
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read stylesheet %q: %w", path, err)
	}
	return string(body), nil
}

// RenderHTML builds the email body for one report.
// Params: search report and DAG settings (skip_null, texts, hide_filters).
// Returns: HTML document, ErrSkip for suppressed empty reports, or render error.
func (r *Renderer) RenderHTML(rep report.Report, cfg dag.DAGConfig) (string, error) {
	if rep.IsEmpty() {
		if cfg.SkipNull {
			return "", ErrSkip
		}
		return r.expand(r.emptyFragments(cfg))
	}
	return r.expand(r.fragments(rep, cfg))
}

// expand converts markdown fragments into HTML.
func (r *Renderer) expand(fragments []string) (string, error) {
	var out bytes.Buffer
	if err := r.markdown.Convert([]byte(strings.Join(fragments, "\n")), &out); err != nil {
		return "", fmt.Errorf("convert report markdown: %w", err)
	}
	return out.String(), nil
}

func (r *Renderer) styleFragment() string {
	return "<style>\n" + r.stylesheet + "</style>\n"
}

// emptyFragments renders the single "nothing found" document.
func (r *Renderer) emptyFragments(cfg dag.DAGConfig) []string {
	fragments := []string{r.styleFragment()}
	if cfg.HeaderText != "" {
		fragments = append(fragments, cfg.HeaderText, "")
	}
	fragments = append(fragments, "<p>"+html.EscapeString(cfg.NoResultsFoundText)+"</p>", "")
	if cfg.FooterText != "" {
		fragments = append(fragments, cfg.FooterText)
	}
	return fragments
}

// fragments assembles markdown fragments following report.Walk order.
func (r *Renderer) fragments(rep report.Report, cfg dag.DAGConfig) []string {
	fragments := []string{r.styleFragment()}
	if cfg.HeaderText != "" {
		fragments = append(fragments, cfg.HeaderText, "")
	}

	report.Walk(rep, func(ev report.Event) {
		switch ev.Kind {
		case report.EventBlockStart:
			if ev.Block.Header != "" {
				fragments = append(fragments, "# "+escapeMarkdown(ev.Block.Header), "")
			}
			if len(ev.Block.Department) > 0 && !cfg.HideFilters {
				fragments = append(fragments, departmentFragment(ev.Block.Department), "")
			}
		case report.EventGroup:
			if len(ev.Group.Terms) == 0 {
				fragments = append(fragments, emptyGroupMessage, "")
				return
			}
			if label := ev.GroupLabel(); label != "" {
				fragments = append(fragments, "", "**Grupo: "+escapeMarkdown(label)+"**", "")
			}
		case report.EventTerm:
			fragments = append(fragments, "", "* # Resultados para: "+escapeMarkdown(ev.Term.Term), "")
		case report.EventMatch:
			fragments = append(fragments, matchFragment(ev.Match))
		case report.EventBlockEnd:
			fragments = append(fragments, "", "---", "")
		}
	})

	if cfg.FooterText != "" {
		fragments = append(fragments, cfg.FooterText)
	}
	return fragments
}

func departmentFragment(departments []string) string {
	lines := []string{
		`<p class="secao-marker">Filtrando resultados somente para:</p>`,
		"<ul>",
	}
	for _, department := range departments {
		lines = append(lines, "<li>"+html.EscapeString(department)+"</li>")
	}
	lines = append(lines, "</ul>")
	return strings.Join(lines, "\n")
}

// matchFragment renders one match nested under the current term list item.
// Abstract is passed through untouched since it carries highlight markup.
func matchFragment(match report.Match) string {
	lines := []string{
		`<p class="secao-marker">` + html.EscapeString(match.Section) + `</p>`,
		"",
		"### [" + escapeMarkdown(match.Title) + "](<" + match.Href + ">)",
		"",
		`<p class='abstract-marker'>` + match.Abstract + `</p>`,
		"",
		`<p class='date-marker'>` + html.EscapeString(match.Date) + `</p>`,
		"",
	}
	for i, line := range lines {
		if line != "" {
			lines[i] = "    " + line
		}
	}
	return strings.Join(lines, "\n")
}

func escapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}
