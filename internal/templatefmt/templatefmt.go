package templatefmt

import (
	"text/template"
	"unicode/utf8"
)

const ellipsis = "…"

// FuncMap returns shared chat message template helpers.
// Params: none.
// Returns: helper map used by chat renderers.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"truncate": Truncate,
	}
}

// ParseMessageTemplate parses one chat message template with shared helpers.
// Params: template name and body.
// Returns: compiled template or parse error.
func ParseMessageTemplate(name, body string) (*template.Template, error) {
	return template.New(name).Funcs(FuncMap()).Option("missingkey=error").Parse(body)
}

// Truncate shortens text to limit runes, ending with an ellipsis when cut.
// Params: rune limit and text.
// Returns: text unchanged when it fits, otherwise a cut version of exactly limit runes.
func Truncate(limit int, text string) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	if limit == 1 {
		return string(runes[:1])
	}
	return string(runes[:limit-1]) + ellipsis
}
