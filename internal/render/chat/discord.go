package chat

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"dounotify/internal/report"
	"dounotify/internal/templatefmt"
)

const (
	discordContentLimit = 2000
	// discordAbstractLimit leaves room for the title and link within one message.
	discordAbstractLimit = 1500
)

var (
	discordGroupTemplate = template.Must(templatefmt.ParseMessageTemplate(
		"discord.group", `**Grupo: {{ .Label }}**`))
	discordTermTemplate = template.Must(templatefmt.ParseMessageTemplate(
		"discord.term", `**Termo: {{ .Term }}**`))
	discordMatchTemplate = template.Must(templatefmt.ParseMessageTemplate(
		"discord.match", "## [{{ .Title }}]({{ .Href }})\n{{ truncate "+strconv.Itoa(discordAbstractLimit)+" .Abstract }}"))
)

// DiscordMessage is one webhook execution body.
type DiscordMessage struct {
	Content string `json:"content"`
}

// DiscordMessages converts the report into ordered webhook messages.
// Params: search report.
// Returns: one message per labeled group, matched term, and match.
func DiscordMessages(rep report.Report) ([]DiscordMessage, error) {
	var (
		messages []DiscordMessage
		err      error
	)
	report.Walk(rep, func(ev report.Event) {
		if err != nil {
			return
		}
		var message DiscordMessage
		switch ev.Kind {
		case report.EventGroup:
			label := ev.GroupLabel()
			if label == "" {
				return
			}
			message, err = renderDiscord(discordGroupTemplate, struct{ Label string }{label})
		case report.EventTerm:
			if len(ev.Term.Matches) == 0 {
				return
			}
			message, err = renderDiscord(discordTermTemplate, ev.Term)
		case report.EventMatch:
			message, err = renderDiscord(discordMatchTemplate, ev.Match)
		default:
			return
		}
		if err == nil {
			messages = append(messages, message)
		}
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// DiscordNoResults builds the message posted when nothing matched.
func DiscordNoResults(text string) []DiscordMessage {
	return []DiscordMessage{{Content: templatefmt.Truncate(discordContentLimit, text)}}
}

func renderDiscord(tmpl *template.Template, data any) (DiscordMessage, error) {
	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return DiscordMessage{}, fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return DiscordMessage{Content: templatefmt.Truncate(discordContentLimit, out.String())}, nil
}
