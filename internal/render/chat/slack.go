package chat

import (
	"dounotify/internal/report"
	"dounotify/internal/templatefmt"
)

const (
	// PublicationCaption is the fixed date caption shown next to the open button.
	PublicationCaption = "Publicado em: 15/03/2023"
	openButtonLabel    = "Acessar publicação"
	openButtonValue    = "click_me_123"
	openButtonActionID = "button-action"

	slackHeaderLimit  = 150
	slackSectionLimit = 3000
)

// Text is a Slack block-kit text object.
type Text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// Accessory is the interactive element attached to a section block.
type Accessory struct {
	Type     string `json:"type"`
	Text     Text   `json:"text"`
	Value    string `json:"value"`
	URL      string `json:"url"`
	ActionID string `json:"action_id"`
}

// Block is one Slack block-kit block.
type Block struct {
	Type      string     `json:"type"`
	Text      *Text      `json:"text,omitempty"`
	Accessory *Accessory `json:"accessory,omitempty"`
}

// SlackPayload is the JSON body posted to an incoming webhook.
type SlackPayload struct {
	Blocks []Block `json:"blocks"`
}

// SlackBlocks converts the report into an ordered block sequence.
// Params: search report.
// Returns: header blocks for labeled groups and matched terms, four blocks per match.
func SlackBlocks(rep report.Report) []Block {
	var blocks []Block
	report.Walk(rep, func(ev report.Event) {
		switch ev.Kind {
		case report.EventGroup:
			if label := ev.GroupLabel(); label != "" {
				blocks = append(blocks, headerBlock("Grupo: "+label))
			}
		case report.EventTerm:
			if len(ev.Term.Matches) > 0 {
				blocks = append(blocks, headerBlock("Termo: "+ev.Term.Term))
			}
		case report.EventMatch:
			blocks = append(blocks, matchBlocks(ev.Match)...)
		}
	})
	return blocks
}

// SlackNoResults builds the single block posted when nothing matched.
// Params: configured no-results text.
// Returns: one section block.
func SlackNoResults(text string) []Block {
	return []Block{sectionBlock(text)}
}

// NewSlackPayload wraps blocks into the webhook body.
func NewSlackPayload(blocks []Block) SlackPayload {
	if blocks == nil {
		blocks = []Block{}
	}
	return SlackPayload{Blocks: blocks}
}

func headerBlock(text string) Block {
	return Block{
		Type: "header",
		Text: &Text{Type: "plain_text", Text: templatefmt.Truncate(slackHeaderLimit, text), Emoji: true},
	}
}

func sectionBlock(text string) Block {
	return Block{
		Type: "section",
		Text: &Text{Type: "mrkdwn", Text: templatefmt.Truncate(slackSectionLimit, text)},
	}
}

func matchBlocks(match report.Match) []Block {
	caption := sectionBlock(PublicationCaption)
	caption.Accessory = &Accessory{
		Type:     "button",
		Text:     Text{Type: "plain_text", Text: openButtonLabel, Emoji: true},
		Value:    openButtonValue,
		URL:      match.Href,
		ActionID: openButtonActionID,
	}
	return []Block{
		sectionBlock(match.Title),
		sectionBlock(match.Abstract),
		caption,
		{Type: "divider"},
	}
}
