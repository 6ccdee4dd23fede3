package report

// EventKind identifies one step of report traversal.
type EventKind int

const (
	// EventBlockStart opens a block; Block carries header and department.
	EventBlockStart EventKind = iota
	// EventGroup opens a group; GroupLabel is empty for SingleGroup.
	EventGroup
	// EventTerm opens a term inside the current group.
	EventTerm
	// EventMatch carries one match of the current term.
	EventMatch
	// EventBlockEnd closes the current block.
	EventBlockEnd
)

// Event is one step of the shared traversal order used by every renderer.
type Event struct {
	Kind  EventKind
	Block *Block
	Group *Group
	Term  *TermResult
	Match Match
}

// GroupLabel returns the displayable group name.
// Params: none.
// Returns: group name, or empty string for SingleGroup and non-group events.
func (e Event) GroupLabel() string {
	if e.Group == nil || !e.Group.Labeled() {
		return ""
	}
	return e.Group.Name
}

// Walk visits report contents in declaration order.
// Params: report and visitor callback.
// Returns: nothing; fn sees block, group, term, match and block-end events.
func Walk(r Report, fn func(Event)) {
	for bi := range r.Blocks {
		block := &r.Blocks[bi]
		fn(Event{Kind: EventBlockStart, Block: block})
		for gi := range block.Groups {
			group := &block.Groups[gi]
			fn(Event{Kind: EventGroup, Block: block, Group: group})
			for ti := range group.Terms {
				term := &group.Terms[ti]
				fn(Event{Kind: EventTerm, Block: block, Group: group, Term: term})
				for _, match := range term.Matches {
					fn(Event{Kind: EventMatch, Block: block, Group: group, Term: term, Match: match})
				}
			}
		}
		fn(Event{Kind: EventBlockEnd, Block: block})
	}
}

// Row is one flattened (block, group, term, match) tuple.
type Row struct {
	Header string
	Group  string
	Term   string
	Match  Match
}

// Rows flattens report matches in traversal order.
// Params: report.
// Returns: one row per match.
func Rows(r Report) []Row {
	var rows []Row
	Walk(r, func(ev Event) {
		if ev.Kind != EventMatch {
			return
		}
		rows = append(rows, Row{
			Header: ev.Block.Header,
			Group:  ev.Group.Name,
			Term:   ev.Term.Term,
			Match:  ev.Match,
		})
	})
	return rows
}
