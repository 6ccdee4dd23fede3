package report

// SingleGroup marks results that were not split into named groups.
// Renderers never print a label for it.
const SingleGroup = "single_group"

// Match is one publication found for a search term.
type Match struct {
	Section  string `json:"section"`
	Href     string `json:"href"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Date     string `json:"date"`
}

// TermResult keeps matches of one term in search-engine order.
type TermResult struct {
	Term    string  `json:"term"`
	Matches []Match `json:"matches"`
}

// Group holds term results of one named group.
type Group struct {
	Name  string       `json:"name"`
	Terms []TermResult `json:"terms"`
}

// Labeled reports whether the group name must be displayed.
func (g Group) Labeled() bool {
	return g.Name != SingleGroup
}

// Block is the result of one configured search unit.
type Block struct {
	Header string `json:"header,omitempty"`
	// HeaderSet is true when the search declared a header, even an empty one.
	HeaderSet  bool     `json:"-"`
	Department []string `json:"department,omitempty"`
	Groups     []Group  `json:"result"`
}

// Report is the search output for one notification cycle.
type Report struct {
	Blocks []Block `json:"blocks"`
}

// IsEmpty reports whether no term of any block matched anything.
// Params: none.
// Returns: true when every match list is empty.
func (r Report) IsEmpty() bool {
	for _, block := range r.Blocks {
		for _, group := range block.Groups {
			for _, term := range group.Terms {
				if len(term.Matches) > 0 {
					return false
				}
			}
		}
	}
	return true
}

// HasHeaders reports whether at least one block carries a header.
// An explicit empty header counts; only absent or null headers do not.
func (r Report) HasHeaders() bool {
	for _, block := range r.Blocks {
		if block.Header != "" || block.HeaderSet {
			return true
		}
	}
	return false
}

// UsesSingleGroup reports whether any block contains the ungrouped sentinel.
func (r Report) UsesSingleGroup() bool {
	for _, block := range r.Blocks {
		for _, group := range block.Groups {
			if group.Name == SingleGroup {
				return true
			}
		}
	}
	return false
}
