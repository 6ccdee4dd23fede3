package report

import (
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// ErrInvalidReport is returned when the search output does not follow the report shape.
var ErrInvalidReport = errors.New("invalid search report")

// LoadFile reads one search report JSON file.
// Params: file path.
// Returns: decoded report or read/decode error.
func LoadFile(path string) (Report, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("read report file %q: %w", path, err)
	}
	report, err := Decode(body)
	if err != nil {
		return Report{}, fmt.Errorf("decode report file %q: %w", path, err)
	}
	return report, nil
}

// Decode parses search engine output keeping group and term order.
// Params: JSON array of blocks `{"header","department","result":{group:{term:[match]}}}`.
// Returns: decoded report or ErrInvalidReport wrapped with the offending path.
func Decode(body []byte) (Report, error) {
	if !gjson.ValidBytes(body) {
		return Report{}, fmt.Errorf("%w: malformed json", ErrInvalidReport)
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return Report{}, fmt.Errorf("%w: top level must be an array of blocks", ErrInvalidReport)
	}

	var report Report
	for index, value := range root.Array() {
		block, err := decodeBlock(index, value)
		if err != nil {
			return Report{}, err
		}
		report.Blocks = append(report.Blocks, block)
	}
	return report, nil
}

// decodeBlock decodes one block preserving object key order.
// Params: block index for error paths and raw block value.
// Returns: decoded block.
func decodeBlock(index int, value gjson.Result) (Block, error) {
	path := fmt.Sprintf("[%d]", index)
	if !value.IsObject() {
		return Block{}, fmt.Errorf("%w: %s must be an object", ErrInvalidReport, path)
	}

	header := value.Get("header")
	block := Block{
		Header:    header.String(),
		HeaderSet: header.Exists() && header.Type != gjson.Null,
	}
	department := value.Get("department")
	if department.Exists() && department.Type != gjson.Null {
		if !department.IsArray() {
			return Block{}, fmt.Errorf("%w: %s.department must be an array", ErrInvalidReport, path)
		}
		for _, item := range department.Array() {
			block.Department = append(block.Department, item.String())
		}
	}

	result := value.Get("result")
	if !result.IsObject() {
		return Block{}, fmt.Errorf("%w: %s.result must be an object", ErrInvalidReport, path)
	}

	var err error
	result.ForEach(func(groupKey, groupValue gjson.Result) bool {
		group := Group{Name: groupKey.String()}
		if !groupValue.IsObject() {
			err = fmt.Errorf("%w: %s.result.%s must be an object", ErrInvalidReport, path, group.Name)
			return false
		}
		groupValue.ForEach(func(termKey, termValue gjson.Result) bool {
			term := TermResult{Term: termKey.String(), Matches: []Match{}}
			if !termValue.IsArray() {
				err = fmt.Errorf("%w: %s.result.%s.%s must be an array", ErrInvalidReport, path, group.Name, term.Term)
				return false
			}
			for _, item := range termValue.Array() {
				term.Matches = append(term.Matches, Match{
					Section:  item.Get("section").String(),
					Href:     item.Get("href").String(),
					Title:    item.Get("title").String(),
					Abstract: item.Get("abstract").String(),
					Date:     item.Get("date").String(),
				})
			}
			group.Terms = append(group.Terms, term)
			return true
		})
		if err != nil {
			return false
		}
		block.Groups = append(block.Groups, group)
		return true
	})
	if err != nil {
		return Block{}, err
	}
	return block, nil
}
