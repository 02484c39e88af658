package types

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Output types for dynamic blocks
const (
	OutputBullets        = "bullets"
	OutputList           = "list"
	OutputTable          = "table"
	OutputTableNoBorders = "table-no-borders"
	OutputParagraph      = "paragraph"
)

// DynamicBlock is a conditionally assembled content fragment.
// Conditions and AlwaysInclude hold either a JSON array or a JSON string
// containing a serialized array; they are parsed on use.
type DynamicBlock struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	OutputType    string          `json:"outputType"`
	Conditions    json.RawMessage `json:"conditions,omitempty"`
	AlwaysInclude json.RawMessage `json:"alwaysInclude,omitempty"`
}

// Condition is a single numeric comparison rule inside a dynamic block.
type Condition struct {
	Field    string    `json:"field"`
	Operator string    `json:"operator"`
	Value    RuleValue `json:"value"`
	Label    string    `json:"label"`
}

// AlwaysIncludeItem is emitted whenever its value field resolves.
type AlwaysIncludeItem struct {
	Label      string `json:"label"`
	ValueField string `json:"valueField"`
}

// BlockItem is a rendered label/value pair.
type BlockItem struct {
	Label string
	Value string
}

// RuleValue holds a condition threshold. Imported rules carry it either as
// a JSON string or as a JSON number; both decode to the textual form.
type RuleValue string

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (v *RuleValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = RuleValue(s)
		return nil
	}
	*v = RuleValue(strings.TrimSpace(string(data)))
	return nil
}
