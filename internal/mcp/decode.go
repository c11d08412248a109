package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/terminus-industrials/intake/internal/submission"
)

// decode round-trips the tool arguments through JSON into T.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("unmarshal args: %w", err)
	}
	return result, nil
}

// Values is a field name → value map as agents send it: each value is a
// string or, for multi-choice fields, an array of strings.
type Values map[string]submission.Value

// raw converts v to the name → values form the ops layer takes.
func (v Values) raw() map[string][]string {
	out := make(map[string][]string, len(v))
	for name, val := range v {
		out[name] = val.Items()
	}
	return out
}
