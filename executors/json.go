package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/greenlight"
)

// JSONExecutor parses, formats, and queries JSON data.
type JSONExecutor struct{}

func NewJSONExecutor() *JSONExecutor {
	return &JSONExecutor{}
}

func (e *JSONExecutor) Type() string {
	return "json"
}

func (e *JSONExecutor) Execute(ctx context.Context, node *greenlight.Node, input map[string]any) (*greenlight.NodeResult, error) {
	operation := strings.ToLower(configString(node, "operation"))
	if operation == "" {
		operation = "parse"
	}
	data := configString(node, "data")

	switch operation {
	case "parse":
		var result any
		if err := json.Unmarshal([]byte(data), &result); err != nil {
			return nil, err
		}
		return greenlight.Success(result), nil

	case "stringify":
		var parsed any
		if err := json.Unmarshal([]byte(data), &parsed); err != nil {
			return nil, err
		}
		formatted, err := json.MarshalIndent(parsed, "", "  ")
		if err != nil {
			return nil, err
		}
		return greenlight.Success(string(formatted)), nil

	case "query":
		query := configString(node, "query")
		if query == "" {
			return nil, fmt.Errorf("query cannot be empty for query operation")
		}
		var parsed any
		if err := json.Unmarshal([]byte(data), &parsed); err != nil {
			return nil, err
		}
		result, err := queryJSON(parsed, query)
		if err != nil {
			return nil, err
		}
		return greenlight.Success(result), nil

	case "validate":
		var parsed any
		if err := json.Unmarshal([]byte(data), &parsed); err != nil {
			return greenlight.Success(false), nil
		}
		return greenlight.Success(true), nil

	default:
		return nil, fmt.Errorf("unsupported operation: %s", operation)
	}
}

// queryJSON walks a dot-notation path through parsed JSON.
func queryJSON(data any, query string) (any, error) {
	if query == "" || query == "." {
		return data, nil
	}
	query = strings.TrimPrefix(query, ".")
	current := data
	for _, part := range strings.Split(query, ".") {
		if part == "" {
			continue
		}
		switch v := current.(type) {
		case map[string]any:
			value, exists := v[part]
			if !exists {
				return nil, fmt.Errorf("key %q not found", part)
			}
			current = value
		case []any:
			var idx int
			if _, err := fmt.Sscanf(part, "%d", &idx); err != nil {
				return nil, fmt.Errorf("invalid array index %q", part)
			}
			if idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("array index %d out of bounds", idx)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot query into non-object, non-array value")
		}
	}
	return current, nil
}
