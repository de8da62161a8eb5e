// Package executors provides the built-in node executors: human approval,
// scripting, HTTP requests, printing, delays, JSON handling, and a
// configurable failure for exercising retry behavior.
package executors

import (
	"fmt"

	"github.com/deepnoodle-ai/greenlight"
)

// Defaults returns the full built-in executor set.
func Defaults() []greenlight.NodeExecutor {
	return []greenlight.NodeExecutor{
		NewApprovalExecutor(),
		NewScriptExecutor(),
		NewHTTPExecutor(),
		NewPrintExecutor(),
		NewWaitExecutor(),
		NewJSONExecutor(),
		NewFailExecutor(),
	}
}

// configString reads a string value from the node config.
func configString(node *greenlight.Node, key string) string {
	if node.Config == nil {
		return ""
	}
	value, _ := node.Config[key].(string)
	return value
}

// configValue reads an arbitrary value from the node config.
func configValue(node *greenlight.Node, key string) any {
	if node.Config == nil {
		return nil
	}
	return node.Config[key]
}

// configStringMap reads a map of strings from the node config.
func configStringMap(node *greenlight.Node, key string) map[string]string {
	raw, ok := configValue(node, key).(map[string]any)
	if !ok {
		return nil
	}
	result := make(map[string]string, len(raw))
	for k, v := range raw {
		result[k] = fmt.Sprintf("%v", v)
	}
	return result
}
