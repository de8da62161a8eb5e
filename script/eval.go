package script

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Template evaluates ${...} expressions embedded in a string.
type Template struct {
	raw    string
	parts  []string
	codes  []Script
	engine Compiler
}

var templateExprRe = regexp.MustCompile(`\${([^}]+)}`)

// NewTemplate compiles all ${...} expressions in the raw string.
func NewTemplate(engine Compiler, raw string) (*Template, error) {
	// Validate that all ${...} expressions are properly closed
	openCount := strings.Count(raw, "${")
	closeCount := strings.Count(raw, "}")
	if openCount > closeCount {
		return nil, fmt.Errorf("unclosed template expression in string: %q", raw)
	}

	matches := templateExprRe.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		// No template variables, just return the raw string
		return &Template{raw: raw, engine: engine}, nil
	}

	var lastEnd int
	var parts []string
	var codes []Script
	for _, match := range matches {
		if match[0] > lastEnd {
			parts = append(parts, raw[lastEnd:match[0]])
		}
		expr := raw[match[2]:match[3]]
		script, err := engine.Compile(context.Background(), expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile template expression %q: %w", expr, err)
		}
		codes = append(codes, script)
		parts = append(parts, "") // Placeholder for the evaluated result
		lastEnd = match[1]
	}
	if lastEnd < len(raw) {
		parts = append(parts, raw[lastEnd:])
	}

	return &Template{
		raw:    raw,
		parts:  parts,
		codes:  codes,
		engine: engine,
	}, nil
}

// Eval evaluates the template with the given globals.
func (e *Template) Eval(ctx context.Context, globals map[string]any) (string, error) {
	if len(e.codes) == 0 {
		return e.raw, nil
	}

	parts := make([]string, len(e.parts))
	copy(parts, e.parts)

	for _, code := range e.codes {
		result, err := code.Evaluate(ctx, globals)
		if err != nil {
			return "", fmt.Errorf("failed to evaluate template expression: %w", err)
		}
		for j := range parts {
			if parts[j] == "" {
				parts[j] = result.String()
				break
			}
		}
	}
	return strings.Join(parts, ""), nil
}
