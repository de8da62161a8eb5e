package executors

import (
	"context"
	"fmt"
	"time"

	"github.com/deepnoodle-ai/greenlight"
)

// WaitExecutor delays traversal for a configured duration.
type WaitExecutor struct{}

func NewWaitExecutor() *WaitExecutor {
	return &WaitExecutor{}
}

func (e *WaitExecutor) Type() string {
	return "wait"
}

func (e *WaitExecutor) Execute(ctx context.Context, node *greenlight.Node, input map[string]any) (*greenlight.NodeResult, error) {
	raw := configValue(node, "duration")
	if raw == nil {
		return nil, fmt.Errorf("wait requires 'duration' parameter")
	}

	var duration time.Duration
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid duration format: %w", err)
		}
		duration = parsed
	case time.Duration:
		duration = v
	case float64:
		// Seconds as a float
		duration = time.Duration(v * float64(time.Second))
	case int:
		duration = time.Duration(v) * time.Second
	default:
		return nil, fmt.Errorf("duration must be a string, time.Duration, or number of seconds")
	}

	if duration <= 0 {
		return greenlight.Success("no delay specified"), nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(duration):
		return greenlight.Success(fmt.Sprintf("waited %s", duration)), nil
	}
}
