package greenlight

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
)

// WorkflowFormatter interface for pretty output
type WorkflowFormatter interface {
	PrintNodeStart(nodeID string, nodeType string)
	PrintNodeOutput(nodeID string, output any)
	PrintNodeError(nodeID string, err error)
	PrintPause(nodeID string, reason string, actions []TaskAction)
}

// ConsoleWorkflowFormatter prints colorized progress to stdout.
type ConsoleWorkflowFormatter struct{}

func NewConsoleWorkflowFormatter() *ConsoleWorkflowFormatter {
	return &ConsoleWorkflowFormatter{}
}

func (f *ConsoleWorkflowFormatter) PrintNodeStart(nodeID string, nodeType string) {
	color.Cyan("▶ %s (%s)", nodeID, nodeType)
}

func (f *ConsoleWorkflowFormatter) PrintNodeOutput(nodeID string, output any) {
	if output == nil {
		color.Green("✔ %s", nodeID)
		return
	}
	data, err := json.Marshal(output)
	if err != nil {
		color.Green("✔ %s: %v", nodeID, output)
		return
	}
	color.Green("✔ %s: %s", nodeID, string(data))
}

func (f *ConsoleWorkflowFormatter) PrintNodeError(nodeID string, err error) {
	color.Red("✘ %s: %v", nodeID, err)
}

func (f *ConsoleWorkflowFormatter) PrintPause(nodeID string, reason string, actions []TaskAction) {
	color.Yellow("⏸ %s waiting for human review", nodeID)
	if reason != "" {
		color.White("  %s", reason)
	}
	for _, action := range actions {
		label := action.Label
		if label == "" {
			label = action.ID
		}
		fmt.Printf("  - %s (%s)\n", label, action.ID)
	}
}
