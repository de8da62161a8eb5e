package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/deepnoodle-ai/greenlight"
	"github.com/deepnoodle-ai/greenlight/executors"
	"github.com/fatih/color"
)

// CLI configuration
type Config struct {
	WorkflowFile string
	Inputs       map[string]any
	DataDir      string
	Timeout      time.Duration
	Verbose      bool
	JSON         bool
	Interactive  bool

	ResumeID string
	Action   string
	Feedback string
}

func main() {
	config := parseFlags()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if config.Verbose {
		logger = greenlight.NewLogger()
	}

	store, stepLog, err := setupPersistence(config.DataDir)
	if err != nil {
		log.Fatalf("Failed to set up persistence: %v", err)
	}

	runner, err := greenlight.NewRunner(greenlight.RunnerOptions{
		Executors: executors.Defaults(),
		Store:     store,
		StepLog:   stepLog,
		Logger:    logger,
		Formatter: greenlight.NewConsoleWorkflowFormatter(),
	})
	if err != nil {
		log.Fatalf("Failed to create runner: %v", err)
	}

	ctx := context.Background()
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		color.Yellow("Timeout: %v", config.Timeout)
	}

	// A workflow definition is needed both to start a run and to resume one.
	if config.WorkflowFile == "" {
		color.Red("Error: workflow file is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(config.WorkflowFile); os.IsNotExist(err) {
		color.Red("Error: workflow file '%s' not found", config.WorkflowFile)
		os.Exit(1)
	}

	color.Blue("Loading workflow from: %s", config.WorkflowFile)
	wf, err := greenlight.LoadFile(config.WorkflowFile)
	if err != nil {
		log.Fatalf("Failed to load workflow: %v", err)
	}
	if err := runner.Register(wf); err != nil {
		log.Fatalf("Failed to register workflow: %v", err)
	}

	color.Cyan("Workflow: %s", wf.Name())
	if wf.Description() != "" {
		color.White("Description: %s", wf.Description())
	}

	var execution *greenlight.Execution
	startTime := time.Now()

	if config.ResumeID != "" {
		if config.Action == "" {
			color.Red("Error: -action is required with -resume")
			os.Exit(1)
		}
		execution, err = runner.Resume(ctx, config.ResumeID, &greenlight.Decision{
			ActionID: config.Action,
			Feedback: config.Feedback,
		})
		if execution == nil && err == nil {
			color.Yellow("Nothing to do: execution %s is not waiting for review", config.ResumeID)
			return
		}
	} else {
		color.Green("Starting execution...\n")
		execution, err = runner.Run(ctx, wf.Name(), config.Inputs)
	}

	if execution != nil && config.Interactive {
		execution, err = reviewLoop(ctx, runner, execution, err)
	}

	showExecutionResults(execution, err, time.Since(startTime), config)
}

// reviewLoop prompts for a decision each time the run pauses, resuming until
// the run reaches a terminal status.
func reviewLoop(ctx context.Context, runner *greenlight.Runner, execution *greenlight.Execution, runErr error) (*greenlight.Execution, error) {
	reader := bufio.NewReader(os.Stdin)
	for runErr == nil && execution.Status() == greenlight.ExecutionStatusWaiting {
		pause := execution.PauseInfo()
		if pause == nil {
			break
		}
		fmt.Println()
		color.Yellow("Review required at node %q", pause.NodeID)
		if pause.Reason != "" {
			color.White("  %s", pause.Reason)
		}
		ids := make([]string, 0, len(pause.Actions))
		for _, action := range pause.Actions {
			label := action.Label
			if label == "" {
				label = action.ID
			}
			fmt.Printf("  [%s] %s\n", action.ID, label)
			ids = append(ids, action.ID)
		}
		fmt.Printf("Decision (%s): ", strings.Join(ids, "/"))

		line, err := reader.ReadString('\n')
		if err != nil {
			return execution, fmt.Errorf("failed to read decision: %w", err)
		}
		actionID := strings.TrimSpace(line)
		if actionID == "" {
			continue
		}

		resumed, err := runner.Resume(ctx, execution.ID(), &greenlight.Decision{ActionID: actionID})
		if err != nil {
			if greenlight.IsResumeError(err) {
				color.Red("Invalid decision: %v", err)
				continue
			}
			return execution, err
		}
		if resumed != nil {
			execution = resumed
		}
	}
	return execution, runErr
}

func parseFlags() *Config {
	config := &Config{
		Inputs: make(map[string]any),
	}

	flag.StringVar(&config.WorkflowFile, "file", "", "Path to the YAML workflow definition file (required)")
	flag.StringVar(&config.WorkflowFile, "f", "", "Path to the YAML workflow definition file (shorthand)")

	var inputFlags stringSlice
	flag.Var(&inputFlags, "input", "Input parameter in format key=value (can be used multiple times)")
	flag.Var(&inputFlags, "i", "Input parameter in format key=value (shorthand)")

	flag.StringVar(&config.DataDir, "data", "", "Directory for snapshots and step logs (optional)")
	flag.StringVar(&config.DataDir, "d", "", "Directory for snapshots and step logs (shorthand)")

	flag.StringVar(&config.ResumeID, "resume", "", "Resume a paused execution by id")
	flag.StringVar(&config.Action, "action", "", "Decision action id for -resume (e.g. approve)")
	flag.StringVar(&config.Feedback, "feedback", "", "Optional reviewer feedback for -resume")

	flag.DurationVar(&config.Timeout, "timeout", 0, "Execution timeout (e.g., 30s, 5m, 1h)")
	flag.DurationVar(&config.Timeout, "t", 0, "Execution timeout (shorthand)")

	flag.BoolVar(&config.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&config.Verbose, "v", false, "Enable verbose logging (shorthand)")

	flag.BoolVar(&config.JSON, "json", false, "Output results in JSON format")
	flag.BoolVar(&config.Interactive, "interactive", true, "Prompt for decisions when the run pauses")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Greenlight - Execute YAML-defined workflows with human review gates

Usage: %s [options] -file <workflow.yaml>

Examples:
  # Execute a workflow, answering review prompts interactively
  %s -file release.yaml -input version=1.2.0

  # Execute with durable snapshots so a pause survives the process
  %s -file release.yaml -data ./data -interactive=false

  # Resume a paused execution with a decision
  %s -file release.yaml -data ./data -resume exec_01h2x -action approve

Options:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
		flag.PrintDefaults()

		fmt.Fprintf(os.Stderr, `
Supported Node Types:
  approval - Pause for a human approve/reject decision
  script   - Execute Risor code against the run context
  http     - Make HTTP requests
  print    - Print messages to console
  wait     - Wait for a specified duration
  json     - Parse, query, and stringify JSON
  fail     - Intentionally fail with a message

Input Format:
  Use -input key=value for each input parameter.
  Values are parsed as JSON if possible, otherwise as strings.

`)
	}

	flag.Parse()

	for _, input := range inputFlags {
		parts := strings.SplitN(input, "=", 2)
		if len(parts) != 2 {
			fmt.Fprintf(os.Stderr, "Error: invalid input format '%s'. Use key=value\n", input)
			os.Exit(1)
		}
		key, value := parts[0], parts[1]

		// Try to parse as JSON, fallback to string
		var parsedValue any
		if err := json.Unmarshal([]byte(value), &parsedValue); err != nil {
			parsedValue = value
		}
		config.Inputs[key] = parsedValue
	}

	return config
}

// Custom flag type for handling multiple input values
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func setupPersistence(dataDir string) (greenlight.SnapshotStore, greenlight.StepLogger, error) {
	if dataDir == "" {
		return greenlight.NewMemorySnapshotStore(), greenlight.NewMemoryStepLogger(), nil
	}
	store, err := greenlight.NewFileSnapshotStore(dataDir)
	if err != nil {
		return nil, nil, err
	}
	color.Blue("Data directory: %s", dataDir)
	return store, greenlight.NewFileStepLogger(dataDir), nil
}

func showExecutionResults(execution *greenlight.Execution, err error, duration time.Duration, config *Config) {
	fmt.Println()
	if err != nil {
		color.Red("Execution failed after %v: %v", duration.Round(time.Millisecond), err)
		os.Exit(1)
	}
	if execution == nil {
		return
	}

	switch execution.Status() {
	case greenlight.ExecutionStatusWaiting:
		color.Yellow("Execution %s paused for review after %v", execution.ID(), duration.Round(time.Millisecond))
		if pause := execution.PauseInfo(); pause != nil {
			color.White("  Node: %s", pause.NodeID)
			color.White("  Task: %s", pause.TaskID)
			fmt.Printf("\nResume with:\n  -resume %s -action <id>\n", execution.ID())
		}
	case greenlight.ExecutionStatusCompleted:
		color.Green("Execution %s completed in %v", execution.ID(), duration.Round(time.Millisecond))
	case greenlight.ExecutionStatusAborted:
		color.Yellow("Execution %s aborted after %v", execution.ID(), duration.Round(time.Millisecond))
	default:
		color.White("Execution %s finished with status %s", execution.ID(), execution.Status())
	}

	output := execution.Output()
	if output == nil {
		return
	}
	if config.JSON {
		data, err := json.MarshalIndent(output, "", "  ")
		if err == nil {
			fmt.Println(string(data))
		}
		return
	}
	color.Cyan("\nOutput:")
	switch v := output.(type) {
	case string:
		fmt.Println(v)
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			fmt.Printf("%v\n", v)
			return
		}
		fmt.Println(string(data))
	}
}
