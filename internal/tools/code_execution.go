package tools

import (
	"context"
	"fmt"
	"time"

	"patent_explorer_go_backend/internal/llm"
	"patent_explorer_go_backend/internal/sandbox"

	"github.com/rs/zerolog/log"
)

const maxCodeLength = 10000

// CodeExecutionTool runs Python in an ephemeral remote sandbox. The sandbox
// is deleted exactly once on every path after a successful create.
type CodeExecutionTool struct {
	runner sandbox.Runner
	usage  UsageReporter
}

func NewCodeExecutionTool(runner sandbox.Runner, usage UsageReporter) *CodeExecutionTool {
	return &CodeExecutionTool{runner: runner, usage: usage}
}

func (t *CodeExecutionTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "codeExecution",
		Description: "Execute Python code in an isolated sandbox for numeric analysis. Print whatever should be shown to the user.",
		Parameters: &llm.Schema{
			Type: "object",
			Properties: map[string]*llm.Schema{
				"code": {Type: "string", Description: fmt.Sprintf("Python source, at most %d characters", maxCodeLength)},
			},
			Required: []string{"code"},
		},
	}
}

func (t *CodeExecutionTool) Execute(ctx context.Context, call Call) (map[string]interface{}, error) {
	var args struct {
		Code string `json:"code"`
	}
	if err := decodeArgs(call.Args, &args); err != nil {
		return nil, err
	}
	if args.Code == "" {
		return nil, &ValidationError{Message: "code is required"}
	}
	if len(args.Code) > maxCodeLength {
		return nil, &ValidationError{Message: fmt.Sprintf("code exceeds the %d character limit", maxCodeLength)}
	}

	sandboxID, err := t.runner.CreateSandbox(ctx)
	if err != nil {
		return nil, err
	}
	// The delete must run even when execution fails or the turn context is
	// already canceled, so it gets its own deadline.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if derr := t.runner.DeleteSandbox(cleanupCtx, sandboxID); derr != nil {
			log.Error().Err(derr).Str("sandbox", sandboxID).Msg("Failed to delete sandbox")
		}
	}()

	start := time.Now()
	result, err := t.runner.RunCode(ctx, sandboxID, args.Code)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	t.usage.ReportToolCost(call.UserID, call.SessionID, "codeExecution", 0)
	return map[string]interface{}{
		"type":            "code_execution",
		"stdout":          result.Stdout,
		"exitCode":        result.ExitCode,
		"executionTimeMs": elapsed.Milliseconds(),
	}, nil
}
