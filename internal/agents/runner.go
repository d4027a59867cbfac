package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"minerva/internal/adapters/ai"
	"minerva/internal/metrics"
	"minerva/internal/tools"
	"minerva/pkg/errors"
	"minerva/pkg/logger"
)

// Limits bounds one persona execution.
type Limits struct {
	MaxRecursion int           // total model turns
	MaxToolSteps int           // total tool executions
	PerCall      time.Duration // single model call deadline
	Budget       time.Duration // whole persona deadline
}

// Result is the outcome of one persona execution.
type Result struct {
	Output    string
	Messages  []ai.Message
	ToolCalls int
	Turns     int
	Fallback  string // non-empty when the output is a degraded fallback
	Duration  time.Duration
}

// Runner executes a persona's conversation loop against the chat provider.
// Tool calls run sequentially; all bounds degrade to a usable answer rather
// than failing the run.
type Runner struct {
	provider ai.ChatProvider
	registry *tools.Registry
	limits   Limits
	log      *logger.Logger
}

// NewRunner creates a runner with the given bounds.
func NewRunner(provider ai.ChatProvider, registry *tools.Registry, limits Limits) *Runner {
	if limits.MaxRecursion <= 0 {
		limits.MaxRecursion = 20
	}
	if limits.MaxToolSteps <= 0 {
		limits.MaxToolSteps = 8
	}
	if limits.PerCall <= 0 {
		limits.PerCall = 20 * time.Second
	}
	if limits.Budget <= 0 {
		limits.Budget = 60 * time.Second
	}

	return &Runner{
		provider: provider,
		registry: registry,
		limits:   limits,
		log:      logger.Get().With("component", "agent_runner"),
	}
}

// Run executes one persona to completion within its budget. model is the
// resolved model identifier for every call in the loop.
func (r *Runner) Run(ctx context.Context, persona Persona, pc PromptContext, model string) (*Result, error) {
	start := time.Now()

	budgetCtx, cancel := context.WithTimeout(ctx, r.limits.Budget)
	defer cancel()

	var (
		resolved []tools.Tool
		defs     []ai.ToolDefinition
	)
	if len(persona.Tools) > 0 {
		var err error
		resolved, defs, err = r.registry.Resolve(persona.Tools)
		if err != nil {
			return nil, errors.Wrapf(err, "persona %s", persona.Name)
		}
	}
	byName := make(map[string]tools.Tool, len(resolved))
	for _, t := range resolved {
		byName[t.Name()] = t
	}

	messages := []ai.Message{
		{Role: ai.RoleSystem, Content: persona.System(pc)},
		{Role: ai.RoleUser, Content: persona.User(pc)},
	}

	result := &Result{}
	toolOutputs := make([]string, 0, r.limits.MaxToolSteps)

	for turn := 0; turn < r.limits.MaxRecursion; turn++ {
		if budgetCtx.Err() != nil {
			return r.degrade(persona, result, messages, toolOutputs, "budget exhausted", start), nil
		}

		// Past the tool cap the model must answer from what it has
		activeTools := defs
		if result.ToolCalls >= r.limits.MaxToolSteps {
			activeTools = nil
		}

		response, err := r.chat(budgetCtx, persona, model, messages, activeTools)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return r.degrade(persona, result, messages, toolOutputs, "cancelled", start), nil
			}
			// Provider failures are not retried; the persona answers from
			// whatever it already gathered and the run continues.
			return r.degrade(persona, result, messages, toolOutputs, "llm call failed", start), nil
		}

		assistant := response.First()
		messages = append(messages, assistant)
		result.Turns++

		if len(assistant.ToolCalls) == 0 {
			result.Output = assistant.Content
			result.Messages = messages
			result.Duration = time.Since(start)
			return result, nil
		}

		for _, call := range assistant.ToolCalls {
			output := r.executeTool(budgetCtx, byName, call)
			toolOutputs = append(toolOutputs, fmt.Sprintf("%s: %s", call.Function.Name, output))
			result.ToolCalls++
			messages = append(messages, ai.Message{
				Role:       ai.RoleTool,
				Content:    output,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
			})
		}

		if result.ToolCalls >= r.limits.MaxToolSteps {
			messages = append(messages, ai.Message{
				Role:    ai.RoleUser,
				Content: "Max steps reached. Write your final report now using the data already gathered; do not request more tools.",
			})
		}
	}

	return r.degrade(persona, result, messages, toolOutputs, "recursion limit reached", start), nil
}

func (r *Runner) chat(ctx context.Context, persona Persona, model string, messages []ai.Message, defs []ai.ToolDefinition) (*ai.ChatResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.limits.PerCall)
	defer cancel()

	start := time.Now()
	response, err := r.provider.Chat(callCtx, ai.ChatRequest{
		Model:    model,
		Messages: messages,
		Tools:    defs,
	})
	metrics.RecordLLMCall(persona.Name, model, time.Since(start), err)
	return response, err
}

// executeTool never fails the loop: unknown names and execution errors both
// come back as text the model can react to.
func (r *Runner) executeTool(ctx context.Context, byName map[string]tools.Tool, call ai.ToolCall) string {
	tool, ok := byName[call.Function.Name]
	if !ok {
		r.log.Warnw("Model requested unknown tool", "tool", call.Function.Name)
		return tools.NotImplemented(call.Function.Name)
	}

	args, err := call.ParsedArguments()
	var warning string
	if err != nil {
		r.log.Warnw("Malformed tool arguments", "tool", call.Function.Name, "error", err)
		args = map[string]interface{}{}
		warning = "Warning: tool arguments were not valid JSON; defaults were used.\n\n"
	}

	output, err := tool.Execute(ctx, args)
	if err != nil {
		r.log.Warnw("Tool execution failed", "tool", call.Function.Name, "error", err)
		return fmt.Sprintf("Tool %s failed: %v", call.Function.Name, err)
	}
	return warning + output
}

// degrade produces the best possible answer from partial progress.
func (r *Runner) degrade(persona Persona, result *Result, messages []ai.Message, toolOutputs []string, reason string, start time.Time) *Result {
	r.log.Warnw("Persona degraded to fallback output",
		"persona", persona.Name, "reason", reason, "turns", result.Turns, "tool_calls", result.ToolCalls)

	var b strings.Builder
	fmt.Fprintf(&b, "Analysis incomplete (%s).", reason)
	if len(toolOutputs) > 0 {
		b.WriteString(" Data gathered before the cutoff:\n\n")
		b.WriteString(strings.Join(toolOutputs, "\n\n"))
	}

	result.Output = b.String()
	result.Messages = messages
	result.Fallback = reason
	result.Duration = time.Since(start)
	return result
}
