// Package worker implements the Agent Worker (spec §4.3, C5): it runs one
// work item's ordered step sequence inside one workspace and reports a
// workitem.AgentResult. Grounded on the teacher's internal/agent
// ClaudeAgent.Run (subprocess execution, output capture, duration
// measurement) and the internal/pipeline WorkflowState.Metadata idiom for
// per-run variable passing, now split into the job-level/worker-local
// variables.Store/Scope pair. Step stdout is additionally passed through
// internal/jsonutil.Extract, reusing the teacher's markdown-fence/brace-
// matching extraction so a step's embedded JSON payload is available to
// later steps without them re-parsing raw output. A step whose CommandKind
// is jobspec.CommandAttempt is dispatched to a registered internal/agent
// adapter instead of a shell, reusing the teacher's Claude/Codex/Gemini
// adapters and their rate-limit detection (internal/agent/ratelimit.go).
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/abz10m/mrctl/internal/agent"
	"github.com/abz10m/mrctl/internal/execx"
	"github.com/abz10m/mrctl/internal/job"
	"github.com/abz10m/mrctl/internal/jobspec"
	"github.com/abz10m/mrctl/internal/jsonutil"
	"github.com/abz10m/mrctl/internal/variables"
	"github.com/abz10m/mrctl/internal/workitem"
)

// Interpolator renders a step's command template against a variable scope.
// The interpolation grammar itself is an external collaborator (spec §1);
// the worker only specifies which variables it publishes into scope.
type Interpolator interface {
	Interpolate(text string, scope *variables.Scope) (string, error)
}

// Input is everything the worker needs to process one work item, per the
// §4.3 contract: {item, workspace_handle, step_template[], env_snapshot,
// per_step_timeout}.
type Input struct {
	Item            workitem.Item
	WorkspacePath   string
	WorkspaceHandle string
	Steps           []jobspec.StepTemplate
	EnvSnapshot     []string
	PerStepTimeout  time.Duration
	ItemIndex       int
}

// Worker runs one work item's step sequence inside one workspace.
type Worker struct {
	Executor     *execx.Executor
	Interpolator Interpolator
	// Agents looks up the adapter a CommandAttempt step names. Nil means no
	// agents are configured; a job whose steps are all CommandShell never
	// touches it.
	Agents *agent.Registry
}

// New returns a Worker backed by executor and interp. Attach a registry via
// WithAgents to let CommandAttempt steps dispatch to a named agent.
func New(executor *execx.Executor, interp Interpolator) *Worker {
	return &Worker{Executor: executor, Interpolator: interp}
}

// WithAgents attaches an agent registry and returns the same Worker, for
// chaining onto New.
func (w *Worker) WithAgents(agents *agent.Registry) *Worker {
	w.Agents = agents
	return w
}

// Run executes in.Steps in order inside in.WorkspacePath. It publishes
// item, item.id, and item.index into a local variable scope (never written
// back to the job-level store, per §4.3) before the first step runs, and
// each step's captured stdout into "steps.<name>.output" for later steps to
// reference.
func (w *Worker) Run(ctx context.Context, in Input, parent *variables.Store) workitem.AgentResult {
	start := time.Now()
	scope := variables.NewScope(parent)
	scope.Set("item", string(in.Item.Data))
	scope.Set("item.id", in.Item.ID)
	scope.Set("item.index", strconv.Itoa(in.ItemIndex))

	result := workitem.AgentResult{
		ItemID:          in.Item.ID,
		Status:          workitem.ResultSuccess,
		WorkspaceHandle: in.WorkspaceHandle,
	}

	var commits []string
	for _, step := range in.Steps {
		stepResult, err := w.runStep(ctx, in, step, scope)
		if stepResult != nil {
			scope.Set(fmt.Sprintf("steps.%s.output", step.Name), stepResult.Stdout)
			// Agent steps often wrap their structured result in prose or a
			// markdown fence; surface it under a distinct variable when
			// present so later steps can reference fields directly instead
			// of re-parsing raw stdout.
			if payload, jerr := jsonutil.Extract(stepResult.Stdout); jerr == nil {
				scope.Set(fmt.Sprintf("steps.%s.json", step.Name), string(payload))
			}
		}
		if step.CommitRequired && err == nil {
			commits = append(commits, step.Name)
		}
		if err != nil {
			result.Status, result.Reason = w.classifyFailure(ctx, err)
			result.Duration = time.Since(start)
			result.Commits = commits
			return result
		}
	}

	result.Duration = time.Since(start)
	result.Commits = commits
	return result
}

// runStep interpolates and executes a single step. When it soft-fails and
// names an on_failure handler, the handler step (looked up by name within
// the same step sequence) runs once; the handler's own outcome is the
// re-evaluated result, per §4.3's "run handler then re-evaluate".
func (w *Worker) runStep(ctx context.Context, in Input, step jobspec.StepTemplate, scope *variables.Scope) (*execx.Result, error) {
	res, err := w.execute(ctx, in, step, scope)
	if err == nil {
		return res, nil
	}
	if step.OnFailure == "" {
		return res, err
	}
	handler, ok := findStep(in.Steps, string(step.OnFailure))
	if !ok {
		return res, err
	}
	return w.execute(ctx, in, handler, scope)
}

// findStep looks up a step by name within the sequence, used to resolve an
// on_failure handler reference.
func findStep(steps []jobspec.StepTemplate, name string) (jobspec.StepTemplate, bool) {
	for _, s := range steps {
		if s.Name == name {
			return s, true
		}
	}
	return jobspec.StepTemplate{}, false
}

func (w *Worker) execute(ctx context.Context, in Input, step jobspec.StepTemplate, scope *variables.Scope) (*execx.Result, error) {
	command := step.CommandText
	if w.Interpolator != nil {
		rendered, err := w.Interpolator.Interpolate(step.CommandText, scope)
		if err != nil {
			return nil, fmt.Errorf("worker: interpolating step %q: %w", step.Name, err)
		}
		command = rendered
	}

	if step.CommandKind == jobspec.CommandAttempt {
		return w.executeAttempt(ctx, in, step, command)
	}

	runCtx := ctx
	if in.PerStepTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, in.PerStepTimeout)
		defer cancel()
	}

	res, err := w.Executor.Run(runCtx, execx.Request{
		Program: "sh",
		Args:    []string{"-c", command},
		Dir:     in.WorkspacePath,
		Env:     in.EnvSnapshot,
		Timeout: in.PerStepTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("worker: running step %q: %w", step.Name, err)
	}
	if res.ExitCode != 0 {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return res, fmt.Errorf("worker: step %q timed out after %s: %w", step.Name, in.PerStepTimeout, context.DeadlineExceeded)
		}
		return res, fmt.Errorf("worker: step %q exited %d: %s", step.Name, res.ExitCode, res.Stderr)
	}
	return res, nil
}

// executeAttempt dispatches a CommandAttempt step's rendered prompt to the
// agent named by step.AgentName, translating the agent.RunResult into the
// same execx.Result shape a shell step returns so the caller's on_failure
// and job.Classify handling work unchanged regardless of which execution
// mode produced them.
func (w *Worker) executeAttempt(ctx context.Context, in Input, step jobspec.StepTemplate, prompt string) (*execx.Result, error) {
	if w.Agents == nil {
		return nil, fmt.Errorf("worker: step %q is an attempt step but no agent registry is configured", step.Name)
	}
	a, err := w.Agents.Get(step.AgentName)
	if err != nil {
		return nil, fmt.Errorf("worker: step %q: %w", step.Name, err)
	}

	runCtx := ctx
	if in.PerStepTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, in.PerStepTimeout)
		defer cancel()
	}

	out, err := a.Run(runCtx, agent.RunOpts{
		Prompt:  prompt,
		WorkDir: in.WorkspacePath,
		Env:     in.EnvSnapshot,
	})
	if err != nil {
		return nil, fmt.Errorf("worker: running step %q via agent %q: %w", step.Name, step.AgentName, err)
	}

	res := &execx.Result{
		ExitCode: out.ExitCode,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		Duration: out.Duration,
	}

	if out.RateLimit != nil && out.RateLimit.IsLimited {
		return res, fmt.Errorf("worker: agent %q rate limited on step %q, resets in %s: %s",
			step.AgentName, step.Name, out.RateLimit.ResetAfter, out.RateLimit.Message)
	}
	if out.ExitCode != 0 {
		return res, fmt.Errorf("worker: step %q via agent %q exited %d: %s", step.Name, step.AgentName, out.ExitCode, out.Stderr)
	}
	return res, nil
}

// classifyFailure maps an execution error to the AgentResult status/reason
// pair the scheduler expects, distinguishing a done context or a shell step
// that ran past its per-step timeout (timeout) from job.Classify's
// transient/permanent split.
func (w *Worker) classifyFailure(ctx context.Context, err error) (workitem.ResultStatus, string) {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return workitem.ResultTimeout, err.Error()
	}
	class := job.Classify(err.Error())
	if class == job.ClassTransient {
		return workitem.ResultRetrying, err.Error()
	}
	return workitem.ResultFailed, err.Error()
}
