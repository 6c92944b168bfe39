package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/abz10m/mrctl/internal/agent"
	"github.com/abz10m/mrctl/internal/checkpoint"
	"github.com/abz10m/mrctl/internal/config"
	"github.com/abz10m/mrctl/internal/dlq"
	"github.com/abz10m/mrctl/internal/execx"
	"github.com/abz10m/mrctl/internal/logging"
	"github.com/abz10m/mrctl/internal/loop"
	"github.com/abz10m/mrctl/internal/scheduler"
	"github.com/abz10m/mrctl/internal/variables"
	"github.com/abz10m/mrctl/internal/worker"
	"github.com/abz10m/mrctl/internal/workspace"
)

// stateDirName is the on-disk directory a repo's mrctl run state lives
// under, relative to the repo checkout -- the DLQ log, checkpoint archive,
// and resume lock.
const stateDirName = ".mrctl"

// runtimeDeps bundles every collaborator run.go and resume.go need to drive
// a job through the phase coordinator, built once per invocation by
// buildRuntimeDeps.
type runtimeDeps struct {
	Config          *config.ResolvedConfig
	RepoDir         string
	Workspaces      *workspace.Manager
	DLQStore        *dlq.Store
	DLQPolicy       *dlq.Policy
	CheckpointStore *checkpoint.Store
	LockPath        string
	Scheduler       *scheduler.Scheduler
	Worker          *worker.Worker
	Logger          *log.Logger
}

// buildRuntimeDeps wires together the collaborators a coordinator run needs
// from a resolved config and the repo directory the job operates in.
func buildRuntimeDeps(resolved *config.ResolvedConfig, repoDir string) (*runtimeDeps, error) {
	logger := logging.New("coordinator")

	baseDir := resolved.Config.Workspace.BaseDir
	if baseDir == "" {
		baseDir = filepath.Join(stateDir(repoDir), "workspaces")
	}
	workspaces, err := workspace.NewManager(repoDir, baseDir)
	if err != nil {
		return nil, fmt.Errorf("cli: building workspace manager: %w", err)
	}

	dlqStore := dlq.NewStore(filepath.Join(stateDir(repoDir), "dlq.jsonl"))
	dlqPolicy := dlq.NewPolicy(resolved.Config.Job.MaxRetries, 2*time.Second, 60*time.Second)

	checkpointStore := checkpoint.NewStore(filepath.Join(stateDir(repoDir), "checkpoints"))

	executor := execx.New()
	interp := variables.NewTemplateInterpolator()
	w := worker.New(executor, interp).WithAgents(buildAgentRegistry(resolved.Config.Agents, logger))

	sched := scheduler.New(w, workspaces, dlqPolicy, dlqStore, resolved.Config.Job.MaxParallel)
	sched.PerStepTimeout = resolved.Config.Job.PerStepTimeout.Duration
	sched.AgentCircuit = loop.NewAgentErrorRecovery(resolved.Config.Job.MaxConsecutiveAgentErrors, logger)
	sched.ReprocessEligibleDefault = resolved.Config.DLQ.ReprocessEligibleDefault

	return &runtimeDeps{
		Config:          resolved,
		RepoDir:         repoDir,
		Workspaces:      workspaces,
		DLQStore:        dlqStore,
		DLQPolicy:       dlqPolicy,
		CheckpointStore: checkpointStore,
		LockPath:        filepath.Join(stateDir(repoDir), "resume.lock"),
		Scheduler:       sched,
		Worker:          w,
		Logger:          logger,
	}, nil
}

// stateDir is the .mrctl directory mrctl's own run state lives under,
// rooted at the repo checkout so multiple clones never collide.
func stateDir(repoDir string) string {
	return filepath.Join(repoDir, stateDirName)
}

// buildAgentRegistry constructs one adapter per [agents.<name>] entry in the
// resolved config and registers it under that name. The map key selects
// which adapter to build (matching the adapter's own Name()); an unrecognized
// key is skipped with a warning rather than failing the whole run, since a
// job whose steps never name that agent does not need it to exist.
func buildAgentRegistry(agents map[string]agent.AgentConfig, logger *log.Logger) *agent.Registry {
	reg := agent.NewRegistry()
	for name, cfg := range agents {
		var a agent.Agent
		switch name {
		case "claude":
			a = agent.NewClaudeAgent(cfg, logger)
		case "codex":
			a = agent.NewCodexAgent(cfg, logger)
		case "gemini":
			a = agent.NewGeminiAgent(cfg)
		default:
			logger.Warn("skipping unrecognized agent config section", "name", name)
			continue
		}
		if err := reg.Register(a); err != nil {
			logger.Warn("failed to register agent", "name", name, "error", err)
		}
	}
	return reg
}
