package config

// ConfigSource identifies where a configuration value came from.
type ConfigSource string

const (
	// SourceDefault indicates the value came from built-in defaults.
	SourceDefault ConfigSource = "default"
	// SourceFile indicates the value came from the mrctl.toml config file.
	SourceFile ConfigSource = "file"
	// SourceEnv indicates the value came from an environment variable.
	SourceEnv ConfigSource = "env"
	// SourceCLI indicates the value came from a CLI flag.
	SourceCLI ConfigSource = "cli"
)

// ResolvedConfig holds the fully-resolved configuration with source tracking.
// The Config field contains the merged values; Sources tracks where each came
// from, keyed by dotted path (e.g. "job.max_parallel").
type ResolvedConfig struct {
	Config  *Config
	Sources map[string]ConfigSource
	Path    string // path to the config file used (empty if none)
}

// CLIOverrides captures flag values that can override configuration. Nil
// fields mean "not set" (do not override).
type CLIOverrides struct {
	MaxParallel      *int
	MaxRetries       *int
	DryRun           *bool
	WorkspaceBaseDir *string
}

// EnvFunc is a function that looks up environment variables. The default
// implementation is os.LookupEnv; injected here for testability.
type EnvFunc func(key string) (string, bool)

// Resolve merges configuration from all sources in priority order: CLI flags
// > environment variables > config file > defaults.
func Resolve(defaults *Config, fileConfig *Config, envFn EnvFunc, overrides *CLIOverrides) *ResolvedConfig {
	rc := &ResolvedConfig{
		Config:  &Config{},
		Sources: make(map[string]ConfigSource),
	}

	if defaults == nil {
		defaults = NewDefaults()
	}
	if envFn == nil {
		envFn = func(string) (string, bool) { return "", false }
	}
	if overrides == nil {
		overrides = &CLIOverrides{}
	}

	// Layer 1: defaults.
	*rc.Config = *defaults
	for _, path := range allConfigPaths {
		rc.Sources[path] = SourceDefault
	}

	// Layer 2: file.
	if fileConfig != nil {
		mergeInt(&rc.Config.Job.MaxParallel, fileConfig.Job.MaxParallel, "job.max_parallel", SourceFile, rc.Sources)
		mergeInt(&rc.Config.Job.MaxRetries, fileConfig.Job.MaxRetries, "job.max_retries", SourceFile, rc.Sources)
		mergeInt(&rc.Config.Job.MaxConsecutiveAgentErrors, fileConfig.Job.MaxConsecutiveAgentErrors, "job.max_consecutive_agent_errors", SourceFile, rc.Sources)
		mergeDuration(&rc.Config.Job.PerStepTimeout, fileConfig.Job.PerStepTimeout, "job.per_step_timeout", SourceFile, rc.Sources)
		mergeDuration(&rc.Config.Job.PerAgentTimeout, fileConfig.Job.PerAgentTimeout, "job.per_agent_timeout", SourceFile, rc.Sources)
		mergeDuration(&rc.Config.Job.PerPhaseTimeout, fileConfig.Job.PerPhaseTimeout, "job.per_phase_timeout", SourceFile, rc.Sources)
		mergeInt(&rc.Config.Checkpoint.ItemInterval, fileConfig.Checkpoint.ItemInterval, "checkpoint.item_interval", SourceFile, rc.Sources)
		mergeDuration(&rc.Config.Checkpoint.TimeInterval, fileConfig.Checkpoint.TimeInterval, "checkpoint.time_interval", SourceFile, rc.Sources)
		rc.Config.DLQ.ReprocessEligibleDefault = fileConfig.DLQ.ReprocessEligibleDefault
		rc.Sources["dlq.reprocess_eligible_default"] = SourceFile
		mergeInt(&rc.Config.Retention.MaxCheckpoints, fileConfig.Retention.MaxCheckpoints, "retention.max_checkpoints", SourceFile, rc.Sources)
		mergeDuration(&rc.Config.Retention.MaxAge, fileConfig.Retention.MaxAge, "retention.max_age", SourceFile, rc.Sources)
		mergeString(&rc.Config.Workspace.BaseDir, fileConfig.Workspace.BaseDir, "workspace.base_dir", SourceFile, rc.Sources)
		if len(fileConfig.Agents) > 0 {
			rc.Config.Agents = fileConfig.Agents
			rc.Sources["agents"] = SourceFile
		}
	}

	// Layer 3: environment.
	if val, ok := envFn("MRCTL_MAX_PARALLEL"); ok {
		setIntFromString(&rc.Config.Job.MaxParallel, val, "job.max_parallel", SourceEnv, rc.Sources)
	}
	if val, ok := envFn("MRCTL_MAX_RETRIES"); ok {
		setIntFromString(&rc.Config.Job.MaxRetries, val, "job.max_retries", SourceEnv, rc.Sources)
	}
	if val, ok := envFn("MRCTL_MAX_CONSECUTIVE_AGENT_ERRORS"); ok {
		setIntFromString(&rc.Config.Job.MaxConsecutiveAgentErrors, val, "job.max_consecutive_agent_errors", SourceEnv, rc.Sources)
	}
	if val, ok := envFn("MRCTL_WORKSPACE_BASE_DIR"); ok {
		rc.Config.Workspace.BaseDir = val
		rc.Sources["workspace.base_dir"] = SourceEnv
	}

	// Layer 4: CLI overrides.
	if overrides.MaxParallel != nil {
		rc.Config.Job.MaxParallel = *overrides.MaxParallel
		rc.Sources["job.max_parallel"] = SourceCLI
	}
	if overrides.MaxRetries != nil {
		rc.Config.Job.MaxRetries = *overrides.MaxRetries
		rc.Sources["job.max_retries"] = SourceCLI
	}
	if overrides.WorkspaceBaseDir != nil {
		rc.Config.Workspace.BaseDir = *overrides.WorkspaceBaseDir
		rc.Sources["workspace.base_dir"] = SourceCLI
	}

	return rc
}

var allConfigPaths = []string{
	"job.max_parallel", "job.max_retries", "job.max_consecutive_agent_errors", "job.per_step_timeout",
	"job.per_agent_timeout", "job.per_phase_timeout",
	"checkpoint.item_interval", "checkpoint.time_interval",
	"dlq.reprocess_eligible_default",
	"retention.max_checkpoints", "retention.max_age",
	"workspace.base_dir",
}

func mergeInt(target *int, value int, path string, source ConfigSource, sources map[string]ConfigSource) {
	if value != 0 {
		*target = value
		sources[path] = source
	}
}

func mergeDuration(target *Duration, value Duration, path string, source ConfigSource, sources map[string]ConfigSource) {
	if value.Duration != 0 {
		*target = value
		sources[path] = source
	}
}

func mergeString(target *string, value string, path string, source ConfigSource, sources map[string]ConfigSource) {
	if value != "" {
		*target = value
		sources[path] = source
	}
}

func setIntFromString(target *int, value string, path string, source ConfigSource, sources map[string]ConfigSource) {
	n := 0
	for _, r := range value {
		if r < '0' || r > '9' {
			return
		}
		n = n*10 + int(r-'0')
	}
	*target = n
	sources[path] = source
}
