package config

import "time"

// NewDefaults returns a Config populated with all default values, matching
// spec.md §6's configuration keys.
func NewDefaults() *Config {
	return &Config{
		Job: JobConfig{
			MaxParallel:               4,
			MaxRetries:                3,
			PerStepTimeout:            Duration{5 * time.Minute},
			PerAgentTimeout:           Duration{30 * time.Minute},
			PerPhaseTimeout:           Duration{4 * time.Hour},
			MaxConsecutiveAgentErrors: 5,
		},
		Checkpoint: CheckpointConfig{
			ItemInterval: 10,
			TimeInterval: Duration{2 * time.Minute},
		},
		DLQ: DLQConfig{
			ReprocessEligibleDefault: true,
		},
		Retention: RetentionConfig{
			MaxCheckpoints: 20,
			MaxAge:         Duration{7 * 24 * time.Hour},
		},
		Workspace: WorkspaceConfig{
			BaseDir: ".mrctl/workspaces",
		},
	}
}
