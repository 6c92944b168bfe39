package checkpoint

import "time"

// TriggerState is the minimal context the trigger predicate needs; the
// coordinator (C9) owns computing and updating these fields between calls.
type TriggerState struct {
	ItemsSinceLastCheckpoint   int
	ElapsedSinceLastCheckpoint time.Duration
	PhaseTransitionPending     bool
	ShutdownRequested          bool
	ManualRequest              bool
}

// TriggerConfig holds the two interval thresholds a job configures; either
// may be zero to disable that particular condition.
type TriggerConfig struct {
	ItemInterval int
	TimeInterval time.Duration
}

// ShouldTrigger is a pure predicate implementing spec §4.4's checkpoint
// trigger: true if any of the OR'd conditions hold. Modeled on
// quorum-ai's CheckpointManager (interval-based triggering) and
// re-cinq-wave's ResumeManager (explicit/forced checkpoint requests),
// collapsed into one function instead of a stateful manager since the
// coordinator already owns all the mutable counters.
func ShouldTrigger(cfg TriggerConfig, st TriggerState) bool {
	if st.ShutdownRequested || st.ManualRequest || st.PhaseTransitionPending {
		return true
	}
	if cfg.ItemInterval > 0 && st.ItemsSinceLastCheckpoint >= cfg.ItemInterval {
		return true
	}
	if cfg.TimeInterval > 0 && st.ElapsedSinceLastCheckpoint >= cfg.TimeInterval {
		return true
	}
	return false
}
