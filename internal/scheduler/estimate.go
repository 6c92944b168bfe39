package scheduler

import (
	"time"

	"github.com/abz10m/mrctl/internal/jobspec"
	"github.com/abz10m/mrctl/internal/workitem"
)

// Per-unit constants used by EstimatePlan. These are rough planning numbers,
// not measured averages — good enough to catch a job spec that would try to
// open far more worktrees or API-backed steps than the caller expects.
const (
	baseMemoryPerAgentMB = 50
	shellStepMemoryMB    = 10
	attemptStepMemoryMB  = 100 // CommandAttempt steps shell out to an agent CLI, not a plain command

	baseWorktreeDiskMB   = 100
	logSpacePerAgentMB   = 10
	tempSpacePerStepMB   = 5
	gitOperationsPerTree = 2 // worktree add + final merge push
	dataPerGitOpMB       = 10

	dataPerAttemptStepMB = 1 // agent-call request/response payload

	checkpointSampleSize = 10
)

// MemoryEstimate reports projected RAM usage across all concurrent agents.
type MemoryEstimate struct {
	TotalMB             int
	PerAgentMB          int
	PeakConcurrentAgents int
}

// DiskEstimate reports projected on-disk footprint across all worktrees.
type DiskEstimate struct {
	TotalMB       int
	PerWorktreeMB int
	TempSpaceMB   int
}

// NetworkEstimate reports projected agent-call and git-transfer volume.
type NetworkEstimate struct {
	DataTransferMB     int
	AttemptStepCalls    int
	ParallelOperations int
}

// CheckpointStorageEstimate reports projected checkpoint file growth over
// the life of the map phase.
type CheckpointStorageEstimate struct {
	CheckpointSizeKB int
	CheckpointCount  int
	TotalMB          int
}

// ResourcePlan is the full dry-run resource estimate for one map phase,
// printed by "mrctl run --dry-run" instead of executing anything.
type ResourcePlan struct {
	ItemCount      int
	WorktreeCount  int
	Memory         MemoryEstimate
	Disk           DiskEstimate
	Network        NetworkEstimate
	Checkpoint     CheckpointStorageEstimate
	EstimatedWall  time.Duration
}

// EstimatePlan projects the resource footprint of running spec's map phase
// (plus reduce step counts, for disk and network sizing; setup steps are not
// counted) over items,
// without launching any worker. perItemDuration is the caller's estimate of
// one item's wall-clock cost (e.g. from config or a prior run's average);
// zero is treated as "unknown" and EstimatedWall is left zero.
func EstimatePlan(spec *jobspec.JobSpec, items []workitem.Item, maxParallel int, perItemDuration time.Duration) ResourcePlan {
	worktreeCount := clampMin(maxParallel, 1)
	if worktreeCount > len(items) {
		worktreeCount = len(items)
	}
	if worktreeCount < 0 {
		worktreeCount = 0
	}

	plan := ResourcePlan{
		ItemCount:     len(items),
		WorktreeCount: worktreeCount,
		Memory:        estimateMemory(spec, items, worktreeCount),
		Disk:          estimateDisk(spec, items, worktreeCount),
		Network:       estimateNetwork(spec, items, worktreeCount, maxParallel),
		Checkpoint:    estimateCheckpointStorage(items),
	}

	if perItemDuration > 0 && worktreeCount > 0 {
		batches := (len(items) + worktreeCount - 1) / worktreeCount
		plan.EstimatedWall = time.Duration(batches) * perItemDuration
	}

	return plan
}

func estimateMemory(spec *jobspec.JobSpec, items []workitem.Item, worktreeCount int) MemoryEstimate {
	maxItemBytes := 0
	for _, it := range items {
		if n := len(it.Data); n > maxItemBytes {
			maxItemBytes = n
		}
	}
	if maxItemBytes == 0 {
		maxItemBytes = 1024
	}
	dataMemoryMB := maxItemBytes / (1024 * 1024)

	stepMemoryMB := 0
	for _, step := range spec.Map.Steps {
		stepMemoryMB += stepMemoryCost(step)
	}

	perAgentMB := baseMemoryPerAgentMB + stepMemoryMB + dataMemoryMB

	return MemoryEstimate{
		TotalMB:              worktreeCount * perAgentMB,
		PerAgentMB:           perAgentMB,
		PeakConcurrentAgents: worktreeCount,
	}
}

func stepMemoryCost(step jobspec.StepTemplate) int {
	if step.CommandKind == jobspec.CommandAttempt {
		return attemptStepMemoryMB
	}
	return shellStepMemoryMB
}

func estimateDisk(spec *jobspec.JobSpec, items []workitem.Item, worktreeCount int) DiskEstimate {
	perWorktreeMB := baseWorktreeDiskMB + logSpacePerAgentMB

	totalSteps := len(spec.Map.Steps) * len(items)
	totalSteps += len(spec.Reduce.Steps)

	tempSpaceMB := totalSteps * tempSpacePerStepMB
	totalMB := (worktreeCount * perWorktreeMB) + tempSpaceMB

	return DiskEstimate{
		TotalMB:       totalMB,
		PerWorktreeMB: perWorktreeMB,
		TempSpaceMB:   tempSpaceMB,
	}
}

func estimateNetwork(spec *jobspec.JobSpec, items []workitem.Item, worktreeCount, maxParallel int) NetworkEstimate {
	attemptCalls := 0
	dataMB := 0

	for _, step := range spec.Map.Steps {
		if step.CommandKind == jobspec.CommandAttempt {
			attemptCalls += len(items)
			dataMB += dataPerAttemptStepMB
		}
	}
	for _, step := range spec.Reduce.Steps {
		if step.CommandKind == jobspec.CommandAttempt {
			attemptCalls++
			dataMB += dataPerAttemptStepMB
		}
	}

	gitOps := worktreeCount * gitOperationsPerTree
	dataMB += gitOps * dataPerGitOpMB

	return NetworkEstimate{
		DataTransferMB:     dataMB,
		AttemptStepCalls:   attemptCalls,
		ParallelOperations: clampMin(maxParallel, 1),
	}
}

func estimateCheckpointStorage(items []workitem.Item) CheckpointStorageEstimate {
	if len(items) == 0 {
		return CheckpointStorageEstimate{CheckpointSizeKB: 0, CheckpointCount: 0, TotalMB: 0}
	}

	sampleN := len(items)
	if sampleN > checkpointSampleSize {
		sampleN = checkpointSampleSize
	}
	sampleBytes := 0
	for _, it := range items[:sampleN] {
		sampleBytes += len(it.Data)
	}
	avgItemBytes := sampleBytes / sampleN

	checkpointSizeKB := (avgItemBytes * len(items)) / 1024

	const checkpointInterval = 10
	checkpointCount := (len(items) + checkpointInterval - 1) / checkpointInterval

	totalMB := (checkpointSizeKB * checkpointCount) / 1024

	return CheckpointStorageEstimate{
		CheckpointSizeKB: checkpointSizeKB,
		CheckpointCount:  checkpointCount,
		TotalMB:          totalMB,
	}
}

func clampMin(n, min int) int {
	if n < min {
		return min
	}
	return n
}
