// Package workitem implements WorkItem and the C6-owned WorkItemSet: the
// five disjoint partitions (pending, in_progress, completed, failed,
// dead_lettered) a map phase moves items through, modeled on the teacher's
// task.StateManager atomic-write idiom (internal/task/state.go) generalized
// from a single flat status to a partitioned set with explicit invariants.
package workitem

import (
	"encoding/json"
	"fmt"
	"time"
)

// Origin tags where an item came from, used to decide tail-vs-priority
// re-enqueue behavior and to report provenance in AgentResult.
type Origin string

const (
	OriginFresh Origin = "fresh"
	OriginRetry Origin = "retry"
	OriginDLQ   Origin = "from-dlq"
)

// Item is a single unit of map-phase work. ID must be unique within a Job;
// Data is an opaque structured payload the agent worker interpolates into
// its step templates.
type Item struct {
	ID     string          `json:"item_id"`
	Data   json.RawMessage `json:"data"`
	Origin Origin          `json:"origin"`
}

// ResultStatus is the terminal or in-flight status reported by an agent.
type ResultStatus string

const (
	ResultSuccess  ResultStatus = "success"
	ResultFailed   ResultStatus = "failed"
	ResultTimeout  ResultStatus = "timeout"
	ResultRetrying ResultStatus = "retrying"
)

// AgentResult is what an Agent Worker (C5) reports back for one item.
type AgentResult struct {
	ItemID          string        `json:"item_id"`
	Status          ResultStatus  `json:"status"`
	Reason          string        `json:"reason,omitempty"`
	Attempt         int           `json:"attempt,omitempty"`
	Output          string        `json:"output,omitempty"`
	Commits         []string      `json:"commits,omitempty"`
	FilesModified   []string      `json:"files_modified,omitempty"`
	Duration        time.Duration `json:"duration"`
	WorkspaceHandle string        `json:"workspace_handle,omitempty"`
	BranchName      string        `json:"branch_name,omitempty"`
	JSONLogLocation string        `json:"json_log_location,omitempty"`
}

// FailureRecord accumulates failure history for an item across attempts.
type FailureRecord struct {
	ItemID        string    `json:"item_id"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	WorkspaceInfo string    `json:"workspace_info,omitempty"`
}

// AgentHandle identifies the worker holding an in-progress item.
type AgentHandle struct {
	AgentID       string    `json:"agent_id"`
	WorkspaceID   string    `json:"workspace_id"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// InProgressEntry pairs an in-flight item with the handle of the agent
// processing it.
type InProgressEntry struct {
	Item   Item        `json:"item"`
	Handle AgentHandle `json:"handle"`
}

// Set is the C6-owned partitioned work item collection. The zero value is
// not usable; use NewSet.
type Set struct {
	pending      []Item
	inProgress   map[string]*InProgressEntry
	completed    map[string]*AgentResult
	failed       map[string]*FailureRecord
	deadLettered map[string]bool
	total        int
}

// NewSet seeds a fresh Set with every item starting in pending, in the
// given order (FIFO). Item IDs must be unique; a duplicate is a validation
// error the caller should surface before the map phase starts.
func NewSet(items []Item) (*Set, error) {
	s := &Set{
		pending:      make([]Item, 0, len(items)),
		inProgress:   make(map[string]*InProgressEntry),
		completed:    make(map[string]*AgentResult),
		failed:       make(map[string]*FailureRecord),
		deadLettered: make(map[string]bool),
	}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("workitem: item has empty item_id")
		}
		if seen[it.ID] {
			return nil, fmt.Errorf("workitem: duplicate item_id %q", it.ID)
		}
		seen[it.ID] = true
		s.pending = append(s.pending, it)
	}
	s.total = len(items)
	return s, nil
}

// Total returns the fixed total item count the set was constructed with.
func (s *Set) Total() int { return s.total }
