package dlq

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/abz10m/mrctl/internal/job"
)

// Action is the outcome of a retry/DLQ decision for a failed item.
type Action string

const (
	ActionRetry      Action = "retry"
	ActionDeadLetter Action = "dead_letter"
)

// Decision is what the scheduler does next with a failed item, per §7's
// "the scheduler never fails the job on a single item — it routes through
// retry/DLQ" propagation policy.
type Decision struct {
	Action Action
	Wait   time.Duration
	// ManualReviewRequired distinguishes a permanent-classification
	// dead-letter (§4.6: always flagged for a human to look at) from one
	// that merely exhausted its transient retry budget (not flagged).
	// Meaningless when Action is ActionRetry.
	ManualReviewRequired bool
}

// Policy decides whether a failed item is retried (with backoff) or
// dead-lettered, grounded on the exponential-backoff shape of the teacher's
// BackoffConfig (internal/agent/ratelimit.go) but computed with
// cenkalti/backoff/v5's ExponentialBackOff rather than a hand-rolled
// formula.
type Policy struct {
	MaxRetries int
	backoff    *backoff.ExponentialBackOff
}

// NewPolicy returns a Policy allowing up to maxRetries retries after the
// first failed attempt (maxRetries+1 attempts in all) before dead-lettering,
// pacing retries with an exponential backoff starting at
// initialWait and capped at maxWait.
func NewPolicy(maxRetries int, initialWait, maxWait time.Duration) *Policy {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialWait
	b.MaxInterval = maxWait
	return &Policy{MaxRetries: maxRetries, backoff: b}
}

// Decide classifies errMsg and returns whether the item should be retried
// (with how long to wait) or dead-lettered. A permanent classification
// dead-letters immediately regardless of remaining attempts (§7: "not
// retried"); a transient classification retries until attempts exceeds
// MaxRetries, then dead-letters.
func (p *Policy) Decide(attempts int, errMsg string) Decision {
	class := job.Classify(errMsg)
	if class == job.ClassPermanent {
		return Decision{Action: ActionDeadLetter, ManualReviewRequired: true}
	}
	if attempts > p.MaxRetries {
		return Decision{Action: ActionDeadLetter, ManualReviewRequired: false}
	}

	wait := p.backoff.NextBackOff()
	if wait == backoff.Stop {
		return Decision{Action: ActionDeadLetter, ManualReviewRequired: false}
	}
	return Decision{Action: ActionRetry, Wait: wait}
}

// Reset clears accumulated backoff state, so the next retry Wait starts again
// from the initial interval. The scheduler does not call it: one Policy's
// backoff state is shared by every item it decides on.
func (p *Policy) Reset() {
	p.backoff.Reset()
}
