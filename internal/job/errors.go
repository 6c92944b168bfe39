package job

import "errors"

// Sentinel error kinds, checked with errors.Is/errors.As. Every package that
// surfaces a failure to the phase coordinator wraps one of these with
// fmt.Errorf("...: %w", ...) so the caller can classify it without parsing
// message text.
var (
	// ErrValidation marks missing input, malformed workflow, schema
	// mismatch, or an unknown command kind. Not recoverable locally.
	ErrValidation = errors.New("job: validation error")

	// ErrTransient marks an error whose cause may resolve on retry: HTTP
	// 5xx, rate-limit/overload signals, network timeouts, process-spawn
	// failures, resolvable merge conflicts.
	ErrTransient = errors.New("job: transient error")

	// ErrPermanent marks an error retry cannot resolve: authentication
	// failures, invalid command syntax, unreachable dependency, quota
	// exceeded.
	ErrPermanent = errors.New("job: permanent error")

	// ErrCancellation marks a user- or parent-initiated cancellation.
	// Causes orderly shutdown; not treated as a job failure.
	ErrCancellation = errors.New("job: cancelled")

	// ErrCorruption marks checkpoint hash mismatch, workflow hash mismatch
	// on resume, or inconsistent WorkItemSet partitions. Reported as
	// validation-class; resume is refused.
	ErrCorruption = errors.New("job: state corruption")
)

// ErrorClass is the classification a transient/permanent decision produces.
type ErrorClass string

const (
	ClassTransient    ErrorClass = "transient"
	ClassPermanent    ErrorClass = "permanent"
	ClassValidation   ErrorClass = "validation"
	ClassCancellation ErrorClass = "cancellation"
	ClassCorruption   ErrorClass = "corruption"
)
