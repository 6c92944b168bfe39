package job

import "strings"

// transientSignatures and permanentSignatures implement the same
// string-sniffing idiom the teacher uses for rate-limit detection
// (internal/agent/ratelimit.go's providerForAgent/RecordRateLimit): pattern
// match known substrings in an error message rather than relying on typed
// errors from external commands, since step output is free-form text.
var transientSignatures = []string{
	"500", "502", "503", "504",
	"rate limit", "rate-limit", "ratelimit",
	"overloaded",
	"timeout", "timed out",
	"connection refused", "connection reset",
	"econnreset",
}

var permanentSignatures = []string{
	"authentication", "unauthorized", "forbidden",
	"invalid command", "invalid syntax",
	"not found", "no such",
	"quota exceeded",
}

// Classify implements spec §7/§8 property 10's transient-vs-permanent
// classification: an error string containing "500"/"rate limit"/
// "overloaded" classifies transient; one containing "authentication" or
// "invalid command" classifies permanent. Permanent signatures are checked
// first so "invalid command: connection refused" (a fabricated edge case)
// still reads as permanent, since no retry fixes a malformed command.
func Classify(errMsg string) ErrorClass {
	lower := strings.ToLower(errMsg)
	for _, sig := range permanentSignatures {
		if strings.Contains(lower, sig) {
			return ClassPermanent
		}
	}
	for _, sig := range transientSignatures {
		if strings.Contains(lower, sig) {
			return ClassTransient
		}
	}
	// Unknown error text defaults to transient: the conservative choice per
	// spec §7 is to retry rather than silently dead-letter ambiguous
	// failures, leaving the retry budget (not an unbounded loop) as the
	// backstop.
	return ClassTransient
}
