package job

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// WorkflowHash computes the content digest spec §3 calls `workflow_hash`:
// an xxhash.Sum64 over the canonical (map-key-sorted, via encoding/json's
// stable map ordering) JSON encoding of the normalized job spec. Any two
// calls with structurally equal input produce the same hash — used both to
// stamp a freshly created Job and to validate a resume against the current
// workflow definition (§4.4).
func WorkflowHash(normalizedSpec any) (string, error) {
	b, err := json.Marshal(normalizedSpec)
	if err != nil {
		return "", fmt.Errorf("job: computing workflow hash: %w", err)
	}
	sum := xxhash.Sum64(b)
	return fmt.Sprintf("%016x", sum), nil
}
