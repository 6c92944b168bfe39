package variables

import (
	"fmt"
	"regexp"
	"strings"
)

// reVarRef matches a "{{ name }}" or "{{name}}" reference. Names are
// dotted identifiers (item.id, steps.fetch.output) rather than Go struct
// paths, so rendering uses direct Scope lookups instead of text/template --
// a field path like "steps.fetch.output" has no Go struct to walk.
var reVarRef = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// TemplateInterpolator renders step command text by substituting every
// "{{ name }}" reference with the named Scope value, mirroring the
// {{ item.id }} convention jobspec step command text uses. It implements
// worker.Interpolator.
type TemplateInterpolator struct{}

// NewTemplateInterpolator returns a ready-to-use TemplateInterpolator.
func NewTemplateInterpolator() *TemplateInterpolator {
	return &TemplateInterpolator{}
}

// Interpolate substitutes every "{{ name }}" reference in text with its
// Scope value. A reference naming a variable absent from scope is an error
// rather than being silently left in place or replaced with "", so a typo
// in a jobspec step surfaces immediately instead of running a broken command.
func (TemplateInterpolator) Interpolate(text string, scope *Scope) (string, error) {
	var firstErr error
	out := reVarRef.ReplaceAllStringFunc(text, func(ref string) string {
		if firstErr != nil {
			return ref
		}
		name := strings.TrimSpace(reVarRef.FindStringSubmatch(ref)[1])
		val, ok := scope.Get(name)
		if !ok {
			firstErr = fmt.Errorf("variables: undefined reference %q", name)
			return ref
		}
		return fmt.Sprint(val)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}
