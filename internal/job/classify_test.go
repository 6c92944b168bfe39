package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		msg  string
		want ErrorClass
	}{
		{"http 500", "server responded with 500", ClassTransient},
		{"rate limit phrase", "hit a rate limit, try later", ClassTransient},
		{"overloaded phrase", "the model is overloaded", ClassTransient},
		{"timeout", "context deadline exceeded: timeout", ClassTransient},
		{"authentication failure", "authentication failed for user", ClassPermanent},
		{"invalid command", "invalid command: foobar", ClassPermanent},
		{"unknown defaults transient", "something weird happened", ClassTransient},
		{"case insensitive", "AUTHENTICATION ERROR", ClassPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.msg))
		})
	}
}

func TestWorkflowHash_Deterministic(t *testing.T) {
	t.Parallel()
	spec := map[string]any{"name": "wf", "steps": []string{"a", "b"}}

	h1, err := WorkflowHash(spec)
	assert := assert.New(t)
	assert.NoError(err)

	h2, err := WorkflowHash(spec)
	assert.NoError(err)
	assert.Equal(h1, h2)
}

func TestWorkflowHash_DiffersOnChange(t *testing.T) {
	t.Parallel()
	a := map[string]any{"name": "wf-a"}
	b := map[string]any{"name": "wf-b"}

	ha, err1 := WorkflowHash(a)
	hb, err2 := WorkflowHash(b)

	assert.NoError(t, err1)
	assert.NoError(t, err2)
	assert.NotEqual(t, ha, hb)
}
