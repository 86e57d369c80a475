package receipt

import (
	"testing"

	"github.com/chainsim-dev/chainsim/assert"
)

func TestCompletionConstructors(t *testing.T) {
	c := ValueCompletion([]byte("result"))
	assert.Equal(t, CompletionValue, c.Kind)
	assert.Equal(t, "result", string(c.Value))

	c = ForwardCompletion(7)
	assert.Equal(t, CompletionForward, c.Kind)
	assert.Equal(t, 7, int(c.Forward))

	c = FailedCompletion("went wrong")
	assert.Equal(t, CompletionFailed, c.Kind)
	assert.Equal(t, "went wrong", c.Reason)
}

func TestResolvedOutcomes(t *testing.T) {
	r := Successful([]byte("v"))
	assert.True(t, r.Successful)
	assert.Equal(t, "v", string(r.Value))
	assert.Equal(t, "", r.Reason)

	r = Failed("no dice")
	assert.False(t, r.Successful)
	assert.Equal(t, "no dice", r.Reason)
	assert.Nil(t, r.Value)
}
