package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowConsumesBucket(t *testing.T) {
	l := New()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("client-a", 3, 0), "call %d should pass", i)
	}
	assert.False(t, l.Allow("client-a", 3, 0), "bucket exhausted")

	// Buckets are per key.
	assert.True(t, l.Allow("client-b", 3, 0))
}
