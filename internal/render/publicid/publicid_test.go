package publicid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducesValidIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := New()
		require.NoError(t, err)
		assert.Len(t, id, Length)
		assert.True(t, Valid(id), "id %q", id)
		assert.False(t, seen[id], "duplicate id %q", id)
		seen[id] = true
	}
}

func TestValid(t *testing.T) {
	assert.False(t, Valid(""))
	assert.False(t, Valid("short"))
	assert.False(t, Valid("has spaces in the id!"))
	assert.True(t, Valid("abcdefghijklmnopqrstu"))
}
