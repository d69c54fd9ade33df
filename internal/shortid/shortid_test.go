package shortid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New()
		assert.Len(t, id, 8)
		seen[id] = true
	}
	// Collisions in 100 draws from a 16^8 space would indicate a broken
	// generator.
	assert.Len(t, seen, 100)
}

func TestGenerateRetriesOnCollision(t *testing.T) {
	calls := 0
	id, collisions, err := Generate(5, func(string) (bool, error) {
		calls++
		return calls <= 2, nil
	})
	require.NoError(t, err)
	assert.Len(t, id, 8)
	assert.Equal(t, 2, collisions)
}

func TestGenerateExhaustsAttempts(t *testing.T) {
	_, collisions, err := Generate(3, func(string) (bool, error) {
		return true, nil
	})
	require.Error(t, err)
	assert.Equal(t, 3, collisions)
}

func TestGeneratePropagatesCheckError(t *testing.T) {
	boom := errors.New("db down")
	_, _, err := Generate(3, func(string) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}
