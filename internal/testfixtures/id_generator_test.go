package testfixtures

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("sync")

	assert.Equal(t, "sync-1", gen.Next())
	assert.Equal(t, "sync-2", gen.Next())
	assert.EqualValues(t, 2, gen.Issued())
}

func TestIDGeneratorWithoutPrefixYieldsStableUUIDs(t *testing.T) {
	first := NewIDGenerator("").Next()
	again := NewIDGenerator("").Next()

	_, err := uuid.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}
