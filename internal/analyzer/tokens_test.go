package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTokens(t *testing.T) {
	assert.Zero(t, CountTokens(""))

	n := CountTokens("hello world, this is Mama Bear")
	assert.Positive(t, n)
	assert.LessOrEqual(t, n, len("hello world, this is Mama Bear"))
}

func TestEstimateTokenCount(t *testing.T) {
	assert.Equal(t, 1, estimateTokenCount("abc"))
	assert.Equal(t, 2, estimateTokenCount("abcdefgh"))
	assert.Zero(t, estimateTokenCount(""))
}
