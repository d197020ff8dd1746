package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBookingCode(t *testing.T) {
	code, err := NewBookingCode()
	require.NoError(t, err)
	assert.Len(t, code, 14)
	assert.True(t, strings.HasPrefix(code, "BK"))
	for _, c := range code[2:] {
		assert.Contains(t, base36Alphabet, string(c))
	}
}

func TestNewBookingCodeVaries(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := NewBookingCode()
		require.NoError(t, err)
		seen[code] = true
	}
	// The random suffix makes collisions within one run very unlikely.
	assert.Greater(t, len(seen), 95)
}

func TestNewPaymentReference(t *testing.T) {
	ref, err := NewPaymentReference()
	require.NoError(t, err)
	parts := strings.Split(ref, "-")
	require.Len(t, parts, 3)
	assert.Equal(t, "PAY", parts[0])
	assert.Len(t, parts[2], 6)
}
