package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDeadlock(t *testing.T) {
	// The mysql driver renders server errors as "Error NNNN: message".
	deadlock := errors.New("Error 1213: Deadlock found when trying to get lock; try restarting transaction")
	assert.True(t, isDeadlock(deadlock))

	assert.False(t, isDeadlock(nil))
	assert.False(t, isDeadlock(errors.New("Error 1062: Duplicate entry 'PAY-X' for key 'reference'")))
	assert.False(t, isDeadlock(errors.New("connection refused")))
}
