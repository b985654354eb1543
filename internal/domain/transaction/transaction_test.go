package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxStatus(t *testing.T) {
	assert.Equal(t, StatusBlocked, MaxStatus(StatusReview, StatusBlocked))
	assert.Equal(t, StatusBlocked, MaxStatus(StatusBlocked, StatusReview))
	assert.Equal(t, StatusReview, MaxStatus(StatusCleared, StatusReview))
	assert.Equal(t, StatusCleared, MaxStatus(StatusCleared, StatusCleared))
}

func TestTypes(t *testing.T) {
	assert.Len(t, Types, 4)
	assert.Contains(t, Types, TypeTransfer)
	assert.Contains(t, Types, TypeWithdrawal)
}
