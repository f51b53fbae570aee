package utils

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	id := NewStreamID()
	assert.True(t, strings.HasPrefix(id, "stream_"))

	_, err := uuid.Parse(strings.TrimPrefix(id, "stream_"))
	assert.NoError(t, err)

	assert.NotEqual(t, NewAlertID(), NewAlertID())
}
