package utils

import (
	"github.com/google/uuid"
)

// NewID returns a random identifier with a readable type prefix, e.g. "stream_3f2c...".
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func NewStreamID() string    { return NewID("stream") }
func NewDetectionID() string { return NewID("det") }
func NewAlertID() string     { return NewID("alert") }
func NewUserID() string      { return NewID("user") }
func NewSessionID() string   { return NewID("sess") }

// NewRequestID is used for the X-Request-ID header when the client sent none.
func NewRequestID() string {
	return uuid.NewString()
}
