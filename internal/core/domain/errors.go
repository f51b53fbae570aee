package domain

import "errors"

var (
	ErrStreamNotFound    = errors.New("stream not found")
	ErrDetectionNotFound = errors.New("detection not found")
	ErrAlertNotFound     = errors.New("alert not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserExists        = errors.New("username already exists")
	ErrAlertExists       = errors.New("alert already exists for detection")
	ErrInvalidInput      = errors.New("invalid input")

	// ErrMissingURL is reported to the client when start carries no RTSP url.
	ErrMissingURL = errors.New("No RTSP URL provided")
	// ErrConnectionClosed means the client went away.
	ErrConnectionClosed = errors.New("connection closed")
)

// ErrTransport wraps failures to deliver data to the client.
var ErrTransport = errors.New("transport send failed")
