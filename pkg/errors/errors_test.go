package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "rtsp_url is required", http.StatusBadRequest)
	expected := "INVALID_INPUT: rtsp_url is required"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestAppError_WithCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewUpstreamError(cause, "camera unreachable")

	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the cause")
	}
	if err.HTTPStatus != http.StatusBadGateway {
		t.Errorf("HTTPStatus = %v, want %v", err.HTTPStatus, http.StatusBadGateway)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() should contain cause, got: %v", err.Error())
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := NewNotFoundError("stream").WithContext("stream_id", "abc").WithContext("attempt", 2)

	if err.Context["stream_id"] != "abc" {
		t.Errorf("Context[stream_id] = %v, want 'abc'", err.Context["stream_id"])
	}
	if err.Context["attempt"] != 2 {
		t.Errorf("Context[attempt] = %v, want 2", err.Context["attempt"])
	}
	if err.Message != "stream not found" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NewConflictError("username already exists")
	wrapped := fmt.Errorf("register: %w", appErr)

	if got := GetAppError(wrapped); got != appErr {
		t.Errorf("GetAppError() = %v, want %v", got, appErr)
	}
	if got := GetAppError(errors.New("plain")); got != nil {
		t.Errorf("GetAppError() on plain error = %v, want nil", got)
	}
	if got := GetAppError(nil); got != nil {
		t.Errorf("GetAppError(nil) = %v, want nil", got)
	}
}
