package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bluenviron/gortsplib/v4/pkg/base"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@+-]+$`)

// ValidateRTSPURL checks that the value is an absolute rtsp:// or rtsps:// URL with a host.
func ValidateRTSPURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("rtsp_url is required")
	}
	if len(raw) > 2048 {
		return fmt.Errorf("rtsp_url is too long (max 2048 characters)")
	}
	u, err := base.ParseURL(raw)
	if err != nil {
		return fmt.Errorf("invalid rtsp_url: %w", err)
	}
	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		return fmt.Errorf("rtsp_url must use rtsp or rtsps")
	}
	if u.Host == "" {
		return fmt.Errorf("rtsp_url must have a host")
	}
	return nil
}

// ValidateUsername validates an admin account name.
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) < 3 {
		return fmt.Errorf("username must be at least 3 characters")
	}
	if len(username) > 150 {
		return fmt.Errorf("username is too long (max 150 characters)")
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username contains invalid characters")
	}
	return nil
}

// ValidatePassword validates password
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	// bcrypt ignores everything past 72 bytes
	if len(password) > 72 {
		return fmt.Errorf("password is too long (max 72 bytes)")
	}
	return nil
}

// ValidateEmail accepts an empty value; admins may register without one.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}
	if len(email) > 254 {
		return fmt.Errorf("email is too long (max 254 characters)")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateStreamName validates stream name
func ValidateStreamName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if utf8.RuneCountInString(name) > 100 {
		return fmt.Errorf("name is too long (max 100 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("name contains invalid characters")
	}
	return nil
}

// ValidateConfidence checks a detection score or threshold.
func ValidateConfidence(value float64, field string) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("%s must be between 0 and 1", field)
	}
	return nil
}
