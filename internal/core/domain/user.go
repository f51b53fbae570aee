package domain

import "time"

type UserID string

// User is an administrator account.
type User struct {
	ID           UserID
	Username     string
	Email        string
	PasswordHash string
	IsAdmin      bool
	LastLogin    *time.Time
	CreatedAt    time.Time
}
