package model

import "time"

// User is a registered account. ID is the token subject.
type User struct {
	ID            int64     `json:"user_id"`
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	FirstName     *string   `json:"first_name"`
	LastName      *string   `json:"last_name"`
	Language      *string   `json:"language"`
	IsBot         bool      `json:"is_bot"`
	PremiumStatus *string   `json:"premium_status"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewUser holds registration input after validation.
// A zero ID lets the database assign one.
type NewUser struct {
	ID            int64
	Username      string
	Password      string
	FirstName     *string
	LastName      *string
	Language      *string
	IsBot         bool
	PremiumStatus *string
}
