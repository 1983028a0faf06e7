package model

import "time"

// User is a registered account.
//
// PasswordHash is a bcrypt hash and never leaves the server (json:"-").
// Accounts created through GitHub sign-in have an empty hash and a GitHubID;
// password login is impossible for them until a password is set.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"` // stored lower-cased, unique
	PasswordHash string    `json:"-"`
	GitHubID     *int64    `json:"githubId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
