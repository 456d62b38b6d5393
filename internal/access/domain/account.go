package domain

import "time"

// Account is the platform account created or looked up when an invitation is
// accepted. One account may hold several claimed profiles.
type Account struct {
	ID           string
	Email        string // normalized lower case, unique
	PasswordHash string // PHC-format Argon2id
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
