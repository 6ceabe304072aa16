package domain

import "time"

// User is an account that can hold sessions. Password hashes are in
// Argon2id PHC format.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
