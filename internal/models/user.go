// Package models defines the core data structures for users, application
// drafts and bus pass applications.
package models

import "time"

// User represents a registered student.
type User struct {
	// ID is the unique identifier for the user.
	ID string `json:"id"`
	// FullName is the name given at registration.
	FullName string `json:"fullName"`
	// Email is the normalized login email, unique across users.
	Email string `json:"email"`
	// Mobile is the 10-digit mobile number.
	Mobile string `json:"mobile"`
	// PasswordHash is the argon2id hash of the user's password.
	PasswordHash string `json:"-"`
	// CreatedAt is the registration time.
	CreatedAt time.Time `json:"createdAt"`
}
