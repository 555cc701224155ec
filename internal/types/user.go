package types

import "time"

// User represents a portal account as stored in the credential store.
type User struct {
	ID           string    `json:"id"`         // Mongo ObjectID hex or Postgres UUID.
	Name         string    `json:"name"`       // Display name, required.
	Email        string    `json:"email"`      // Login key, unique.
	Admin        bool      `json:"admin"`      // Administrator flag.
	PasswordHash string    `json:"-"`          // bcrypt hash (never exposed).
	CreatedAt    time.Time `json:"created_at"` // Defaults to creation time.
}

// PublicUser is the shape of a User handed to templates and JSON responses.
// It has no password field at all so it cannot leak one.
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Admin     bool      `json:"admin"`
	CreatedAt time.Time `json:"created_at"`
}

// Public strips the password hash. A nil user yields nil.
func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	return &PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Admin:     u.Admin,
		CreatedAt: u.CreatedAt,
	}
}

// CreateUserParams holds the fields needed to insert a user. PasswordHash must
// already be hashed; the store never sees plaintext.
type CreateUserParams struct {
	Name         string
	Email        string
	Admin        bool
	PasswordHash string
	CreatedAt    time.Time // zero means now
}

// Response is a generic JSON body for simple success/error replies.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
