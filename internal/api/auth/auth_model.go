package auth

import (
	"context"

	"github.com/FACorreiaa/mic-data-portal/internal/types"
)

const (
	LoginPath  = "/users/login"
	LogoutPath = "/users/logout"
	HomePath   = "/"
)

// Flash texts shown after login and logout.
const (
	msgFillAllFields     = "Please fill in all fields"
	msgIncorrectPassword = "Incorrect password"
	msgLockedOut         = "Too many failed login attempts, please try again later"
	msgLoggedIn          = "You are now logged in"
	msgLoggedOut         = "You are logged out"
	msgInternalError     = "Internal Server Error"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserFinder is the part of the credential store authentication reads.
// Both lookups return types.ErrNotFound when nothing matches.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*types.User, error)
	FindByID(ctx context.Context, id string) (*types.User, error)
}
