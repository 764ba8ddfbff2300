package auth

import "errors"

var (
	// ErrAccountExists indicates the email or username is already registered.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidCredentials is returned when authentication fails.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidUsername is returned for usernames outside 3..50 characters.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrUnauthorized represents missing or invalid authentication tokens.
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidSettings = errors.New("invalid settings")
)
