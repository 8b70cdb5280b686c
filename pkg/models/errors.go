package models

import "errors"

// Common errors for gateway domain operations.
var (
	// ErrValidation marks malformed caller input. Its text is safe to
	// return to clients.
	ErrValidation = errors.New("validation failed")

	// User errors
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")

	// Profile errors
	ErrProfileNotFound     = errors.New("profile not found")
	ErrProfileNameConflict = errors.New("a profile with this name already exists")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")

	// Connection errors
	ErrNotConnected       = errors.New("connection is not established")
	ErrConnectionNotFound = errors.New("connection not found")

	// Vault errors
	ErrCrypto = errors.New("decryption failed")

	// Assistant errors
	ErrAssistant = errors.New("assistant request failed")
)
