package auth

import "errors"

// Token and credential errors. The API maps each to a distinct 401 message.
var (
	ErrInvalidToken     = errors.New("invalid authentication token")
	ErrExpiredToken     = errors.New("authentication token has expired")
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")
	ErrMissingToken     = errors.New("authentication token is missing")

	// ErrInvalidCredentials covers both an unknown email and a wrong password
	// so login responses do not reveal which accounts exist
	ErrInvalidCredentials = errors.New("invalid credentials")
)
