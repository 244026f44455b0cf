package domain

import "errors"

// Failure taxonomy shared by every adapter. The application layer returns
// these unwrapped or wrapped with %w; callers branch with errors.Is and decide
// how to surface them (redirect query, JSON body, RPC error object).
var (
	ErrBadgeRequired       = errors.New("badge code is required")
	ErrAgentFieldsRequired = errors.New("nom and poste are required")
	ErrAgentNotFound       = errors.New("no agent matches this badge")
	ErrNotFound            = errors.New("not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrSessionExpired      = errors.New("session expired")
	ErrTokenExpired        = errors.New("token expired")
)
