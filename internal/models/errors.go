package models

import "errors"

// Application-wide standard errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrBadRequest   = errors.New("bad request")
	ErrInvalidInput = errors.New("invalid input data")

	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionInvalid     = errors.New("session invalid")

	// Разрушительные действия без явного подтверждения не выполняются.
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrUnknownAction        = errors.New("unknown manage action")
	ErrFieldMissing         = errors.New("pattern has no content for this field")
)
