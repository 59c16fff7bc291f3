package services

import "errors"

// Errors returned by the services and mapped to HTTP statuses by the handlers.
var (
	ErrValidation           = errors.New("input validation failed")
	ErrUnauthorized         = errors.New("invalid username or password")
	ErrForbidden            = errors.New("invalid session token")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUpstream             = errors.New("model provider request failed")
)
