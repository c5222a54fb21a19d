package handler

import "errors"

var (
	// ErrValidation marks a definition that is missing a required field.
	ErrValidation = errors.New("invalid handler definition")
	// ErrDuplicateIdentifier marks a definition whose identifier is already registered.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	// ErrLoadExhausted is returned when a mandatory kind ends a load cycle empty.
	ErrLoadExhausted = errors.New("no handlers loaded")
	// ErrDispatchMiss marks a notification without a matching registration.
	ErrDispatchMiss = errors.New("no handler registered")
	// ErrInvocation wraps any failure raised by a handler body.
	ErrInvocation = errors.New("handler invocation failed")
)
