package common

import "errors"

var (
	// ErrUnauthenticated: the operation needs a signed-in user.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound: the referenced session, reminder or profile does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation: malformed input.
	ErrValidation = errors.New("validation error")
	// ErrTransientIO: a network or store call failed; callers decide whether to retry.
	ErrTransientIO = errors.New("transient io error")
	// ErrTimeout: the inference call exceeded its bound.
	ErrTimeout = errors.New("timeout")
)
