package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL is returned for site URLs without a scheme or host.
	ErrInvalidURL = errors.New("invalid site url")
	// ErrUnknownAccount is returned when an operation references an account
	// that is not in the store.
	ErrUnknownAccount = errors.New("unknown account")
	// ErrDuplicateAccount is returned when an account with the same key exists.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrMissingUsername is returned when a password is given without a
	// username.
	ErrMissingUsername = errors.New("password given without username")
)

// AuthenticationError carries the error code and message of a rejected login.
type AuthenticationError struct {
	Code    int
	Message string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed with code %d: %s", e.Code, e.Message)
}

// ProtocolError reports an empty or malformed response where a well-formed
// one was expected.
type ProtocolError struct {
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Detail, e.Err)
	}
	return "protocol error: " + e.Detail
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
