// Package apperr holds the coded error type shared by the domain packages. Each
// package declares its own sentinels with New; detail errors unwrap to them.
package apperr

import (
	"errors"
	"net/http"
)

type Code string

type Error struct {
	Code       Code
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

func New(code Code, status int, message string) *Error {
	return &Error{Code: code, StatusCode: status, Message: message}
}

// From returns the coded error in err's chain, or nil for infrastructure errors.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// Status maps err to an HTTP status; uncoded errors are 500.
func Status(err error) int {
	if e := From(err); e != nil {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}
