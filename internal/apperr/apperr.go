// Package apperr carries an error kind alongside an error so that the HTTP
// layer can pick a status code without inspecting messages.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindConfiguration
	KindBadRequest
	KindNotFound
	KindConflict
	KindExternalService
	KindPersistence
)

var statusByKind = map[Kind]int{
	KindInternal:        http.StatusInternalServerError,
	KindAuthentication:  http.StatusUnauthorized,
	KindConfiguration:   http.StatusInternalServerError,
	KindBadRequest:      http.StatusBadRequest,
	KindNotFound:        http.StatusNotFound,
	KindConflict:        http.StatusConflict,
	KindExternalService: http.StatusBadGateway,
	KindPersistence:     http.StatusInternalServerError,
}

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindConfiguration:
		return "configuration"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindExternalService:
		return "external_service"
	case KindPersistence:
		return "persistence"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTPStatus maps err to a response status. Untagged errors are 500.
func HTTPStatus(err error) int {
	return statusByKind[KindOf(err)]
}

// PublicMessage is the message safe to return to a caller. Internal and
// persistence failures never leak their cause.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal server error"
	}
	switch e.Kind {
	case KindInternal, KindPersistence, KindConfiguration:
		return "internal server error"
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error()
}
