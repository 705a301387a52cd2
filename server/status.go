package server

import (
	"errors"
	"net/http"

	"github.com/jrife/skv/query"
	"github.com/jrife/skv/registry"
	"github.com/jrife/skv/schema"
	"github.com/jrife/skv/storage/kv/keys/composite"
	"github.com/jrife/skv/txn"
)

// Status is the outcome of an operation as reported to clients
type Status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OK returns the status of a successful operation with code
func OK(code int) Status {
	return Status{Code: code, Message: http.StatusText(code)}
}

// StatusFor maps an error to the status reported for it
func StatusFor(err error) Status {
	if err == nil {
		return OK(http.StatusOK)
	}

	return Status{Code: codeFor(err), Message: err.Error()}
}

func codeFor(err error) int {
	switch {
	case errors.Is(err, schema.ErrInvalidArgument),
		errors.Is(err, schema.ErrTypeMismatch),
		errors.Is(err, schema.ErrMissingKeyField),
		errors.Is(err, schema.ErrUnknownField),
		errors.Is(err, composite.ErrMalformedKey),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, txn.ErrConflict),
		errors.Is(err, registry.ErrAlreadyExists):
		return http.StatusForbidden
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, txn.ErrNotFound),
		errors.Is(err, query.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, txn.ErrInvalidState):
		return http.StatusGone
	case errors.Is(err, txn.ErrUnavailable),
		errors.Is(err, txn.ErrClosed):
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}
