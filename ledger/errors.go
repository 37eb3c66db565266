package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies a ledger failure for callers.
type Kind string

const (
	KindNotFound              Kind = "NotFound"
	KindInvalidArgument       Kind = "InvalidArgument"
	KindInsufficientStock     Kind = "InsufficientStock"
	KindConflict              Kind = "Conflict"
	KindDependencyUnavailable Kind = "DependencyUnavailable"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any ledger error of the same kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

var (
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrInvalidArgument       = &Error{Kind: KindInvalidArgument}
	ErrInsufficientStock     = &Error{Kind: KindInsufficientStock}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrDependencyUnavailable = &Error{Kind: KindDependencyUnavailable}
)

// KindOf returns the kind of a ledger error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func notFound(productId, warehouseId string) *Error {
	return newError(KindNotFound, nil, "stock not found for product %s in warehouse %s", productId, warehouseId)
}

func invalidArgument(format string, args ...any) *Error {
	return newError(KindInvalidArgument, nil, format, args...)
}

func insufficientStock(available, requested int) *Error {
	return newError(KindInsufficientStock, nil, "insufficient stock. available: %d, requested: %d", available, requested)
}
