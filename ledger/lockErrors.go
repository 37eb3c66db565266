package ledger

import (
	"context"
	"errors"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/warehouse_stock/models"
)

func lockError(err error) error {
	var le *Error
	switch {
	case errors.As(err, &le):
		return err
	case errors.Is(err, redislock.ErrNotObtained), errors.Is(err, models.ErrLockNotObtained), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindConflict, Message: "timed out waiting for stock lock", Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindDependencyUnavailable, Message: "request cancelled while waiting for stock lock", Err: err}
	}
	return &Error{Kind: KindDependencyUnavailable, Message: "lock backend unavailable", Err: err}
}
