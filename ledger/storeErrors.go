package ledger

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mmdatafocus/warehouse_stock/models"
	"gorm.io/gorm"
)

// MySQL server error numbers.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// Postgres SQLSTATE codes.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// classifyStoreError maps a storage failure onto the ledger error kinds.
// Invariant violations pass through untyped because they are programming errors.
func classifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	if errors.Is(err, models.ErrBalanceInvariant) || errors.Is(err, models.ErrInvalidMovement) {
		return err
	}
	if isConflict(err) {
		return &Error{Kind: KindConflict, Message: "concurrent update", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindDependencyUnavailable, Message: "storage timeout", Err: err}
	}
	if isConnectivity(err) {
		return &Error{Kind: KindDependencyUnavailable, Message: "storage unreachable", Err: err}
	}
	return &Error{Kind: KindDependencyUnavailable, Message: "storage error", Err: err}
}

func isConflict(err error) bool {
	if errors.Is(err, models.ErrVersionConflict) ||
		errors.Is(err, models.ErrDuplicateKey) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry, mysqlLockWaitTimeout, mysqlDeadlock:
			return true
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return true
		}
	}
	return false
}

// isConnectivity reports failures where the storage could not be reached at all.
func isConnectivity(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
