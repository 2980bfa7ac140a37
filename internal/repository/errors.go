package repository

import (
	"context"
	"database/sql/driver"
	"errors"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	// ErrDuplicate is returned when a write violates a uniqueness constraint
	ErrDuplicate = errors.New("repository: duplicate key")
	// ErrTransient marks a failure that may succeed when retried
	ErrTransient = errors.New("repository: transient failure")
)

const (
	mysqlErrDuplicate       = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// IsTransient reports whether err is a storage failure worth retrying
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, gomysql.ErrInvalidConn) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var me *gomysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlErrLockWaitTimeout || me.Number == mysqlErrDeadlock
	}
	return false
}

// translate maps driver errors onto the repository sentinels
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	var me *gomysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlErrDuplicate {
		return ErrDuplicate
	}
	return err
}

// notFoundAsNil turns gorm.ErrRecordNotFound into a nil error
func notFoundAsNil(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
