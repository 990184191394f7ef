package cache

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Failure kinds reported by FailureKind.
const (
	FailureConstraint  = "constraint"
	FailureUnavailable = "unavailable"
	FailureTimeout     = "timeout"
	FailureOther       = "failure"
)

// FailureKind classifies a store error across the supported database vendors so operators
// can tell an outage apart from a schema or data problem.
func FailureKind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTimeout
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return FailureConstraint
	}
	if errors.Is(err, driver.ErrBadConn) {
		return FailureUnavailable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"):
			return FailureConstraint
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57P01", pgErr.Code == "53300":
			return FailureUnavailable
		}
		return FailureOther
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return FailureUnavailable
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil {
		switch myErr.Number {
		case 1062, 1451, 1452:
			return FailureConstraint
		case 1040, 1053:
			return FailureUnavailable
		}
		return FailureOther
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "unique") || strings.Contains(lower, "duplicate"):
		return FailureConstraint
	case strings.Contains(lower, "database is locked") || strings.Contains(lower, "connection refused"):
		return FailureUnavailable
	}
	return FailureOther
}
