package cache

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/cveintel/internal/intel"
)

func TestFailureKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("store: %w", context.DeadlineExceeded), FailureTimeout},
		{"gorm duplicate", gorm.ErrDuplicatedKey, FailureConstraint},
		{"bad conn", driver.ErrBadConn, FailureUnavailable},
		{"pg unique", &pgconn.PgError{Code: "23505"}, FailureConstraint},
		{"pg connection", &pgconn.PgError{Code: "08006"}, FailureUnavailable},
		{"pg syntax", &pgconn.PgError{Code: "42601"}, FailureOther},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, FailureConstraint},
		{"mysql too many", &mysql.MySQLError{Number: 1040}, FailureUnavailable},
		{"sqlite locked", errors.New("database is locked"), FailureUnavailable},
		{"wrapped persistence", &intel.PersistenceError{Op: "store", Err: &pgconn.PgError{Code: "23505"}}, FailureConstraint},
		{"other", errors.New("boom"), FailureOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, FailureKind(tc.err))
		})
	}
}
