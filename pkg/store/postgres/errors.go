package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/store"
)

// SQLSTATE codes reported as store.ErrConflict.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// classifyError maps PostgreSQL constraint violations to store.ErrConflict
// and leaves every other error untouched.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation, foreignKeyViolation:
			return fmt.Errorf("%w: %w", store.ErrConflict, err)
		}
	}
	return err
}
