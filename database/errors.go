package database

import (
	"database/sql"
	"errors"

	"github.com/jerry-enebeli/bankrec/internal/apierror"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/lib/pq"
)

var errConnectionNotInitialised = errors.New("database connection was not initialised")

// mapError turns driver errors into the error types callers branch on. Constraint violations that
// reflect bad references in domain data (an unknown account, a check constraint) become UserErrors
// so the reconciliation flow can skip the statement line instead of failing.
func mapError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apierror.NewAPIError(apierror.ErrNotFound, entity+" not found", nil)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return apierror.NewAPIError(apierror.ErrConflict, entity+" already exists", err)
		case "foreign_key_violation":
			return &model.UserError{Message: entity + " references a record that does not exist: " + pqErr.Detail}
		case "check_violation", "not_null_violation":
			return &model.UserError{Message: entity + " is invalid: " + pqErr.Message}
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to access "+entity, err)
}

// nullableJSON keeps an absent JSON document NULL instead of sending an empty byte string.
func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
