package database

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/jerry-enebeli/bankrec/internal/apierror"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, err error)
	}{
		{
			name: "nil stays nil",
			err:  nil,
			check: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "no rows is not found",
			err:  sql.ErrNoRows,
			check: func(t *testing.T, err error) {
				assert.True(t, apierror.IsNotFound(err))
			},
		},
		{
			name: "unique violation is a conflict",
			err:  &pq.Error{Code: "23505"},
			check: func(t *testing.T, err error) {
				var apiErr apierror.APIError
				assert.True(t, errors.As(err, &apiErr))
				assert.Equal(t, apierror.ErrConflict, apiErr.Code)
			},
		},
		{
			name: "foreign key violation is a user error",
			err:  &pq.Error{Code: "23503", Detail: `Key (account_id)=(acc_x) is not present in table "accounts".`},
			check: func(t *testing.T, err error) {
				var userErr *model.UserError
				assert.True(t, errors.As(err, &userErr))
				assert.Contains(t, userErr.Message, "acc_x")
			},
		},
		{
			name: "check violation is a user error",
			err:  &pq.Error{Code: "23514", Message: "violates check constraint"},
			check: func(t *testing.T, err error) {
				var userErr *model.UserError
				assert.True(t, errors.As(err, &userErr))
			},
		},
		{
			name: "anything else is internal",
			err:  errors.New("connection reset"),
			check: func(t *testing.T, err error) {
				var apiErr apierror.APIError
				assert.True(t, errors.As(err, &apiErr))
				assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, mapError(tt.err, "record"))
		})
	}
}
