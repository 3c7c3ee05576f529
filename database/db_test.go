package database

import (
	"database/sql"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jerry-enebeli/bankrec/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDatasource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return Datasource{Conn: db}, mock
}

func TestGetDBConnection_Failure(t *testing.T) {
	// Reset the instance and once for testing purposes
	instance = nil
	once = sync.Once{}

	mockConfig := &config.Configuration{
		DataSource: config.DataSourceConfig{
			Dns: "invalid-dns",
		},
	}

	_, err := GetDBConnection(mockConfig)
	assert.Error(t, err)

	// The failed attempt is remembered instead of retried.
	_, err = GetDBConnection(mockConfig)
	assert.ErrorIs(t, err, errConnectionNotInitialised)
}

func TestGetDBConnection_ReturnsInstance(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	instance = &Datasource{Conn: db}
	once = sync.Once{}
	once.Do(func() {})

	ds, err := GetDBConnection(&config.Configuration{})
	require.NoError(t, err)
	assert.Same(t, instance, ds)
	assert.IsType(t, &sql.DB{}, ds.Conn)

	instance = nil
	once = sync.Once{}
}
