package database

import (
	"database/sql"
	"sync"

	"github.com/jerry-enebeli/bankrec/config"
	"github.com/jerry-enebeli/bankrec/internal/cache"
	pgconn "github.com/jerry-enebeli/bankrec/internal/pg-conn"
	"github.com/sirupsen/logrus"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
// The cache is optional: when redis cannot be reached the datasource runs without it.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := pgconn.ConnectDB(configuration.DataSource)
		if errConn != nil {
			err = errConn
			return
		}
		c, errCache := cache.NewCache()
		if errCache != nil {
			logrus.WithError(errCache).Warn("cache unavailable, continuing without it")
			c = nil
		}
		instance = &Datasource{Conn: con, Cache: c}
	})
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, errConnectionNotInitialised
	}
	return instance, nil
}
