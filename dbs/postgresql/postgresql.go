package postgresql

import (
	"fmt"

	"github.com/AudiusProject/audius-protocol-sub027/core/common"
	"github.com/AudiusProject/audius-protocol-sub027/core/config"
	"github.com/AudiusProject/audius-protocol-sub027/core/logging"
	"github.com/AudiusProject/audius-protocol-sub027/dbs"
	"moul.io/zapgorm2"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func GetPostgresSqlDb(config config.DbAccess) (dbs.Store, error) {
	if !config.Enabled {
		return nil, common.NewError("db_open_error", "db disabled")
	}
	db := &PostgresStore{}
	err := db.Open(config)
	if err != nil {
		return nil, err
	}
	return db, nil
}

type PostgresStore struct {
	db *gorm.DB
}

func (store *PostgresStore) Open(config config.DbAccess) error {
	if !config.Enabled {
		return common.NewError("db_open_error", "db disabled")
	}

	var glog logger.Interface
	if logging.Logger != nil {
		zlog := zapgorm2.New(logging.Logger)
		zlog.SetAsDefault()
		glog = zlog
	} else {
		glog = logger.Default.LogMode(logger.Silent)
	}

	db, err := gorm.Open(postgres.Open(fmt.Sprintf(
		"host=%v port=%v user=%v dbname=%v password=%v sslmode=disable",
		config.Host,
		config.Port,
		config.User,
		config.Name,
		config.Password)),
		&gorm.Config{
			Logger: glog,
		})
	if err != nil {
		return common.NewErrorf("db_open_error", "error opening the DB connection: %v", err)
	}

	sqldb, err := db.DB()
	if err != nil {
		return common.NewErrorf("db_open_error", "error opening the DB connection: %v", err)
	}

	sqldb.SetMaxIdleConns(config.MaxIdleConns)
	sqldb.SetMaxOpenConns(config.MaxOpenConns)
	sqldb.SetConnMaxLifetime(config.ConnMaxLifetime)

	store.db = db
	return nil
}

func (store *PostgresStore) Close() {
	if store.db != nil {
		if sqldb, _ := store.db.DB(); sqldb != nil {
			sqldb.Close()
		}
	}
}

func (store *PostgresStore) Get() *gorm.DB {
	return store.db
}
