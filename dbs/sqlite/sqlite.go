// Package sqlite backs package tests with an in-memory database. Unlike
// a statement-catching driver stand-in it executes real SQL, which the
// ledger's composite-key invariants depend on.
package sqlite

import (
	"github.com/AudiusProject/audius-protocol-sub027/core/config"
	"github.com/AudiusProject/audius-protocol-sub027/dbs"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func GetSqliteDb() (dbs.Store, error) {
	db := &SqliteStore{}
	if err := db.Open(config.DbAccess{}); err != nil {
		return nil, err
	}
	return db, nil
}

type SqliteStore struct {
	db *gorm.DB
}

func (store *SqliteStore) Open(_ config.DbAccess) error {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	sqldb, err := db.DB()
	if err != nil {
		return err
	}
	// a single connection keeps every goroutine on the same in-memory
	// database and serializes whole transactions
	sqldb.SetMaxIdleConns(1)
	sqldb.SetMaxOpenConns(1)

	store.db = db
	return nil
}

func (store *SqliteStore) Close() {
	if store.db != nil {
		if sqldb, _ := store.db.DB(); sqldb != nil {
			sqldb.Close()
		}
	}
}

func (store *SqliteStore) Get() *gorm.DB {
	return store.db
}
