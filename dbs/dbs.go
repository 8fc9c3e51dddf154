package dbs

import (
	"github.com/AudiusProject/audius-protocol-sub027/core/config"
	"gorm.io/gorm"
)

type Store interface {
	Get() *gorm.DB
	Open(config config.DbAccess) error
	Close()
}
