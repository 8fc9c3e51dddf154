package blacklist

import (
	"github.com/AudiusProject/audius-protocol-sub027/core/config"
	"github.com/gomodule/redigo/redis"
)

/*NewPool - create a new redis pool accessible at the given address */
func NewPool(cfg config.CacheAccess) *redis.Pool {
	return &redis.Pool{
		MaxIdle:   cfg.MaxIdle,
		MaxActive: cfg.MaxActive, // max number of connections
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", cfg.Addr)
		},
	}
}
