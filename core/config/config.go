package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

//DeploymentModes
const (
	DeploymentDevelopment = 0
	DeploymentTestNet     = 1
	DeploymentMainNet     = 2
)

// DbAccess - access parameters of the authoritative relational store
type DbAccess struct {
	Enabled bool `json:"enabled"`

	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     string `json:"port"`

	MaxIdleConns    int           `json:"max_idle_conns"`
	MaxOpenConns    int           `json:"max_open_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// CacheAccess - access parameters of the derived key/value cache
type CacheAccess struct {
	Addr      string `json:"addr"`
	MaxIdle   int    `json:"max_idle"`
	MaxActive int    `json:"max_active"`
}

/*SetupDefaultConfig - setup the default config options that can be overridden via the config file */
func SetupDefaultConfig() {
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.console", false)

	viper.SetDefault("db.enabled", true)
	viper.SetDefault("db.name", "audius_creator_node")
	viper.SetDefault("db.user", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.max_idle_conns", 100)
	viper.SetDefault("db.max_open_conns", 200)
	viper.SetDefault("db.conn_max_lifetime", "60s")

	viper.SetDefault("cache.addr", "localhost:6379")
	viper.SetDefault("cache.max_idle", 80)
	viper.SetDefault("cache.max_active", 1000)

	viper.SetDefault("blacklist.track_cids_ttl", "336h")
}

/*SetupConfig - setup the configuration system */
func SetupConfig(configDir string) {
	viper.SetConfigName("creatornode")
	if configDir == "" {
		configDir = "./config"
	}
	viper.AddConfigPath(configDir)
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}
}

// DbAccessFromViper - the relational store access block of the loaded config
func DbAccessFromViper() DbAccess {
	return DbAccess{
		Enabled:         viper.GetBool("db.enabled"),
		Name:            viper.GetString("db.name"),
		User:            viper.GetString("db.user"),
		Password:        viper.GetString("db.password"),
		Host:            viper.GetString("db.host"),
		Port:            viper.GetString("db.port"),
		MaxIdleConns:    viper.GetInt("db.max_idle_conns"),
		MaxOpenConns:    viper.GetInt("db.max_open_conns"),
		ConnMaxLifetime: viper.GetDuration("db.conn_max_lifetime"),
	}
}

// CacheAccessFromViper - the cache access block of the loaded config
func CacheAccessFromViper() CacheAccess {
	return CacheAccess{
		Addr:      viper.GetString("cache.addr"),
		MaxIdle:   viper.GetInt("cache.max_idle"),
		MaxActive: viper.GetInt("cache.max_active"),
	}
}
