package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/AudiusProject/audius-protocol-sub027/blacklist"
	"github.com/AudiusProject/audius-protocol-sub027/core/config"
	"github.com/AudiusProject/audius-protocol-sub027/core/logging"
	"github.com/AudiusProject/audius-protocol-sub027/dbs/postgresql"
	"github.com/AudiusProject/audius-protocol-sub027/ledger"
)

func main() {
	deploymentMode := flag.String("deployment_mode", "development", "deployment_mode")
	configDir := flag.String("config_dir", "./config", "config_dir")
	flag.Parse()

	config.SetupDefaultConfig()
	config.SetupConfig(*configDir)
	logging.InitLogging(*deploymentMode)

	store, err := postgresql.GetPostgresSqlDb(config.DbAccessFromViper())
	if err != nil {
		logging.Logger.Fatal("opening authoritative store", zap.Error(err))
	}
	defer store.Close()

	ldgr := ledger.New(store)
	if err := ldgr.AutoMigrate(); err != nil {
		logging.Logger.Fatal("migrating ledger schema", zap.Error(err))
	}

	pool := blacklist.NewPool(config.CacheAccessFromViper())
	idx := blacklist.New(store, pool,
		blacklist.WithAllowlist(viper.GetStringSlice("blacklist.allowlist")...),
		blacklist.WithTrackCIDsTTL(viper.GetDuration("blacklist.track_cids_ttl")))
	defer idx.Close()

	if err := idx.AutoMigrate(); err != nil {
		logging.Logger.Fatal("migrating blacklist schema", zap.Error(err))
	}
	// an unreachable store here is fatal: the node must not serve
	// content it cannot moderate
	if err := idx.Init(context.Background()); err != nil {
		logging.Logger.Fatal("building blacklist index", zap.Error(err))
	}

	logging.Logger.Info("creator node core up",
		zap.String("deployment_mode", *deploymentMode))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logging.Logger.Info("shutting down")
}
