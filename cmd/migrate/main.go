package main

import (
	"encoding/json"
	"flag"

	"github.com/joripage/orderbook-sync/config"
	"github.com/joripage/orderbook-sync/pkg/infra"
	"go.uber.org/zap"
)

func main() {
	var configFile, source string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.StringVar(&source, "source", "file://migration/sql", "Migration source url")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}
	if cfg.OrderbookDB == nil {
		zap.S().Fatal("orderbook_db section is required")
	}

	configBytes, err := json.MarshalIndent(cfg.OrderbookDB, "", "   ")
	if err != nil {
		zap.S().Warnf("could not convert config to JSON: %v", err)
	} else {
		zap.S().Debugf("load config %s", string(configBytes))
	}

	if err := infra.NewMigrateTool().Migrate(source, cfg.OrderbookDB.MigrationConnURL); err != nil {
		zap.S().Fatalf("migrate fail: %v", err)
	}
}
