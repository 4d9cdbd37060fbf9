package main

import (
	"fmt"
	"time"

	datasource "portfolio-dashboard/src/data_source"
	"portfolio-dashboard/src/data_source/yahoo"
	"portfolio-dashboard/src/helpers"
	"portfolio-dashboard/src/interfaces"
	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"
	"portfolio-dashboard/src/network"
	"portfolio-dashboard/src/storage"
	"portfolio-dashboard/src/utils"
)

// -----------------------------------------------------------------------------

// setupStore opens the persistence backend selected by storage.db_type.
func setupStore(config *models.MConfig) (interfaces.IStore, error) {
	storeLogger := logger.NewLogger(config, "Store")
	store, err := storage.NewStore(config, storeLogger)
	if err != nil {
		return nil, helpers.NewStorageError("failed to open cache store", err)
	}
	return store, nil
}

// -----------------------------------------------------------------------------

// setupNetwork initializes the network manager
func setupNetwork(config *models.MConfig) interfaces.INetworkManager {
	networkLogger := logger.NewLogger(config, "NetworkManager")
	return network.NewAsyncNetworkManager(config, networkLogger)
}

// -----------------------------------------------------------------------------

// setupProviders builds the configured upstream sources behind a failover chain.
func setupProviders(config *models.MConfig, appLogger *logger.Logger, netMgr interfaces.INetworkManager) (*datasource.ProviderChain, error) {
	var sources []interfaces.IMarketDataProvider
	for _, srcCfg := range config.DataSource.Sources {
		switch srcCfg.Name {
		case "yahoo":
			sources = append(sources, yahoo.NewYahooFinanceSource(config, srcCfg, netMgr))
			appLogger.Info("Added source: %s (%s)", srcCfg.Name, srcCfg.BaseURL)
		default:
			appLogger.Warning("Unknown source type in config: %s", srcCfg.Name)
		}
	}
	if len(sources) == 0 {
		return nil, helpers.NewConfigurationError("no valid data sources configured", nil)
	}
	return datasource.NewProviderChain(sources, logger.NewLogger(config, "ProviderChain")), nil
}

// -----------------------------------------------------------------------------

// setupCalendar resolves cache.calendar in the configured timezone.
func setupCalendar(config *models.MConfig) (*utils.TradingCalendar, error) {
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, helpers.NewConfigurationError(fmt.Sprintf("unknown timezone %q", config.Timezone), err)
	}
	return utils.GetCalendar(config.Cache.Calendar, loc), nil
}
