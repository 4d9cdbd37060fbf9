package datasource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"portfolio-dashboard/src/interfaces"
	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"
)

// ProviderChain tries its providers in registration order and returns the
// first successful answer.
type ProviderChain struct {
	Logger *logger.Logger
	mu     sync.RWMutex
	order  []string
	byName map[string]interfaces.IMarketDataProvider
}

// -----------------------------------------------------------------------------

func NewProviderChain(sources []interfaces.IMarketDataProvider, log *logger.Logger) *ProviderChain {
	if log == nil {
		log = logger.NewLogger(nil, "ProviderChain")
	}
	m := &ProviderChain{
		Logger: log,
		byName: make(map[string]interfaces.IMarketDataProvider),
	}
	for _, s := range sources {
		if err := m.AddSource(s); err != nil {
			m.Logger.Warning("%v", err)
		}
	}
	return m
}

// -----------------------------------------------------------------------------

// AddSource appends a provider at the end of the failover order.
func (m *ProviderChain) AddSource(source interfaces.IMarketDataProvider) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := source.Name()
	if _, exists := m.byName[name]; exists {
		return fmt.Errorf("source %s already exists", name)
	}

	m.byName[name] = source
	m.order = append(m.order, name)
	m.Logger.Info("Added source: %s", name)
	return nil
}

// -----------------------------------------------------------------------------

// RemoveSource removes a provider from the chain
func (m *ProviderChain) RemoveSource(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[name]; !exists {
		return fmt.Errorf("source %s not found", name)
	}

	delete(m.byName, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.Logger.Info("Removed source: %s", name)
	return nil
}

// -----------------------------------------------------------------------------

// GetSource retrieves a source by name
func (m *ProviderChain) GetSource(name string) (interfaces.IMarketDataProvider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	source, exists := m.byName[name]
	if !exists {
		return nil, fmt.Errorf("source %s not found", name)
	}
	return source, nil
}

// -----------------------------------------------------------------------------

// GetAllSources returns the providers in failover order
func (m *ProviderChain) GetAllSources() []interfaces.IMarketDataProvider {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]interfaces.IMarketDataProvider, 0, len(m.order))
	for _, n := range m.order {
		list = append(list, m.byName[n])
	}
	return list
}

// -----------------------------------------------------------------------------

func (m *ProviderChain) Name() string {
	return "ProviderChain"
}

// -----------------------------------------------------------------------------

func (m *ProviderChain) FetchHistory(ctx context.Context, symbol string, assetType models.MAssetType, rangeStr, interval string) (*models.MHistoricalEntry, error) {
	return firstSuccess(m, func(p interfaces.IMarketDataProvider) (*models.MHistoricalEntry, error) {
		return p.FetchHistory(ctx, symbol, assetType, rangeStr, interval)
	})
}

// -----------------------------------------------------------------------------

func (m *ProviderChain) FetchQuote(ctx context.Context, symbol string, assetType models.MAssetType) (*models.MQuote, error) {
	return firstSuccess(m, func(p interfaces.IMarketDataProvider) (*models.MQuote, error) {
		return p.FetchQuote(ctx, symbol, assetType)
	})
}

// -----------------------------------------------------------------------------

func firstSuccess[T any](m *ProviderChain, call func(interfaces.IMarketDataProvider) (T, error)) (T, error) {
	var zero T
	sources := m.GetAllSources()
	if len(sources) == 0 {
		return zero, errors.New("no data sources configured")
	}

	var errs []error
	for _, src := range sources {
		res, err := call(src)
		if err == nil {
			return res, nil
		}
		m.Logger.Warning("Source %s failed: %v", src.Name(), err)
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
	}
	return zero, errors.Join(errs...)
}
