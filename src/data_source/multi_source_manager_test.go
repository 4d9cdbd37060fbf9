package datasource

import (
	"context"
	"errors"
	"testing"

	"portfolio-dashboard/src/interfaces"
	"portfolio-dashboard/src/models"
)

type stubProvider struct {
	name  string
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) FetchHistory(ctx context.Context, symbol string, assetType models.MAssetType, rangeStr, interval string) (*models.MHistoricalEntry, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &models.MHistoricalEntry{Symbol: symbol, Meta: models.MHistoricalMeta{Name: s.name}}, nil
}

func (s *stubProvider) FetchQuote(ctx context.Context, symbol string, assetType models.MAssetType) (*models.MQuote, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &models.MQuote{Symbol: symbol, Price: 1, Name: s.name}, nil
}

func TestProviderChainFailsOver(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("down")}
	backup := &stubProvider{name: "backup"}
	chain := NewProviderChain([]interfaces.IMarketDataProvider{primary, backup}, nil)

	q, err := chain.FetchQuote(context.Background(), "AAPL", models.AssetStock)
	if err != nil {
		t.Fatalf("FetchQuote: %v", err)
	}
	if q.Name != "backup" {
		t.Errorf("answered by %s, want backup", q.Name)
	}
	if primary.calls != 1 || backup.calls != 1 {
		t.Errorf("calls primary=%d backup=%d", primary.calls, backup.calls)
	}
}

func TestProviderChainJoinsErrors(t *testing.T) {
	errA, errB := errors.New("a failed"), errors.New("b failed")
	chain := NewProviderChain([]interfaces.IMarketDataProvider{
		&stubProvider{name: "a", err: errA},
		&stubProvider{name: "b", err: errB},
	}, nil)

	_, err := chain.FetchHistory(context.Background(), "AAPL", models.AssetStock, "1mo", "1d")
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("err = %v", err)
	}
}

func TestProviderChainAddRemove(t *testing.T) {
	chain := NewProviderChain(nil, nil)
	if err := chain.AddSource(&stubProvider{name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := chain.AddSource(&stubProvider{name: "a"}); err == nil {
		t.Error("duplicate source accepted")
	}
	if err := chain.AddSource(&stubProvider{name: "b"}); err != nil {
		t.Fatal(err)
	}
	if all := chain.GetAllSources(); len(all) != 2 || all[0].Name() != "a" || all[1].Name() != "b" {
		t.Errorf("sources out of order: %v", all)
	}
	if _, err := chain.GetSource("b"); err != nil {
		t.Error(err)
	}
	if err := chain.RemoveSource("b"); err != nil {
		t.Fatal(err)
	}
	if _, err := chain.GetSource("b"); err == nil {
		t.Error("removed source still resolvable")
	}
	if err := chain.RemoveSource("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := chain.FetchQuote(context.Background(), "X", models.AssetStock); err == nil {
		t.Error("empty chain should fail")
	}
}
