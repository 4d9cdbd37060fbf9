package yahoo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"portfolio-dashboard/src/helpers"
	"portfolio-dashboard/src/models"
)

type fakeNetwork struct {
	body    string
	lastURL string
	params  map[string]string
}

func (f *fakeNetwork) Get(ctx context.Context, url string, params map[string]string) ([]byte, error) {
	f.lastURL = url
	f.params = params
	return []byte(f.body), nil
}

// Three daily bars in New York, one with a null close. 1760362200 is
// 2025-10-13 13:30 UTC.
const chartBody = `{"chart":{"result":[{"meta":{"currency":"USD","symbol":"AAPL","exchangeTimezoneName":"America/New_York","gmtoffset":-14400,"regularMarketPrice":250.5,"longName":"Apple Inc."},
"timestamp":[1760535000,1760362200,1760448600],
"indicators":{"quote":[{"open":[3,1,2],"high":[3,1,2],"low":[3,1,2],"close":[247.0,null,246.0],"volume":[10,20,30]}]}}],"error":null}}`

func newSource(body string) (*YahooFinanceSource, *fakeNetwork) {
	net := &fakeNetwork{body: body}
	cfg := &models.MConfig{DataSource: models.MDataSourceConfig{CryptoSuffix: "-USD"}}
	return NewYahooFinanceSource(cfg, models.MSourceConfig{Name: "yahoo", BaseURL: "https://example.test/"}, net), net
}

func TestFetchHistoryParsesAndSorts(t *testing.T) {
	src, net := newSource(chartBody)
	entry, err := src.FetchHistory(context.Background(), "AAPL", models.AssetStock, "1mo", "1d")
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if net.lastURL != "https://example.test/v8/finance/chart/AAPL" {
		t.Errorf("url = %s", net.lastURL)
	}
	if net.params["range"] != "1mo" || net.params["interval"] != "1d" {
		t.Errorf("params = %v", net.params)
	}
	if len(entry.Data) != 2 {
		t.Fatalf("points = %d, want 2 (null close skipped)", len(entry.Data))
	}
	if !entry.Data[0].Date.Before(entry.Data[1].Date) {
		t.Error("points not ascending")
	}
	want := time.Date(2025, time.October, 14, 0, 0, 0, 0, time.UTC)
	if !entry.Data[0].Date.Equal(want) {
		t.Errorf("first date = %v, want %v", entry.Data[0].Date, want)
	}
	if entry.Meta.Name != "Apple Inc." || entry.Meta.Currency != "USD" || entry.Meta.LatestClose != 250.5 {
		t.Errorf("meta = %+v", entry.Meta)
	}
}

func TestFetchHistoryCryptoSuffix(t *testing.T) {
	src, net := newSource(chartBody)
	if _, err := src.FetchHistory(context.Background(), "BTC", models.AssetCrypto, "max", "1d"); err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if !strings.HasSuffix(net.lastURL, "/chart/BTC-USD") {
		t.Errorf("url = %s", net.lastURL)
	}
	if got := src.ProviderSymbol("ETH-CAD", models.AssetCrypto); got != "ETH-CAD" {
		t.Errorf("ProviderSymbol kept suffix wrong: %s", got)
	}
}

func TestFetchQuote(t *testing.T) {
	src, _ := newSource(chartBody)
	q, err := src.FetchQuote(context.Background(), "AAPL", models.AssetStock)
	if err != nil {
		t.Fatalf("FetchQuote: %v", err)
	}
	if q.Price != 250.5 || q.Name != "Apple Inc." || q.Currency != "USD" {
		t.Errorf("quote = %+v", q)
	}
}

func TestFetchHistoryAPIError(t *testing.T) {
	src, _ := newSource(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	_, err := src.FetchHistory(context.Background(), "NOPE", models.AssetStock, "1mo", "1d")
	var dsErr *helpers.DataSourceError
	if !errors.As(err, &dsErr) {
		t.Fatalf("err = %v, want DataSourceError", err)
	}
}

func TestFetchHistoryAllNullCloses(t *testing.T) {
	src, _ := newSource(`{"chart":{"result":[{"meta":{"symbol":"X"},"timestamp":[1760362200],"indicators":{"quote":[{"close":[null]}]}}]}}`)
	_, err := src.FetchHistory(context.Background(), "X", models.AssetStock, "1mo", "1d")
	if !errors.Is(err, helpers.ErrInvalidPayload) {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}
}
