package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"portfolio-dashboard/src/helpers"
	"portfolio-dashboard/src/interfaces"
	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"
	"portfolio-dashboard/src/utils"
)

type YahooFinanceSource struct {
	Config       *models.MConfig
	SourceConfig models.MSourceConfig
	Network      interfaces.INetworkManager
	Logger       *logger.Logger
}

// -----------------------------------------------------------------------------

func NewYahooFinanceSource(cfg *models.MConfig, sourceCfg models.MSourceConfig, netMgr interfaces.INetworkManager) *YahooFinanceSource {
	if sourceCfg.BaseURL == "" {
		sourceCfg.BaseURL = utils.DefaultYahooBaseURL
	}
	return &YahooFinanceSource{
		Config:       cfg,
		SourceConfig: sourceCfg,
		Network:      netMgr,
		Logger:       logger.NewLogger(cfg, "YahooFinanceSource-"+sourceCfg.Name),
	}
}

// -----------------------------------------------------------------------------

func (s *YahooFinanceSource) Name() string {
	return s.SourceConfig.Name
}

// -----------------------------------------------------------------------------

// ProviderSymbol maps a dashboard symbol to the ticker Yahoo expects. Crypto
// symbols get the configured quote-currency suffix unless they already carry one.
func (s *YahooFinanceSource) ProviderSymbol(symbol string, assetType models.MAssetType) string {
	if assetType != models.AssetCrypto || strings.Contains(symbol, "-") {
		return symbol
	}
	suffix := s.Config.DataSource.CryptoSuffix
	if suffix == "" {
		suffix = "-USD"
	}
	return symbol + suffix
}

// -----------------------------------------------------------------------------

// FetchHistory fetches a daily series covering rangeStr.
func (s *YahooFinanceSource) FetchHistory(ctx context.Context, symbol string, assetType models.MAssetType, rangeStr, interval string) (*models.MHistoricalEntry, error) {
	if interval == "" {
		interval = "1d"
	}
	resp, err := s.fetchChart(ctx, s.ProviderSymbol(symbol, assetType), rangeStr, interval)
	if err != nil {
		return nil, err
	}
	return s.parseHistory(symbol, rangeStr, interval, resp)
}

// -----------------------------------------------------------------------------

// FetchQuote fetches the latest regular-market price.
func (s *YahooFinanceSource) FetchQuote(ctx context.Context, symbol string, assetType models.MAssetType) (*models.MQuote, error) {
	resp, err := s.fetchChart(ctx, s.ProviderSymbol(symbol, assetType), "5d", "1d")
	if err != nil {
		return nil, err
	}

	meta := resp.Chart.Result[0].Meta
	price := meta.RegularMarketPrice
	if price <= 0 {
		// Fall back to the newest valid close of the window.
		if entry, err := s.parseHistory(symbol, "5d", "1d", resp); err == nil && len(entry.Data) > 0 {
			price = entry.Data[len(entry.Data)-1].Close
		}
	}
	if price <= 0 {
		return nil, helpers.NewDataSourceError(fmt.Sprintf("no price for %s", symbol), helpers.ErrInvalidPayload)
	}

	return &models.MQuote{
		Symbol:   symbol,
		Price:    price,
		Currency: meta.Currency,
		Name:     meta.displayName(),
	}, nil
}

// -----------------------------------------------------------------------------

func (s *YahooFinanceSource) fetchChart(ctx context.Context, providerSymbol, rangeStr, interval string) (*YahooChartResponse, error) {
	params := map[string]string{
		"interval":       interval,
		"range":          rangeStr,
		"includePrePost": "false",
		"events":         "div,split",
	}

	url := fmt.Sprintf("%s/v8/finance/chart/%s", strings.TrimRight(s.SourceConfig.BaseURL, "/"), providerSymbol)

	respBytes, err := s.Network.Get(ctx, url, params)
	if err != nil {
		return nil, fmt.Errorf("network error for %s: %w", providerSymbol, err)
	}

	var resp YahooChartResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, helpers.NewDataSourceError("json unmarshal failed", err)
	}
	if resp.Chart.Error != nil {
		return nil, helpers.NewDataSourceError(
			fmt.Sprintf("yahoo api error: %s - %s", resp.Chart.Error.Code, resp.Chart.Error.Description), nil)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, helpers.NewDataSourceError(fmt.Sprintf("no result in response for %s", providerSymbol), helpers.ErrInvalidPayload)
	}
	return &resp, nil
}

// -----------------------------------------------------------------------------

type yahooMeta struct {
	Currency             string  `json:"currency"`
	Symbol               string  `json:"symbol"`
	ExchangeName         string  `json:"exchangeName"`
	InstrumentType       string  `json:"instrumentType"`
	Gmtoffset            int     `json:"gmtoffset"`
	ExchangeTimezoneName string  `json:"exchangeTimezoneName"`
	RegularMarketPrice   float64 `json:"regularMarketPrice"`
	ChartPreviousClose   float64 `json:"chartPreviousClose"`
	LongName             string  `json:"longName"`
	ShortName            string  `json:"shortName"`
	DataGranularity      string  `json:"dataGranularity"`
	Range                string  `json:"range"`
}

func (m yahooMeta) displayName() string {
	if m.LongName != "" {
		return m.LongName
	}
	if m.ShortName != "" {
		return m.ShortName
	}
	return m.Symbol
}

// location resolves the exchange time zone so bars land on their local trading date.
func (m yahooMeta) location() *time.Location {
	if m.ExchangeTimezoneName != "" {
		if loc, err := time.LoadLocation(m.ExchangeTimezoneName); err == nil {
			return loc
		}
	}
	return time.FixedZone("exchange", m.Gmtoffset)
}

type YahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta       yahooMeta `json:"meta"`
			Timestamp  []int64   `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					High   []*float64 `json:"high"` // Use pointers to handle null
					Low    []*float64 `json:"low"`
					Open   []*float64 `json:"open"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// -----------------------------------------------------------------------------

func valueAt(series []*float64, i int) float64 {
	if i < len(series) && series[i] != nil {
		return *series[i]
	}
	return 0
}

// -----------------------------------------------------------------------------

func (s *YahooFinanceSource) parseHistory(symbol, rangeStr, interval string, resp *YahooChartResponse) (*models.MHistoricalEntry, error) {
	result := resp.Chart.Result[0]
	meta := result.Meta

	if len(result.Timestamp) == 0 {
		return nil, helpers.NewDataSourceError(fmt.Sprintf("no timestamps in response for %s", symbol), helpers.ErrInvalidPayload)
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, helpers.NewDataSourceError(fmt.Sprintf("no quote data in response for %s", symbol), helpers.ErrInvalidPayload)
	}
	quote := result.Indicators.Quote[0]
	loc := meta.location()

	// One point per trading date; a later timestamp for the same date wins.
	byDate := make(map[time.Time]models.MDailyPoint, len(result.Timestamp))
	skipped := 0

	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil || *quote.Close[i] <= 0 {
			skipped++
			continue
		}
		date := utils.DateOf(time.Unix(ts, 0), loc)
		byDate[date] = models.MDailyPoint{
			Date:   date,
			Open:   valueAt(quote.Open, i),
			High:   valueAt(quote.High, i),
			Low:    valueAt(quote.Low, i),
			Close:  *quote.Close[i],
			Volume: valueAt(quote.Volume, i),
		}
	}

	if len(byDate) == 0 {
		return nil, helpers.NewDataSourceError(fmt.Sprintf("no valid data points for %s", symbol), helpers.ErrInvalidPayload)
	}

	points := make([]models.MDailyPoint, 0, len(byDate))
	for _, p := range byDate {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})

	if skipped > 0 {
		s.Logger.Debug("Skipped %d null points for %s", skipped, symbol)
	}

	latest := meta.RegularMarketPrice
	if latest <= 0 {
		latest = points[len(points)-1].Close
	}

	s.Logger.Info("Fetched %s: %d valid points [%s -> %s]", symbol, len(points),
		points[0].Date.Format("2006-01-02"), points[len(points)-1].Date.Format("2006-01-02"))

	return &models.MHistoricalEntry{
		Symbol:     symbol,
		Period:     rangeStr,
		Resolution: interval,
		Data:       points,
		Meta: models.MHistoricalMeta{
			Name:        meta.displayName(),
			LatestClose: latest,
			Currency:    meta.Currency,
		},
		Range: models.MDateRange{Start: points[0].Date, End: points[len(points)-1].Date},
	}, nil
}
