package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"portfolio-dashboard/src/helpers"
	"portfolio-dashboard/src/interfaces"
	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"
)

type AsyncNetworkManager struct {
	Config       *models.MConfig
	ProxyManager interfaces.IProxyManager
	Logger       *logger.Logger

	// Backoff is the wait before retry attempt n (n starts at 1).
	Backoff func(attempt int) time.Duration

	mu     sync.RWMutex
	client *http.Client
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg *models.MConfig, log *logger.Logger) *AsyncNetworkManager {
	var proxies []string
	if cfg.Network.Enabled {
		proxies = cfg.Network.Proxies
	}
	if log == nil {
		log = logger.NewLogger(cfg, "Network")
	}

	nm := &AsyncNetworkManager{
		Config:       cfg,
		ProxyManager: helpers.NewProxyManager(proxies, cfg.Network.UserAgent),
		Logger:       log,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
	}
	nm.client = nm.createClient()
	return nm
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) createClient() *http.Client {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}

	if nm.ProxyManager.HasProxies() {
		proxyStr, err := nm.ProxyManager.GetCurrentProxy()
		if err == nil && proxyStr != "" {
			proxyURL, err := url.Parse(proxyStr)
			if err == nil {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   time.Duration(nm.Config.Network.RequestTimeout) * time.Second,
	}
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) currentClient() *http.Client {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.client
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) rotateProxy() {
	if !nm.ProxyManager.HasProxies() {
		return
	}

	nm.ProxyManager.RotateProxy()
	client := nm.createClient()
	nm.mu.Lock()
	nm.client = client
	nm.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Get performs a GET request with retries and proxy rotation.
func (nm *AsyncNetworkManager) Get(ctx context.Context, urlStr string, params map[string]string) ([]byte, error) {
	reqURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	q := reqURL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	reqURL.RawQuery = q.Encode()
	finalURL := reqURL.String()

	maxRetries := nm.Config.Network.MaxRetries
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			if err := helpers.Sleep(ctx, nm.Backoff(i)); err != nil {
				return nil, helpers.NewNetworkError("request cancelled", lastErr)
			}
		}

		body, retryable, err := nm.do(ctx, finalURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		nm.Logger.Info("Request failed (attempt %d/%d): %v", i+1, maxRetries+1, err)
		if !retryable {
			break
		}
	}

	return nil, helpers.NewNetworkError(fmt.Sprintf("GET %s failed", urlStr), lastErr)
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) do(ctx context.Context, finalURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", nm.ProxyManager.GetUserAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := nm.currentClient().Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
		nm.Logger.Info("Request blocked (%d). Rotating proxy.", resp.StatusCode)
		nm.rotateProxy()
		return nil, true, fmt.Errorf("blocked (status %d)", resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		// 4xx other than rate limiting will not change on retry
		retryable := resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("bad status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	return body, false, nil
}
