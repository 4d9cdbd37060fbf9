package server

import (
	"net/http"
	"strings"

	"portfolio-dashboard/src/helpers"
	"portfolio-dashboard/src/utils"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// Cache Reads
// -----------------------------------------------------------------------------

func (s *APIServer) getPrice(c *gin.Context) {
	symbol, ok := symbolParam(c)
	if !ok {
		return
	}
	entry, found, err := s.Services.Prices.Get(symbol)
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"status": "absent", "symbol": symbol})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getHistory(c *gin.Context) {
	symbol, ok := symbolParam(c)
	if !ok {
		return
	}
	period := c.DefaultQuery("period", s.Config.Refresh.HistoryPeriod)
	resolution := c.DefaultQuery("resolution", s.Config.Refresh.HistoryResolution)

	result, found, err := s.Services.History.Get(symbol, period, resolution)
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"status": "absent", "symbol": symbol, "period": period, "resolution": resolution})
		return
	}
	c.JSON(http.StatusOK, result)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getFileChanges(c *gin.Context) {
	if s.Services.Changes == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "file tracking disabled"})
		return
	}
	changes, err := s.Services.Changes.CheckForChanges()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, changes)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getValuation(c *gin.Context) {
	if s.Services.Valuator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "portfolio unavailable"})
		return
	}
	valuations, err := s.Services.Valuator.Valuate(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"holdings": valuations})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	var latest int64
	if last := s.Hub.LastEvent(); last != nil {
		latest = last.Timestamp
	}
	running := s.Services.Refresher != nil && s.Services.Refresher.IsRunning()

	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"connections":     s.Hub.ClientCount(),
		"latest_update":   latest,
		"refresh_running": running,
		"cached_prices":   len(s.Services.Prices.GetAllSymbols()),
	})
}

// -----------------------------------------------------------------------------
// Refresh Triggers
// -----------------------------------------------------------------------------

// postRefresh starts a refresh in the background and answers 202. With
// wait=true it answers with the summary once the pass is done.
func (s *APIServer) postRefresh(c *gin.Context) {
	if s.Services.Refresher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "refresh disabled"})
		return
	}
	if c.Query("wait") == "true" {
		summary := s.Services.Refresher.RefreshPortfolioCache(c.Request.Context())
		if summary.InProgress {
			c.JSON(http.StatusConflict, gin.H{"status": "in_progress"})
			return
		}
		c.JSON(http.StatusOK, summary)
		return
	}

	if !s.Services.Refresher.StartRefresh(s.baseCtx) {
		c.JSON(http.StatusConflict, gin.H{"status": "in_progress"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

// -----------------------------------------------------------------------------

func (s *APIServer) postReprocess(c *gin.Context) {
	if s.Services.Pipeline == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reprocessing disabled"})
		return
	}
	result := s.Services.Pipeline.Reprocess(c.Request.Context(), c.Query("force") == "true")
	if result.InProgress {
		c.JSON(http.StatusConflict, gin.H{"status": "in_progress"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// -----------------------------------------------------------------------------

// postProcessUploads reprocesses after an upload batch. Requests carrying the
// same signature while one is running share its result.
func (s *APIServer) postProcessUploads(c *gin.Context) {
	if s.Services.Pipeline == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reprocessing disabled"})
		return
	}
	signature := strings.TrimSpace(c.Param("signature"))
	if signature == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature is required"})
		return
	}
	result, shared, err := s.Services.Pipeline.ProcessUploads(c.Request.Context(), signature)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result, "shared": shared})
}

// -----------------------------------------------------------------------------
// Cache Administration
// -----------------------------------------------------------------------------

func (s *APIServer) getCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"prices":  s.Services.Prices.GetStats(),
		"history": s.Services.History.GetStats(),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) deleteCache(c *gin.Context) {
	prices, perr := s.Services.Prices.Clear()
	series, herr := s.Services.History.ClearAll()
	if err := firstError(perr, herr); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prices_removed": prices, "history_removed": series})
}

// -----------------------------------------------------------------------------

func (s *APIServer) postClearOld(c *gin.Context) {
	days, ok := queryInt(c, "days", s.Config.Cache.HistoryRetentionDays)
	if !ok {
		return
	}
	if days <= 0 {
		days = utils.DefaultRetentionDays
	}
	removed, err := s.Services.History.ClearOldEntries(days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed, "days": days})
}

// -----------------------------------------------------------------------------

func (s *APIServer) deleteSymbol(c *gin.Context) {
	symbol, ok := symbolParam(c)
	if !ok {
		return
	}
	priceRemoved, perr := s.Services.Prices.Delete(symbol)
	series, herr := s.Services.History.Delete(symbol)
	if err := firstError(perr, herr); err != nil && !helpers.IsStorageError(err) {
		writeError(c, err)
		return
	}
	if !priceRemoved && series == 0 {
		c.JSON(http.StatusNotFound, gin.H{"status": "absent", "symbol": symbol})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "price_removed": priceRemoved, "history_removed": series})
}
