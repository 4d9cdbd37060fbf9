package server

import (
	"errors"
	"net/http"
	"strconv"

	"portfolio-dashboard/src/helpers"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------

// symbolParam normalizes the :symbol path parameter and answers 400 when it
// is not a valid symbol.
func symbolParam(c *gin.Context) (string, bool) {
	symbol, err := helpers.NormalizeSymbol(c.Param("symbol"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return symbol, true
}

// -----------------------------------------------------------------------------

func queryInt(c *gin.Context, key string, fallback int) (int, bool) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return 0, false
	}
	return v, true
}

// -----------------------------------------------------------------------------

// writeError maps the error taxonomy onto status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, helpers.ErrInvalidSymbol), helpers.IsValidationError(err):
		status = http.StatusBadRequest
	case helpers.IsStorageError(err):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// -----------------------------------------------------------------------------

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
