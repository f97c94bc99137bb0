package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xlogger "MarketPulse/pkg/logger"
)

func testLogger(t *testing.T) *xlogger.Logger {
	t.Helper()
	l, err := xlogger.New(&xlogger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return l
}

func TestHistoryUnavailableWithoutArchive(t *testing.T) {
	h := NewMarketEchoHandler(testLogger(t), nil, nil, nil, nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/history/AAPL", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/history/:symbol")
	c.SetParamNames("symbol")
	c.SetParamValues("AAPL")

	require.NoError(t, h.History(c))
	assert.Equal(t, http.StatusOK, rec.Code, "the envelope carries the application status")
	assert.Contains(t, rec.Body.String(), `"status":503`)
	assert.Contains(t, rec.Body.String(), "tick archive disabled")
}
