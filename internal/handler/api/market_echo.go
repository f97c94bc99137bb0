package api

import (
	"time"

	models "MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	svcmetrics "MarketPulse/internal/service/metrics"
	"MarketPulse/internal/service/ratelimit"
	"MarketPulse/internal/service/state"
	"MarketPulse/internal/usecase"
	xhttp "MarketPulse/pkg/http"
	xlogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/util"

	"github.com/labstack/echo/v4"
)

// Connectivity reports whether the upstream feed is currently attached.
type Connectivity interface {
	IsConnected() bool
}

// MarketEchoHandler serves the read-only API over the latest engine state
// and the tick archive.
type MarketEchoHandler struct {
	logger  *xlogger.Logger
	state   *state.Store
	history *usecase.HistoryUseCase
	archive domrepo.TickArchive
	stream  Connectivity
	rl      *ratelimit.Limiter
}

func NewMarketEchoHandler(logger *xlogger.Logger, st *state.Store, history *usecase.HistoryUseCase, archive domrepo.TickArchive, stream Connectivity) *MarketEchoHandler {
	svcmetrics.Register()
	return &MarketEchoHandler{
		logger:  logger,
		state:   st,
		history: history,
		archive: archive,
		stream:  stream,
		rl:      ratelimit.New(),
	}
}

func (h *MarketEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/snapshots/:symbol", h.Snapshot)
	g.GET("/alerts", h.Alerts)
	g.GET("/history/:symbol", h.History)
	g.GET("/health", h.Health)
}

func (h *MarketEchoHandler) Snapshot(c echo.Context) error {
	start := time.Now()
	endpoint := "snapshot"
	defer func() { svcmetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.SnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":snapshot", 10, 5) {
		return echo.NewHTTPError(429, "rate limited")
	}

	snap, ok, err := h.state.Snapshot(c.Request().Context(), req.Symbol)
	if err != nil {
		svcmetrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("snapshot lookup error", xlogger.Error(err), xlogger.String("symbol", req.Symbol))
		return xhttp.AppErrorResponse(c, err)
	}
	if !ok {
		return xhttp.NotFoundResponse(c, xhttp.NotFoundErrorf("no snapshot for %s", req.Symbol))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, snap)
}

func (h *MarketEchoHandler) Alerts(c echo.Context) error {
	start := time.Now()
	endpoint := "alerts"
	defer func() { svcmetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.AlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":alerts", 10, 5) {
		return echo.NewHTTPError(429, "rate limited")
	}

	alerts := h.state.RecentAlerts(req.Symbol, req.Limit)
	return xhttp.ListResponse(c, alerts, int64(len(alerts)))
}

func (h *MarketEchoHandler) History(c echo.Context) error {
	start := time.Now()
	endpoint := "history"
	defer func() { svcmetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	// the archive is optional; without it there is no history to serve
	if h.history == nil {
		return xhttp.DataResponse(c, 503, map[string]string{"error": "tick archive disabled"})
	}

	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":history", 5, 2) {
		return echo.NewHTTPError(429, "rate limited")
	}

	now := time.Now()
	from := util.ParseTimeDefault(req.From, now.Add(-time.Hour))
	to := util.ParseTimeDefault(req.To, now)

	res, err := h.history.GetHistory(c.Request().Context(), usecase.GetHistoryParams{
		Symbol: req.Symbol,
		From:   from,
		To:     to,
		Limit:  req.Limit,
	})
	if err != nil {
		svcmetrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("history usecase error", xlogger.Error(err), xlogger.String("symbol", req.Symbol))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Health(c echo.Context) error {
	status := map[string]interface{}{
		"status":           "ok",
		"stream_connected": h.stream != nil && h.stream.IsConnected(),
	}
	if h.archive != nil {
		if err := h.archive.Health(c.Request().Context()); err != nil {
			status["status"] = "degraded"
			status["archive"] = err.Error()
			return xhttp.DataResponse(c, 503, status)
		}
		status["archive"] = "ok"
	}
	return xhttp.SuccessResponse(c, status)
}
