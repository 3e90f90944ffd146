package api

import (
	"errors"
	"net/http"
	"time"

	"StratGov/internal/domain/models"
	domrepo "StratGov/internal/domain/repository"
	"StratGov/internal/registry"
	"StratGov/internal/service/ratelimit"
	"StratGov/internal/services/regime"
	"StratGov/internal/usecase"
	xhttp "StratGov/pkg/http"
	xlogger "StratGov/pkg/logger"
	xutil "StratGov/pkg/util"

	"github.com/labstack/echo/v4"
)

// GovernanceHandler is the read-only HTTP surface. Lifecycle actions
// (approve, sunset, reject) go through the CLI; nothing here mutates
// governance state.
type GovernanceHandler struct {
	logger   *xlogger.Logger
	store    *registry.Store
	resolver *usecase.Resolver
	pool     *usecase.PoolBuilder
	detector *regime.Detector
	audit    domrepo.AuditStore
	limits   *ratelimit.Limiter
}

func NewGovernanceHandler(
	logger *xlogger.Logger,
	store *registry.Store,
	resolver *usecase.Resolver,
	pool *usecase.PoolBuilder,
	detector *regime.Detector,
	audit domrepo.AuditStore,
) *GovernanceHandler {
	return &GovernanceHandler{
		logger:   logger,
		store:    store,
		resolver: resolver,
		pool:     pool,
		detector: detector,
		audit:    audit,
		limits:   ratelimit.New(),
	}
}

func (h *GovernanceHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/pool", h.Pool)
	g.GET("/resolved/:symbol", h.Resolved)
	g.GET("/regime", h.Regime)
	g.GET("/audit", h.Audit)
	g.GET("/hypotheses", h.Hypotheses)
}

func (h *GovernanceHandler) Health(c echo.Context) error {
	if err := h.audit.Health(c.Request().Context()); err != nil {
		h.logger.Error("audit store unhealthy", xlogger.Error(err))
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, "audit store unavailable")
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// Pool builds and returns the current candidate pool. Deterministic, so
// repeated calls against the same registry generation return the same
// version and hash.
func (h *GovernanceHandler) Pool(c echo.Context) error {
	// A build walks the whole universe; one bucket per client keeps a
	// polling loop from turning it into a hot path.
	if !h.limits.Allow(c.RealIP(), 5, 0.2) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "pool build rate limit exceeded")
	}

	pool, err := h.pool.Build(c.Request().Context())
	if err != nil {
		var empty *models.EmptyPoolError
		if errors.As(err, &empty) {
			// Fatal by contract: no fallback pool is ever served.
			return xhttp.DataResponse(c, http.StatusConflict, empty.Error())
		}
		h.logger.Error("pool build error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, pool)
}

// Resolved returns the scalar directives for one symbol. This is the
// strategy boundary: no hypothesis or constraint content is present in
// the response.
func (h *GovernanceHandler) Resolved(c echo.Context) error {
	req := &models.ResolveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	directives, err := h.resolver.Directives(c.Request().Context(), req.Symbol)
	if err != nil {
		h.logger.Error("resolve error", xlogger.Error(err), xlogger.String("symbol", req.Symbol))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, directives)
}

func (h *GovernanceHandler) Regime(c echo.Context) error {
	current := h.detector.Current()
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, current)
}

func (h *GovernanceHandler) Audit(c echo.Context) error {
	req := &models.AuditRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	q := models.AuditQuery{
		Symbol:       req.Symbol,
		ConstraintID: req.ConstraintID,
		EventType:    models.AuditEventType(req.Event),
		From:         xhttp.ParseTimeDefault(req.From, time.Time{}),
		To:           xhttp.ParseTimeDefault(req.To, time.Time{}),
		Limit:        req.Limit,
	}
	if day, ok := xhttp.ParseTime(req.Date); ok {
		q.From, q.To = xutil.DayRange(day)
	}
	entries, err := h.audit.Query(c.Request().Context(), q)
	if err != nil {
		h.logger.Error("audit query error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.ListResponse(c, entries, int64(len(entries)))
}

func (h *GovernanceHandler) Hypotheses(c echo.Context) error {
	snap := h.store.Snapshot()
	status := models.HypothesisStatus(c.QueryParam("status"))
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 0)

	hs := snap.Hypotheses(status)
	if limit > 0 && limit < len(hs) {
		hs = hs[:limit]
	}
	out := make([]models.HypothesisSummary, 0, len(hs))
	for _, hyp := range hs {
		out = append(out, models.HypothesisSummary{
			ID:            hyp.ID,
			Title:         hyp.Title,
			Status:        hyp.Status,
			Scope:         hyp.Scope,
			ReviewCadence: hyp.ReviewCadence,
			Falsifiers:    len(hyp.Falsifiers),
			ConstraintIDs: hyp.ConstraintIDs,
		})
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}
