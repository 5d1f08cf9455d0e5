package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/octobees/leads-discovery/internal/dto"
	"github.com/octobees/leads-discovery/internal/entity"
	middleware "github.com/octobees/leads-discovery/internal/middleware"
	"github.com/octobees/leads-discovery/internal/source"
)

// persistTimeout bounds archiving a finished run after the stream closed.
const persistTimeout = 10 * time.Second

// SearchStreamer starts a discovery run and exposes its events.
type SearchStreamer interface {
	Stream(ctx context.Context, brief entity.SearchBrief, principal entity.Principal) <-chan entity.ProgressEvent
}

// RunStore archives completed runs keyed by correlation id.
type RunStore interface {
	SaveRun(ctx context.Context, run entity.SearchRun) (uuid.UUID, error)
}

// SearchHandler streams discovery runs over server-sent events.
type SearchHandler struct {
	streamer SearchStreamer
	runs     RunStore
	limits   dto.SearchLimits
	logger   *zap.Logger
}

// NewSearchHandler constructs a search handler. runs may be nil when no
// database is configured.
func NewSearchHandler(streamer SearchStreamer, runs RunStore, limits dto.SearchLimits, logger *zap.Logger) *SearchHandler {
	if limits.DefaultTargetCount <= 0 {
		limits.DefaultTargetCount = entity.DefaultTargetCount
	}
	if logger == nil {
		logger = zap.L()
	}
	return &SearchHandler{streamer: streamer, runs: runs, limits: limits, logger: logger}
}

// Stream handles GET /search/stream requests.
func (h *SearchHandler) Stream(c echo.Context) error {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return Error(c, http.StatusUnauthorized, "missing principal")
	}

	params := dto.SearchParams{
		ContactTypes:  c.QueryParam("contactTypes"),
		Markets:       c.QueryParam("markets"),
		Genre:         c.QueryParam("genre"),
		SearchDepth:   c.QueryParam("searchDepth"),
		TargetCount:   c.QueryParam("targetCount"),
		Query:         c.QueryParam("query"),
		CorrelationID: strings.TrimSpace(c.QueryParam("correlationId")),
	}
	brief, err := params.Brief(h.limits)
	if err != nil {
		return Fail(c, err, "invalid search request")
	}

	requestID := middleware.RequestIDFromContext(c)
	correlationID := params.CorrelationID
	if correlationID == "" {
		correlationID = requestID
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := source.WithRequestID(c.Request().Context(), requestID)
	events := h.streamer.Stream(ctx, brief, principal)

	writable := true
	for ev := range events {
		if writable {
			if err := writeFrame(res, ev); err != nil {
				// The client went away; keep draining so the run can finish.
				writable = false
				h.logger.Debug("search stream write failed", zap.String("request_id", requestID), zap.Error(err))
			}
		}
		if ev.Kind == entity.EventComplete {
			h.persist(ctx, entity.SearchRun{
				CorrelationID: correlationID,
				PrincipalID:   principal.ID,
				Brief:         brief,
				Contacts:      ev.Contacts,
				Logs:          ev.Logs,
			})
		}
	}
	return nil
}

func (h *SearchHandler) persist(ctx context.Context, run entity.SearchRun) {
	if h.runs == nil || run.CorrelationID == "" {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	id, err := h.runs.SaveRun(saveCtx, run)
	if err != nil {
		h.logger.Warn("persist search run failed", zap.String("correlation_id", run.CorrelationID), zap.Error(err))
		return
	}
	h.logger.Info("search run persisted",
		zap.String("correlation_id", run.CorrelationID),
		zap.String("run_id", id.String()),
		zap.Int("contacts", len(run.Contacts)),
	)
}

func writeFrame(res *echo.Response, ev entity.ProgressEvent) error {
	payload, err := json.Marshal(dto.Frame(ev))
	if err != nil {
		return err
	}
	if _, err := res.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := res.Write(payload); err != nil {
		return err
	}
	if _, err := res.Write([]byte("\n\n")); err != nil {
		return err
	}
	res.Flush()
	return nil
}
