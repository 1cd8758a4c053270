package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/deepsearch/internal/agent/core"
	"go.uber.org/zap"
)

const missingQueryMessage = "No query provided. Use /search?q=your query"

// SearchHandler answers one question per request with a fresh run.
type SearchHandler struct {
	Agent          *core.Controller
	MaxStepsLimit  int
	RequestTimeout time.Duration
	Logger         *zap.SugaredLogger
}

type searchResponse struct {
	RunID  string `json:"run_id"`
	Query  string `json:"query"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
	Steps  int    `json:"steps"`
}

// Search handles GET /search?q=...&max_steps=N.
func (h *SearchHandler) Search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, missingQueryMessage)
	}
	var runOpts []core.RunOption
	if raw := strings.TrimSpace(c.QueryParam("max_steps")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "max_steps must be a positive integer")
		}
		if h.MaxStepsLimit > 0 && n > h.MaxStepsLimit {
			n = h.MaxStepsLimit
		}
		runOpts = append(runOpts, core.RunMaxSteps(n))
	}

	ctx := c.Request().Context()
	if h.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.RequestTimeout)
		defer cancel()
	}

	out := h.Agent.Answer(ctx, q, runOpts...)
	if out.Finalized() {
		return c.JSON(http.StatusOK, searchResponse{RunID: out.RunID, Query: q, Result: out.Answer, Steps: out.Steps})
	}

	if h.Logger != nil {
		h.Logger.Warnw("run stopped", "run_id", out.RunID, "reason", string(out.Reason), "diagnostic", out.Diagnostic)
	}
	return c.JSON(stopStatus(out.Reason), searchResponse{
		RunID:  out.RunID,
		Query:  q,
		Error:  firstLine(out.Diagnostic),
		Reason: string(out.Reason),
		Steps:  out.Steps,
	})
}

func stopStatus(reason core.StopReason) int {
	switch reason {
	case core.StopCommunicationFailure:
		return http.StatusBadGateway
	case core.StopParseFailure, core.StopMaxSteps:
		return http.StatusUnprocessableEntity
	case core.StopCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// the full transcript stays in the logs
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
