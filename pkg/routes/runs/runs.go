package runs

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/scoutalgo/clover/pkg/processor"
	"github.com/scoutalgo/clover/pkg/reqctx"
)

var validate = validator.New()

// StartRunRequest is the body of a run request
type StartRunRequest struct {
	RunID        string   `json:"run_id"`
	QuerySources []string `json:"query_sources" validate:"dive,required"`
	Limit        int      `json:"limit" validate:"gte=0"`
	DryRun       bool     `json:"dry_run"`
}

// StartRunResponse is returned when a run was accepted
type StartRunResponse struct {
	RunID string `json:"run_id"`
}

// Handler serves matching run control
type Handler struct {
	baseCtx   context.Context
	processor *processor.MatchProcessor
	logger    ectologger.Logger
}

// NewHandler creates a handler. Runs started through it are bound to baseCtx,
// so cancelling baseCtx interrupts them.
func NewHandler(baseCtx context.Context, p *processor.MatchProcessor, logger ectologger.Logger) *Handler {
	return &Handler{baseCtx: baseCtx, processor: p, logger: logger}
}

// Register registers matching run routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.StartRun)
	g.GET("/current", h.CurrentRun)
	g.GET("/last", h.LastRun)
}

// StartRun starts a matching run in the background
func (h *Handler) StartRun(c echo.Context) error {
	ctx := c.Request().Context()

	var req StartRunRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	runCtx := reqctx.SetRequestID(h.baseCtx, reqctx.GetRequestID(ctx))
	runID, err := h.processor.Start(runCtx, processor.RunOptions{
		RunID:        req.RunID,
		QuerySources: req.QuerySources,
		Limit:        req.Limit,
		DryRun:       req.DryRun,
	})
	switch {
	case errors.Is(err, processor.ErrJobAlreadyRunning):
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, processor.ErrConfiguration):
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		return err
	}

	h.logger.WithContext(ctx).WithField("run_id", runID).Info("Matching run started")
	return c.JSON(http.StatusAccepted, StartRunResponse{RunID: runID})
}

// CurrentRun returns the progress of the run in progress
func (h *Handler) CurrentRun(c echo.Context) error {
	job, ok := h.processor.Current()
	if !ok {
		return httperror.NewHTTPError(http.StatusNotFound, "no matching run in progress")
	}
	return c.JSON(http.StatusOK, job.Progress())
}

// LastRun returns the report of the last finished run
func (h *Handler) LastRun(c echo.Context) error {
	report, ok := h.processor.LastReport()
	if !ok {
		return httperror.NewHTTPError(http.StatusNotFound, "no matching run has finished yet")
	}
	return c.JSON(http.StatusOK, report)
}
