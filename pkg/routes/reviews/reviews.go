package reviews

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/scoutalgo/clover/pkg/processor"
)

// ReviewRequest selects the matches to audit. An empty run id audits every
// committed match.
type ReviewRequest struct {
	RunID string `json:"run_id"`
}

// Handler serves review requests
type Handler struct {
	processor *processor.ReviewProcessor
}

func NewHandler(p *processor.ReviewProcessor) *Handler {
	return &Handler{processor: p}
}

// Register registers review routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.RunReview)
}

// RunReview audits committed matches and returns the report
func (h *Handler) RunReview(c echo.Context) error {
	var req ReviewRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	report, err := h.processor.Run(c.Request().Context(), req.RunID)
	if errors.Is(err, processor.ErrJobAlreadyRunning) {
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}
