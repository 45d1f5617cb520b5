package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"transport-ledger-backend/internal/ledger"
	service "transport-ledger-backend/internal/services/reconciliation"
)

type ReconciliationHandler struct {
	service *service.ReconciliationService
	log     *zap.Logger
}

func NewReconciliationHandler(s *service.ReconciliationService, log *zap.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{service: s, log: log}
}

// Run handles POST /reconciliation/run. It runs synchronously; a run that skipped some
// items still answers 200 with the failures listed.
func (h *ReconciliationHandler) Run(c *gin.Context) {
	res, err := h.service.Run(c.Request.Context())
	var partial *ledger.PartialFailure
	if err != nil && !errors.As(err, &partial) {
		respondError(c, h.log, err)
		return
	}
	body := gin.H{"data": res}
	if partial != nil {
		body["message"] = partial.Error()
	}
	c.JSON(http.StatusOK, body)
}

// GetRun handles GET /reconciliation/runs/:runId
func (h *ReconciliationHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("runId"))
	if err != nil {
		badRequest(c, "invalid run ID")
		return
	}
	run, err := h.service.GetRun(c.Request.Context(), runID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	body := gin.H{"data": run}
	if p, ok := h.service.RunProgress(runID); ok {
		body["progress"] = p
	}
	c.JSON(http.StatusOK, body)
}
