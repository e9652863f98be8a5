package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stayhub/internal/metrics"
	"stayhub/internal/transport/httpdto"
)

// OpsHandler serves the operational endpoints every binary exposes: a
// liveness probe and the reliability counters snapshot. The worker has no
// other HTTP surface, so this is how its delivery counters reach dashboards.
type OpsHandler struct {
	counters *metrics.Counters
}

func NewOpsHandler(counters *metrics.Counters) *OpsHandler {
	return &OpsHandler{counters: counters}
}

func (h *OpsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Counters returns the reliability counters snapshot for dashboards.
func (h *OpsHandler) Counters(c *gin.Context) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(h.counters.Snapshot()))
}
