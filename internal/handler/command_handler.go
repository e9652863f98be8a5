package handler

import (
	"errors"
	"net/http"

	"stayhub/internal/dispatch"
	"stayhub/internal/metrics"
	"stayhub/internal/middleware"
	"stayhub/internal/registry"
	"stayhub/internal/transport/httpdto"

	"github.com/gin-gonic/gin"

	stayhub_errors "stayhub/pkg/errors"
)

type CommandHandler struct {
	service  *dispatch.Service
	counters *metrics.Counters
}

func NewCommandHandler(service *dispatch.Service, counters *metrics.Counters) *CommandHandler {
	return &CommandHandler{service: service, counters: counters}
}

// Dispatch accepts a command for asynchronous delivery. The caller only ever
// sees synchronous routing/validation failures here; delivery failures are
// observable via the counters and the DLQ.
func (h *CommandHandler) Dispatch(c *gin.Context) {
	var req httpdto.DispatchCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	tenantID := req.TenantID
	if tokenTenant := c.GetString(middleware.TenantIDKey); tokenTenant != "" {
		if tenantID != "" && tenantID != tokenTenant {
			h.counters.IncUnauthorized()
			c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("tenant mismatch", "FORBIDDEN"))
			return
		}
		tenantID = tokenTenant
	}

	var membership registry.Membership
	if modules, ok := c.Get(middleware.ModulesKey); ok {
		if list, ok := modules.([]any); ok {
			membership.Modules = list
		}
	}

	result, err := h.service.Dispatch(c.Request.Context(), dispatch.Command{
		CommandName:   req.CommandName,
		TenantID:      tenantID,
		Payload:       req.Payload,
		CorrelationID: req.CorrelationID,
		RequestID:     req.RequestID,
		InitiatedBy:   req.InitiatedBy,
		Membership:    membership,
	})
	if err != nil {
		status, code := mapDispatchError(err)
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), code))
		return
	}

	c.JSON(http.StatusAccepted, httpdto.NewSuccessResponse(httpdto.DispatchCommandResponse{
		Status:        result.Status,
		CommandID:     result.CommandID.String(),
		TargetService: result.TargetService,
		RequestedAt:   result.RequestedAt,
	}))
}

func mapDispatchError(err error) (int, string) {
	switch {
	case errors.Is(err, stayhub_errors.ErrUnknownCommand):
		return http.StatusNotFound, "UNKNOWN_COMMAND"
	case errors.Is(err, stayhub_errors.ErrModuleNotEnabled):
		return http.StatusForbidden, "MODULE_NOT_ENABLED"
	case errors.Is(err, stayhub_errors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_REQUEST"
	default:
		return http.StatusInternalServerError, "REQUEST_FAILED"
	}
}
