package audit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/careops/clinic-api/internal/handler"
	"github.com/careops/clinic-api/internal/model"
	"github.com/careops/clinic-api/internal/service/audit"
)

type Handler struct {
	svc *audit.Service
}

func NewHandler(svc *audit.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires the audit trail endpoints. The router restricts them
// to admins.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/records/:id/audit", h.RecordTrail)
}

func (h *Handler) RecordTrail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid ID"))
		return
	}

	entries, err := h.svc.Trail(c.Request.Context(), model.AuditEntityRecord, id)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}
