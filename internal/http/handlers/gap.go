package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aetherhq/aether-backend/internal/http/response"
	"github.com/aetherhq/aether-backend/internal/services"
)

type GapHandler struct {
	gaps services.GapService
}

func NewGapHandler(gaps services.GapService) *GapHandler {
	return &GapHandler{gaps: gaps}
}

// GET /api/orgs/:org_id/gaps?period_start=&upload_id=
func (h *GapHandler) List(c *gin.Context) {
	orgID, ok := pathUUID(c, "org_id")
	if !ok {
		return
	}
	var uploadID *uuid.UUID
	if raw := c.Query("upload_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_upload_id", errors.New("invalid upload_id"))
			return
		}
		uploadID = &id
	}
	gaps, err := h.gaps.List(c.Request.Context(), orgID, c.Query("period_start"), uploadID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"gaps": gaps})
}
