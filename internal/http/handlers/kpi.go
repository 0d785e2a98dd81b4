package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/aetherhq/aether-backend/internal/http/response"
	"github.com/aetherhq/aether-backend/internal/services"
)

type KPIHandler struct {
	kpis services.KPIService
}

func NewKPIHandler(kpis services.KPIService) *KPIHandler {
	return &KPIHandler{kpis: kpis}
}

// GET /api/orgs/:org_id/kpis?period=&start=&end=
func (h *KPIHandler) Get(c *gin.Context) {
	orgID, ok := pathUUID(c, "org_id")
	if !ok {
		return
	}
	res, err := h.kpis.GetKPIs(c.Request.Context(), orgID, c.Query("period"), c.Query("start"), c.Query("end"))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	if res.Cached {
		c.Header("X-Cache", "hit")
	} else {
		c.Header("X-Cache", "miss")
	}
	response.RespondOK(c, res)
}
