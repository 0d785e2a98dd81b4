package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aetherhq/aether-backend/internal/http/response"
	"github.com/aetherhq/aether-backend/internal/services"
)

type UploadHandler struct {
	uploads  services.UploadService
	ontology services.OntologyService
	jobs     services.JobService
}

func NewUploadHandler(uploads services.UploadService, ontology services.OntologyService, jobs services.JobService) *UploadHandler {
	return &UploadHandler{uploads: uploads, ontology: ontology, jobs: jobs}
}

// POST /api/orgs/:org_id/uploads
// multipart: file, data_type, column_mapping (JSON object, either orientation)
func (h *UploadHandler) Create(c *gin.Context) {
	orgID, ok := pathUUID(c, "org_id")
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_file", errors.New("multipart field \"file\" is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer f.Close()

	var mapping []byte
	if raw := strings.TrimSpace(c.PostForm("column_mapping")); raw != "" {
		mapping = []byte(raw)
	}
	out, err := h.uploads.Ingest(c.Request.Context(), services.IngestInput{
		OrgID:    orgID,
		FileName: fh.Filename,
		DataType: c.PostForm("data_type"),
		Mapping:  mapping,
		Body:     f,
	})
	if err != nil {
		if out != nil && out.Upload != nil {
			// The upload row exists in status error; hand its id back with the failure.
			status, code := response.StatusFor(err)
			c.JSON(status, gin.H{
				"error":  response.APIError{Message: err.Error(), Code: code},
				"upload": out.Upload,
			})
			return
		}
		response.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, out)
}

// GET /api/orgs/:org_id/uploads
func (h *UploadHandler) List(c *gin.Context) {
	orgID, ok := pathUUID(c, "org_id")
	if !ok {
		return
	}
	limit, offset := page(c)
	uploads, err := h.uploads.List(c.Request.Context(), orgID, limit, offset)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"uploads": uploads, "limit": limit, "offset": offset})
}

// GET /api/orgs/:org_id/uploads/:id
func (h *UploadHandler) Get(c *gin.Context) {
	orgID, ok := pathUUID(c, "org_id")
	if !ok {
		return
	}
	uploadID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	u, err := h.uploads.Get(ctx, orgID, uploadID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	body := gin.H{"upload": u}
	if onto, err := h.ontology.Get(ctx, orgID, uploadID); err == nil && onto != nil {
		body["ontology"] = onto
	}
	if job, err := h.jobs.GetLatestForEntity(ctx, orgID, services.PipelineEntityType, uploadID, services.PipelineJobType); err == nil && job != nil {
		body["job"] = job
	}
	response.RespondOK(c, body)
}

// PUT /api/orgs/:org_id/uploads/:id/mapping
func (h *UploadHandler) UpdateMapping(c *gin.Context) {
	orgID, ok := pathUUID(c, "org_id")
	if !ok {
		return
	}
	uploadID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_body", err)
		return
	}
	out, err := h.uploads.UpdateMapping(c.Request.Context(), orgID, uploadID, raw)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, out)
}

// POST /api/orgs/:org_id/uploads/:id/reprocess
func (h *UploadHandler) Reprocess(c *gin.Context) {
	orgID, ok := pathUUID(c, "org_id")
	if !ok {
		return
	}
	uploadID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	out, err := h.uploads.Reprocess(c.Request.Context(), orgID, uploadID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, out)
}

// DELETE /api/orgs/:org_id/uploads/:id
func (h *UploadHandler) Delete(c *gin.Context) {
	orgID, ok := pathUUID(c, "org_id")
	if !ok {
		return
	}
	uploadID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.uploads.Delete(c.Request.Context(), orgID, uploadID); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
