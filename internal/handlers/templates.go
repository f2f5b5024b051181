package handlers

import (
	"fmt"
	"net/http"

	"yantra/internal/templates"
	"yantra/pkg/models"

	"github.com/gin-gonic/gin"
)

// templateResponse is the wire form of a template, with the JSON text
// columns decoded.
type templateResponse struct {
	models.DockerfileTemplate
	DefaultRunCommand []string `json:"default_run_command,omitempty"`
	Tags              []string `json:"tags,omitempty"`
}

func toTemplateResponse(t *models.DockerfileTemplate) templateResponse {
	argv, _ := t.DefaultRunCommandArgv()
	tags, _ := t.TagList()
	return templateResponse{DockerfileTemplate: *t, DefaultRunCommand: argv, Tags: tags}
}

// CreateTemplate registers a new catalog entry.
func (h *Handler) CreateTemplate(c *gin.Context) {
	var req templates.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	template, err := h.Templates.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTemplateResponse(template))
}

// ListTemplates returns templates ordered by name, optionally filtered by
// ?category and ?official_only=true.
func (h *Handler) ListTemplates(c *gin.Context) {
	category := c.Query("category")
	officialOnly := c.Query("official_only") == "true"

	list, err := h.Templates.List(c.Request.Context(), category, officialOnly)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]templateResponse, 0, len(list))
	for i := range list {
		out = append(out, toTemplateResponse(&list[i]))
	}
	c.JSON(http.StatusOK, out)
}

// GetTemplate returns one template by id.
func (h *Handler) GetTemplate(c *gin.Context) {
	template, err := h.Templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTemplateResponse(template))
}

// DeleteTemplate removes a template from the catalog.
func (h *Handler) DeleteTemplate(c *gin.Context) {
	id := c.Param("id")
	if err := h.Templates.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Template '%s' deleted successfully", id)})
}
