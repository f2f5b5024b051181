package handlers

import (
	"fmt"
	"net/http"

	"yantra/internal/compilers"
	"yantra/pkg/models"

	"github.com/gin-gonic/gin"
)

// compilerResponse is the wire form of a compiler, with the run command
// decoded from its stored JSON.
type compilerResponse struct {
	models.Compiler
	RunCommand []string `json:"run_command"`
}

func toCompilerResponse(c *models.Compiler) compilerResponse {
	argv, _ := c.RunCommandArgv()
	return compilerResponse{Compiler: *c, RunCommand: argv}
}

// CreateCompiler registers a new language runtime and queues its first
// image build.
func (h *Handler) CreateCompiler(c *gin.Context) {
	var req compilers.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	compiler, err := h.Compilers.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCompilerResponse(compiler))
}

// ListCompilers returns compilers newest first. ?enabled_only=true filters
// to enabled ones.
func (h *Handler) ListCompilers(c *gin.Context) {
	enabledOnly := c.Query("enabled_only") == "true"

	list, err := h.Compilers.List(c.Request.Context(), enabledOnly)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]compilerResponse, 0, len(list))
	for i := range list {
		out = append(out, toCompilerResponse(&list[i]))
	}
	c.JSON(http.StatusOK, out)
}

// GetCompiler returns one compiler by id.
func (h *Handler) GetCompiler(c *gin.Context) {
	compiler, err := h.Compilers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCompilerResponse(compiler))
}

// UpdateCompiler applies a partial patch; Dockerfile or run command changes
// trigger a rebuild.
func (h *Handler) UpdateCompiler(c *gin.Context) {
	var req compilers.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	compiler, err := h.Compilers.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCompilerResponse(compiler))
}

// DeleteCompiler removes a compiler and queues removal of its image.
func (h *Handler) DeleteCompiler(c *gin.Context) {
	id := c.Param("id")
	if err := h.Compilers.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Compiler '%s' deleted and cleanup queued", id)})
}

// TriggerBuild queues a rebuild of the compiler's image.
func (h *Handler) TriggerBuild(c *gin.Context) {
	id := c.Param("id")
	if err := h.Compilers.TriggerBuild(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Build queued for compiler '%s'", id)})
}

// GetBuildLogs returns the stored image build output and state.
func (h *Handler) GetBuildLogs(c *gin.Context) {
	logs, err := h.Compilers.GetBuildLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}
