package handlers

import (
	"io"
	"mime/multipart"
	"net/http"

	"yantra/internal/metrics"
	"yantra/internal/staging"

	"github.com/gin-gonic/gin"
)

// SubmitCode accepts a multipart form with code, language, and up to the
// configured number of input files, and enqueues the job.
func (h *Handler) SubmitCode(c *gin.Context) {
	code := c.PostForm("code")
	language := c.PostForm("language")
	if code == "" || language == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Fields 'code' and 'language' are required"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid multipart form"})
		return
	}

	uploads := uploadsFromForm(form.File["files"])

	jobID, err := h.Submissions.Submit(c.Request.Context(), code, language, uploads)
	if err != nil {
		respondError(c, err)
		return
	}

	metrics.SubmissionsTotal.WithLabelValues(language).Inc()
	c.JSON(http.StatusOK, gin.H{"message": "Job submitted", "job_id": jobID})
}

// GetResults returns the status and captured output for a job. Unknown job
// ids yield {"status": "NOT_FOUND"}.
func (h *Handler) GetResults(c *gin.Context) {
	result, err := h.Submissions.GetResults(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func uploadsFromForm(headers []*multipart.FileHeader) []staging.Upload {
	uploads := make([]staging.Upload, 0, len(headers))
	for _, header := range headers {
		header := header
		uploads = append(uploads, staging.Upload{
			Name:     header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Open: func() (io.ReadCloser, error) {
				return header.Open()
			},
		})
	}
	return uploads
}
