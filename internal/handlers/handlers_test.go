package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"yantra/internal/compilers"
	"yantra/internal/config"
	"yantra/internal/db"
	"yantra/internal/queue"
	"yantra/internal/staging"
	"yantra/internal/submissions"
	"yantra/internal/templates"
	"yantra/pkg/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	broker *queue.Broker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.NewSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String()))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	broker := queue.NewBroker(client, "job_queue", "build_queue")

	stager := staging.NewStager(t.TempDir(), 10, 25*1024*1024, map[string]bool{
		".txt": true, ".csv": true, ".json": true,
	})

	handler := NewHandler(
		submissions.NewService(database.DB, broker, stager),
		compilers.NewService(database.DB, broker),
		templates.NewService(database.DB),
	)
	cfg := &config.Config{SubmitRatePerSec: 1000, SubmitRateBurst: 1000}
	return &testEnv{router: SetupRouter(handler, cfg), db: database.DB, broker: broker}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return e.do(t, method, path, body, "application/json")
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func seedReadyCompiler(t *testing.T, gdb *gorm.DB, id string) {
	t.Helper()
	compiler := models.Compiler{
		ID:                id,
		Name:              id,
		DockerfileContent: "FROM python:3.12-slim",
		ImageTag:          fmt.Sprintf("yantra-%s:latest", id),
		MemoryLimit:       "512m",
		CPULimit:          "1",
		TimeoutSeconds:    10,
		Enabled:           true,
		BuildStatus:       models.BuildStatusReady,
	}
	require.NoError(t, compiler.SetRunCommand([]string{"python", "-"}))
	require.NoError(t, gdb.Create(&compiler).Error)
}

func multipartSubmit(t *testing.T, code, language string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	require.NoError(t, writer.WriteField("code", code))
	require.NoError(t, writer.WriteField("language", language))
	for name, content := range files {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return buf, writer.FormDataContentType()
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "yantra-api", body["service"])
}

func TestSubmitCode(t *testing.T) {
	env := newTestEnv(t)
	seedReadyCompiler(t, env.db, "python-3.12")

	buf, contentType := multipartSubmit(t, "print(2+2)", "python-3.12", nil)
	rec := env.do(t, http.MethodPost, "/submit", buf, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "Job submitted", body["message"])
	jobID, ok := body["job_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, jobID)

	payload, found, err := env.broker.PopJob(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, jobID, payload.JobID)
	assert.Equal(t, "print(2+2)", payload.Code)
}

func TestSubmitCodeWithFiles(t *testing.T) {
	env := newTestEnv(t)
	seedReadyCompiler(t, env.db, "python-3.12")

	buf, contentType := multipartSubmit(t, "open('/data/input.txt')", "python-3.12",
		map[string]string{"input.txt": "hello"})
	rec := env.do(t, http.MethodPost, "/submit", buf, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	jobID := decodeBody(t, rec)["job_id"].(string)

	var submission models.Submission
	require.NoError(t, env.db.First(&submission, "job_id = ?", jobID).Error)
	require.NotNil(t, submission.FilesDirectory)

	metadata, err := submission.FileMetadataList()
	require.NoError(t, err)
	require.Len(t, metadata, 1)
	assert.Equal(t, "input.txt", metadata[0].Filename)
}

func TestSubmitCodeMissingFields(t *testing.T) {
	env := newTestEnv(t)

	buf, contentType := multipartSubmit(t, "", "python-3.12", nil)
	rec := env.do(t, http.MethodPost, "/submit", buf, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitCodeUnknownLanguage(t *testing.T) {
	env := newTestEnv(t)

	buf, contentType := multipartSubmit(t, "print(1)", "cobol-74", nil)
	rec := env.do(t, http.MethodPost, "/submit", buf, contentType)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Language 'cobol-74' not found", decodeBody(t, rec)["detail"])
}

func TestSubmitCodeLanguageNotReady(t *testing.T) {
	env := newTestEnv(t)
	seedReadyCompiler(t, env.db, "python-3.12")
	require.NoError(t, env.db.Model(&models.Compiler{}).Where("id = ?", "python-3.12").
		Update("build_status", models.BuildStatusBuilding).Error)

	buf, contentType := multipartSubmit(t, "print(1)", "python-3.12", nil)
	rec := env.do(t, http.MethodPost, "/submit", buf, contentType)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Language 'python-3.12' is not ready (status: building)", decodeBody(t, rec)["detail"])
}

func TestSubmitCodeRejectedExtension(t *testing.T) {
	env := newTestEnv(t)
	seedReadyCompiler(t, env.db, "python-3.12")

	buf, contentType := multipartSubmit(t, "print(1)", "python-3.12",
		map[string]string{"payload.exe": "MZ"})
	rec := env.do(t, http.MethodPost, "/submit", buf, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetResultsNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/submit/results/"+uuid.New().String(), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody(t, rec)["status"])
}

func TestGetResultsCompleted(t *testing.T) {
	env := newTestEnv(t)
	seedReadyCompiler(t, env.db, "python-3.12")

	stdout := "4\n"
	submission := models.Submission{
		JobID:        uuid.New().String(),
		Code:         "print(2+2)",
		Language:     "python-3.12",
		Status:       models.SubmissionCompleted,
		OutputStdout: &stdout,
	}
	require.NoError(t, env.db.Create(&submission).Error)

	rec := env.do(t, http.MethodGet, "/submit/results/"+submission.JobID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, models.SubmissionCompleted, body["status"])
	assert.Equal(t, "4\n", body["stdout"])
}

func TestCompilerLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(t, http.MethodPost, "/compilers", map[string]interface{}{
		"id":                 "ruby-3.3",
		"name":               "Ruby 3.3",
		"dockerfile_content": "FROM ruby:3.3-slim",
		"run_command":        []string{"ruby", "-"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody(t, rec)
	assert.Equal(t, "yantra-ruby-3.3:latest", created["image_tag"])
	assert.Equal(t, models.BuildStatusPending, created["build_status"])
	assert.Equal(t, []interface{}{"ruby", "-"}, created["run_command"])

	build, found, err := env.broker.PopBuild(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, queue.ActionBuild, build.Action)
	assert.Equal(t, "ruby-3.3", build.CompilerID)

	rec = env.doJSON(t, http.MethodPost, "/compilers", map[string]interface{}{
		"id":                 "ruby-3.3",
		"name":               "Ruby again",
		"dockerfile_content": "FROM ruby:3.3-slim",
		"run_command":        []string{"ruby", "-"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "Compiler with id 'ruby-3.3' already exists")

	rec = env.do(t, http.MethodGet, "/compilers/ruby-3.3", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.doJSON(t, http.MethodPut, "/compilers/ruby-3.3", map[string]interface{}{
		"timeout_seconds": 30,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(30), decodeBody(t, rec)["timeout_seconds"])

	rec = env.doJSON(t, http.MethodPut, "/compilers/ruby-3.3", map[string]interface{}{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "No fields to update")

	rec = env.do(t, http.MethodDelete, "/compilers/ruby-3.3", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Compiler 'ruby-3.3' deleted and cleanup queued", decodeBody(t, rec)["message"])

	cleanup, found, err := env.broker.PopBuild(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, queue.ActionCleanup, cleanup.Action)
	assert.Equal(t, "yantra-ruby-3.3:latest", cleanup.ImageTag)

	rec = env.do(t, http.MethodGet, "/compilers/ruby-3.3", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCompilersEnabledOnly(t *testing.T) {
	env := newTestEnv(t)
	seedReadyCompiler(t, env.db, "python-3.12")
	seedReadyCompiler(t, env.db, "go-1.22")
	require.NoError(t, env.db.Model(&models.Compiler{}).Where("id = ?", "go-1.22").
		Update("enabled", false).Error)

	rec := env.do(t, http.MethodGet, "/compilers", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rec = env.do(t, http.MethodGet, "/compilers?enabled_only=true", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var enabled []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enabled))
	require.Len(t, enabled, 1)
	assert.Equal(t, "python-3.12", enabled[0]["id"])
}

func TestTriggerBuildAndLogs(t *testing.T) {
	env := newTestEnv(t)
	seedReadyCompiler(t, env.db, "python-3.12")

	rec := env.do(t, http.MethodGet, "/compilers/python-3.12/logs", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "No build logs available", body["build_logs"])
	assert.Equal(t, models.BuildStatusReady, body["build_status"])

	rec = env.doJSON(t, http.MethodPost, "/compilers/python-3.12/build", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Build queued for compiler 'python-3.12'", decodeBody(t, rec)["message"])

	build, found, err := env.broker.PopBuild(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "python-3.12", build.CompilerID)

	rec = env.doJSON(t, http.MethodPost, "/compilers/ghost/build", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Compiler 'ghost' not found", decodeBody(t, rec)["detail"])
}

func TestTemplateEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(t, http.MethodPost, "/templates", map[string]interface{}{
		"id":                  "ruby-3.3",
		"name":                "Ruby 3.3",
		"category":            "language",
		"dockerfile_template": "FROM ruby:3.3-slim",
		"default_run_command": []string{"ruby", "-"},
		"tags":                []string{"ruby"},
		"is_official":         true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	assert.Equal(t, []interface{}{"ruby", "-"}, created["default_run_command"])

	rec = env.do(t, http.MethodGet, "/templates/ruby-3.3", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/templates?category=language&official_only=true", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = env.do(t, http.MethodDelete, "/templates/ruby-3.3", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/templates/ruby-3.3", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Template 'ruby-3.3' not found", decodeBody(t, rec)["detail"])
}
