// Yantra file stager
// Validates, sanitizes, and writes uploaded files into a per-job directory
// that is later bind-mounted read-only into the sandbox.

package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"yantra/pkg/models"

	"github.com/google/uuid"
)

// Validation failures. Handlers map these to HTTP 400.
var (
	ErrTooManyFiles        = errors.New("too many files")
	ErrEmptyFile           = errors.New("empty file")
	ErrSizeLimitExceeded   = errors.New("total upload size limit exceeded")
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
)

// Upload is one uploaded file handle. Open streams the file content; Name
// and MimeType are client-declared and untrusted.
type Upload struct {
	Name     string
	MimeType string
	Open     func() (io.ReadCloser, error)
}

// Stager writes validated uploads under {JobsDir}/{job_id}/.
type Stager struct {
	JobsDir     string
	MaxFiles    int
	MaxBytes    int64
	AllowedExts map[string]bool
}

// NewStager returns a stager with the given policy.
func NewStager(jobsDir string, maxFiles int, maxBytes int64, allowedExts map[string]bool) *Stager {
	return &Stager{
		JobsDir:     jobsDir,
		MaxFiles:    maxFiles,
		MaxBytes:    maxBytes,
		AllowedExts: allowedExts,
	}
}

// Stage validates every upload in order and writes it into the job
// directory. On any failure the whole directory is removed and the error is
// returned; staging is all-or-nothing.
func (s *Stager) Stage(jobID string, uploads []Upload) (string, []models.FileMetadata, error) {
	if len(uploads) > s.MaxFiles {
		return "", nil, fmt.Errorf("%w: maximum %d files allowed, got %d", ErrTooManyFiles, s.MaxFiles, len(uploads))
	}

	jobDir := filepath.Join(s.JobsDir, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create job directory: %w", err)
	}

	metadata, err := s.stageInto(jobDir, uploads)
	if err != nil {
		os.RemoveAll(jobDir)
		return "", nil, err
	}

	absDir, err := filepath.Abs(jobDir)
	if err != nil {
		os.RemoveAll(jobDir)
		return "", nil, fmt.Errorf("failed to resolve job directory: %w", err)
	}
	return absDir, metadata, nil
}

func (s *Stager) stageInto(jobDir string, uploads []Upload) ([]models.FileMetadata, error) {
	metadata := make([]models.FileMetadata, 0, len(uploads))
	taken := make(map[string]bool, len(uploads))
	var total int64

	for _, upload := range uploads {
		content, err := readAll(upload)
		if err != nil {
			return nil, fmt.Errorf("failed to read file '%s': %w", upload.Name, err)
		}

		if len(content) == 0 {
			return nil, fmt.Errorf("%w: '%s'", ErrEmptyFile, upload.Name)
		}

		total += int64(len(content))
		if total > s.MaxBytes {
			return nil, fmt.Errorf("%w: maximum %d bytes", ErrSizeLimitExceeded, s.MaxBytes)
		}

		ext := strings.ToLower(filepath.Ext(upload.Name))
		if !s.AllowedExts[ext] {
			return nil, fmt.Errorf("%w: '%s'", ErrExtensionNotAllowed, upload.Name)
		}

		name := uniqueName(taken, SanitizeFilename(upload.Name))
		taken[name] = true
		path := filepath.Join(jobDir, name)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write file '%s': %w", name, err)
		}

		metadata = append(metadata, models.FileMetadata{
			Filename: name,
			Size:     int64(len(content)),
			MimeType: upload.MimeType,
		})
	}

	return metadata, nil
}

func readAll(upload Upload) ([]byte, error) {
	rc, err := upload.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// uniqueName disambiguates sanitized names that collide within one job by
// inserting a counter before the extension, so no upload silently overwrites
// another.
func uniqueName(taken map[string]bool, name string) string {
	if !taken[name] {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !taken[candidate] {
			return candidate
		}
	}
}

// SanitizeFilename neutralizes a client-declared filename. Path separators
// and every character outside [A-Za-z0-9._-] become underscores, so no
// directory structure survives. A name that sanitizes to nothing useful is
// replaced with a generated one.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	sanitized := b.String()
	if sanitized == "" || sanitized == "." {
		return "file_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	}
	return sanitized
}
