// Yantra data models
// GORM models for compilers, submissions, and Dockerfile templates.

package models

import (
	"encoding/json"
	"time"
)

// Compiler build states.
const (
	BuildStatusPending  = "pending"
	BuildStatusBuilding = "building"
	BuildStatusReady    = "ready"
	BuildStatusFailed   = "failed"
)

// Submission lifecycle states.
const (
	SubmissionPending   = "PENDING"
	SubmissionRunning   = "RUNNING"
	SubmissionCompleted = "COMPLETED"
	SubmissionTimeout   = "TIMEOUT"
	SubmissionError     = "ERROR"
)

// Compiler is a user-defined language runtime: a Dockerfile, a run command,
// and resource caps. The worker builds its image asynchronously.
type Compiler struct {
	ID                string     `json:"id" gorm:"primarykey;size:50"`
	Name              string     `json:"name" gorm:"size:100;not null"`
	DockerfileContent string     `json:"dockerfile_content" gorm:"type:text;not null"`
	RunCommand        string     `json:"-" gorm:"type:text;not null"` // JSON array of argv tokens
	ImageTag          string     `json:"image_tag" gorm:"size:255;not null"`
	Version           string     `json:"version" gorm:"size:50"`
	MemoryLimit       string     `json:"memory_limit" gorm:"size:20;default:'512m'"`
	CPULimit          string     `json:"cpu_limit" gorm:"size:20;default:'1'"`
	TimeoutSeconds    int        `json:"timeout_seconds" gorm:"default:10"`
	Enabled           bool       `json:"enabled" gorm:"default:true"`
	BuildStatus       string     `json:"build_status" gorm:"size:50;default:'pending'"`
	BuildError        *string    `json:"build_error" gorm:"type:text"`
	BuildLogs         *string    `json:"build_logs" gorm:"type:text"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	BuiltAt           *time.Time `json:"built_at"`
}

func (Compiler) TableName() string { return "compilers" }

// RunCommandArgv decodes the stored run command into argv tokens.
func (c *Compiler) RunCommandArgv() ([]string, error) {
	var argv []string
	if err := json.Unmarshal([]byte(c.RunCommand), &argv); err != nil {
		return nil, err
	}
	return argv, nil
}

// SetRunCommand serializes argv tokens into the stored form.
func (c *Compiler) SetRunCommand(argv []string) error {
	data, err := json.Marshal(argv)
	if err != nil {
		return err
	}
	c.RunCommand = string(data)
	return nil
}

// IsRunnable reports whether submissions may target this compiler.
func (c *Compiler) IsRunnable() bool {
	return c.Enabled && c.BuildStatus == BuildStatusReady
}

// Submission is one scheduled execution of user code.
type Submission struct {
	JobID          string     `json:"job_id" gorm:"primarykey;size:36"`
	Code           string     `json:"code" gorm:"type:text;not null"`
	Language       string     `json:"language" gorm:"size:50;not null;index"`
	Status         string     `json:"status" gorm:"size:50;not null;default:'PENDING';index"`
	OutputStdout   *string    `json:"output_stdout" gorm:"type:text"`
	OutputStderr   *string    `json:"output_stderr" gorm:"type:text"`
	UploadedFiles  *string    `json:"-" gorm:"type:text"` // JSON array of FileMetadata
	FilesDirectory *string    `json:"files_directory" gorm:"size:500"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

func (Submission) TableName() string { return "submissions" }

// IsTerminal reports whether the submission has finished, successfully or not.
func (s *Submission) IsTerminal() bool {
	switch s.Status {
	case SubmissionCompleted, SubmissionTimeout, SubmissionError:
		return true
	}
	return false
}

// FileMetadataList decodes the stored uploaded-file metadata.
func (s *Submission) FileMetadataList() ([]FileMetadata, error) {
	if s.UploadedFiles == nil || *s.UploadedFiles == "" {
		return nil, nil
	}
	var files []FileMetadata
	if err := json.Unmarshal([]byte(*s.UploadedFiles), &files); err != nil {
		return nil, err
	}
	return files, nil
}

// FileMetadata describes one staged upload. MimeType is as reported by the
// client and is not trusted.
type FileMetadata struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// DockerfileTemplate is a curated, inert example of a compiler definition.
// Templates never drive builds; operators copy them into compilers.
type DockerfileTemplate struct {
	ID                 string    `json:"id" gorm:"primarykey;size:50"`
	Name               string    `json:"name" gorm:"size:100;not null"`
	Description        string    `json:"description" gorm:"type:text"`
	Category           string    `json:"category" gorm:"size:50;index"`
	DockerfileTemplate string    `json:"dockerfile_template" gorm:"type:text;not null"`
	DefaultRunCommand  *string   `json:"-" gorm:"type:text"` // JSON array
	Tags               *string   `json:"-" gorm:"type:text"` // JSON array
	Icon               string    `json:"icon" gorm:"size:10"`
	Author             string    `json:"author" gorm:"size:100;default:'yantra'"`
	IsOfficial         bool      `json:"is_official" gorm:"default:true"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (DockerfileTemplate) TableName() string { return "dockerfile_templates" }

// DefaultRunCommandArgv decodes the stored default run command, if any.
func (t *DockerfileTemplate) DefaultRunCommandArgv() ([]string, error) {
	if t.DefaultRunCommand == nil || *t.DefaultRunCommand == "" {
		return nil, nil
	}
	var argv []string
	if err := json.Unmarshal([]byte(*t.DefaultRunCommand), &argv); err != nil {
		return nil, err
	}
	return argv, nil
}

// TagList decodes the stored tags, if any.
func (t *DockerfileTemplate) TagList() ([]string, error) {
	if t.Tags == nil || *t.Tags == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(*t.Tags), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}
