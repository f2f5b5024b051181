// Yantra sandbox executor
// Docker-based isolated execution of user code and Dockerfile builds.
// Every run container gets a gVisor runtime, no network, capped memory and
// CPU, and a read-only root filesystem.

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for wall-clock ceilings.
var (
	ErrBuildTimeout = errors.New("image build timed out")
	ErrExecTimeout  = errors.New("sandbox execution timed out")
)

// Limits are the per-compiler resource caps passed through to the container
// runtime verbatim.
type Limits struct {
	Memory  string
	CPU     string
	Timeout time.Duration
}

// RunResult captures a finished sandbox run. A non-zero exit code is a
// normal outcome, not an error.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// BuildResult captures a finished image build with combined output.
type BuildResult struct {
	ExitCode int
	Log      string
}

// Executor abstracts the container runtime. It owns no persistent state and
// never touches the store.
type Executor interface {
	BuildImage(ctx context.Context, dockerfile, imageTag string) (BuildResult, error)
	Run(ctx context.Context, imageTag string, argv []string, stdin []byte, jobDir string, limits Limits) (RunResult, error)
	RemoveImage(ctx context.Context, imageTag string) error
}

// DockerExecutor shells out to the docker CLI.
type DockerExecutor struct {
	// Runtime is the container runtime handle, runsc for gVisor isolation.
	Runtime string
	// BuildTimeout is the hard wall-clock ceiling for image builds.
	BuildTimeout time.Duration
	// MountPath is where a job's staged files appear inside the sandbox.
	MountPath string
}

// NewDockerExecutor returns an executor with the given runtime handle and
// build ceiling. mountPath defaults to /data.
func NewDockerExecutor(runtime string, buildTimeout time.Duration, mountPath string) *DockerExecutor {
	if mountPath == "" {
		mountPath = "/data"
	}
	return &DockerExecutor{Runtime: runtime, BuildTimeout: buildTimeout, MountPath: mountPath}
}

// maxStreamBytes caps captured stdout/stderr per stream.
const maxStreamBytes = 1024 * 1024

// BuildImage writes the Dockerfile into a fresh build context and runs
// `docker build`. Combined stdout+stderr is returned even on failure. The
// build is killed after BuildTimeout and ErrBuildTimeout is returned.
func (e *DockerExecutor) BuildImage(ctx context.Context, dockerfile, imageTag string) (BuildResult, error) {
	buildDir, err := os.MkdirTemp("", "yantra-build-")
	if err != nil {
		return BuildResult{}, fmt.Errorf("failed to create build context: %w", err)
	}
	defer os.RemoveAll(buildDir)

	dockerfilePath := filepath.Join(buildDir, "Dockerfile")
	if err := os.WriteFile(dockerfilePath, []byte(dockerfile), 0o644); err != nil {
		return BuildResult{}, fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	buildCtx, cancel := context.WithTimeout(ctx, e.BuildTimeout)
	defer cancel()

	cmd := osexec.CommandContext(buildCtx, "docker", "build", "-t", imageTag, buildDir)
	var combined bytes.Buffer
	limited := &limitedWriter{w: &combined, limit: maxStreamBytes}
	cmd.Stdout = limited
	cmd.Stderr = limited

	runErr := cmd.Run()

	if buildCtx.Err() == context.DeadlineExceeded {
		return BuildResult{ExitCode: -1, Log: combined.String()}, ErrBuildTimeout
	}
	// Parent cancellation (shutdown) also kills the process; the resulting
	// ExitError must not be mistaken for a failed build.
	if err := buildCtx.Err(); err != nil {
		return BuildResult{ExitCode: -1, Log: combined.String()}, err
	}

	result := BuildResult{Log: combined.String()}
	if runErr != nil {
		var exitErr *osexec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("docker build failed to start: %w", runErr)
	}
	return result, nil
}

// Run executes argv inside imageTag under full isolation. stdin is written
// to the container and closed. When jobDir is non-empty it is bind-mounted
// read-only at MountPath. The container is killed after limits.Timeout and
// ErrExecTimeout is returned.
func (e *DockerExecutor) Run(ctx context.Context, imageTag string, argv []string, stdin []byte, jobDir string, limits Limits) (RunResult, error) {
	containerName := fmt.Sprintf("yantra-job-%s", uuid.New().String()[:12])

	runCtx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	args := e.runArgs(containerName, imageTag, argv, jobDir, limits)
	cmd := osexec.CommandContext(runCtx, "docker", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: maxStreamBytes}
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStreamBytes}
	cmd.Stdin = bytes.NewReader(stdin)

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		go forceRemoveContainer(containerName)
		return RunResult{ExitCode: 124, Stdout: stdout.String(), Stderr: stderr.String()}, ErrExecTimeout
	}
	// Parent cancellation (shutdown) also kills the process; report it as a
	// cancellation, not a completed run with truncated output.
	if err := runCtx.Err(); err != nil {
		go forceRemoveContainer(containerName)
		return RunResult{ExitCode: -1, Stdout: stdout.String(), Stderr: stderr.String()}, err
	}

	result := RunResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr != nil {
		var exitErr *osexec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("docker run failed to start: %w", runErr)
	}
	return result, nil
}

// runArgs assembles the docker run argument list. All isolation flags are
// unconditional; omitting any of them is a correctness bug.
func (e *DockerExecutor) runArgs(containerName, imageTag string, argv []string, jobDir string, limits Limits) []string {
	args := []string{
		"run",
		"--runtime=" + e.Runtime,
		"--rm",
		"--name", containerName,
		"--network=none",
		"--memory=" + limits.Memory,
		"--cpus=" + limits.CPU,
		"--read-only",
		"-i",
		"-w", "/sandbox",
	}
	if jobDir != "" {
		args = append(args, "-v", fmt.Sprintf("%s:%s:ro", jobDir, e.MountPath))
	}
	args = append(args, imageTag)
	args = append(args, argv...)
	return args
}

// RemoveImage removes an image with `docker rmi -f`. A missing image is not
// an error.
func (e *DockerExecutor) RemoveImage(ctx context.Context, imageTag string) error {
	rmCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	cmd := osexec.CommandContext(rmCtx, "docker", "rmi", "-f", imageTag)
	output, err := cmd.CombinedOutput()
	if err != nil {
		out := strings.TrimSpace(string(output))
		if strings.Contains(out, "No such image") {
			return nil
		}
		return fmt.Errorf("failed to remove image %s: %s", imageTag, out)
	}
	return nil
}

func forceRemoveContainer(containerName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = osexec.CommandContext(ctx, "docker", "stop", "-t", "2", containerName).Run()
	_ = osexec.Command("docker", "rm", "-f", containerName).Run()
}

// limitedWriter caps the bytes written through to w; the excess is dropped.
type limitedWriter struct {
	w     io.Writer
	limit int
	n     int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.n >= lw.limit {
		return len(p), nil
	}
	remain := lw.limit - lw.n
	toWrite := p
	if len(p) > remain {
		toWrite = p[:remain]
	}
	written, err := lw.w.Write(toWrite)
	lw.n += written
	if err != nil {
		return written, err
	}
	return len(p), nil
}
