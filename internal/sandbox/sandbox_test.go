package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	if err := osexec.Command("docker", "info").Run(); err != nil {
		t.Skip("Docker not available, skipping sandbox integration tests")
	}
}

func testExecutor() *DockerExecutor {
	return NewDockerExecutor("runsc", 600*time.Second, "/data")
}

func TestRunArgsIsolationFlags(t *testing.T) {
	e := testExecutor()
	limits := Limits{Memory: "512m", CPU: "1", Timeout: 10 * time.Second}

	args := e.runArgs("yantra-job-abc", "yantra-python-3.12:latest", []string{"python", "-"}, "", limits)
	joined := strings.Join(args, " ")

	// Every isolation flag is mandatory for each run.
	for _, flag := range []string{
		"--runtime=runsc",
		"--rm",
		"--network=none",
		"--memory=512m",
		"--cpus=1",
		"--read-only",
		"-i",
	} {
		assert.Contains(t, args, flag, "missing %s in: %s", flag, joined)
	}
	assert.Contains(t, joined, "-w /sandbox")

	// Image comes before argv.
	imageIdx := indexOf(args, "yantra-python-3.12:latest")
	require.GreaterOrEqual(t, imageIdx, 0)
	assert.Equal(t, []string{"python", "-"}, args[imageIdx+1:])
}

func TestRunArgsNoMountWithoutJobDir(t *testing.T) {
	e := testExecutor()
	args := e.runArgs("n", "img", []string{"sh"}, "", Limits{Memory: "256m", CPU: "0.5", Timeout: time.Second})
	assert.NotContains(t, args, "-v")
}

func TestRunArgsJobDirMountedReadOnly(t *testing.T) {
	e := testExecutor()
	args := e.runArgs("n", "img", []string{"sh"}, "/tmp/executor_jobs/abc", Limits{Memory: "256m", CPU: "0.5", Timeout: time.Second})

	idx := indexOf(args, "-v")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "/tmp/executor_jobs/abc:/data:ro", args[idx+1])

	// The mount must precede the image so docker treats it as an option.
	assert.Less(t, idx, indexOf(args, "img"))
}

func TestRunArgsCustomRuntime(t *testing.T) {
	e := NewDockerExecutor("runc", time.Minute, "/data")
	args := e.runArgs("n", "img", nil, "", Limits{Memory: "1g", CPU: "2", Timeout: time.Second})
	assert.Contains(t, args, "--runtime=runc")
}

func TestLimitedWriterCapsOutput(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	n, err := lw.Write([]byte("0123456789ABCDEF"))
	require.NoError(t, err)
	// Reports full consumption so the producing process never blocks.
	assert.Equal(t, 16, n)
	assert.Equal(t, "0123456789", buf.String())

	n, err = lw.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "0123456789", buf.String())
}

func TestLimitedWriterUnderLimit(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 100}

	for i := 0; i < 5; i++ {
		_, err := lw.Write([]byte("chunk "))
		require.NoError(t, err)
	}
	assert.Equal(t, "chunk chunk chunk chunk chunk ", buf.String())
}

// stubDocker puts a fake docker binary on PATH whose run and build commands
// block until killed; other subcommands exit immediately.
func stubDocker(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	script := "#!/bin/sh\ncase \"$1\" in\nrun|build) sleep 30 ;;\n*) exit 0 ;;\nesac\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docker"), []byte(script), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestRunParentCancellationIsNotACompletion(t *testing.T) {
	stubDocker(t)

	e := testExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	_, err := e.Run(ctx, "img:latest", []string{"true"}, nil, "",
		Limits{Memory: "512m", CPU: "1", Timeout: 30 * time.Second})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrExecTimeout)
}

func TestBuildImageParentCancellationIsNotAFailure(t *testing.T) {
	stubDocker(t)

	e := NewDockerExecutor("runsc", 30*time.Second, "/data")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	_, err := e.BuildImage(ctx, "FROM scratch\n", "img:latest")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrBuildTimeout)
}

func TestBuildImageAndRemove(t *testing.T) {
	skipIfNoDocker(t)

	e := NewDockerExecutor("runsc", 2*time.Minute, "/data")
	tag := fmt.Sprintf("yantra-test-%d:latest", time.Now().UnixNano())

	result, err := e.BuildImage(context.Background(), "FROM scratch\nLABEL purpose=test\n", tag)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.NotEmpty(t, result.Log)

	require.NoError(t, e.RemoveImage(context.Background(), tag))
	// Removing it again must still succeed.
	assert.NoError(t, e.RemoveImage(context.Background(), tag))
}

func TestBuildImageInvalidDockerfile(t *testing.T) {
	skipIfNoDocker(t)

	e := NewDockerExecutor("runsc", 2*time.Minute, "/data")
	tag := fmt.Sprintf("yantra-test-bad-%d:latest", time.Now().UnixNano())

	result, err := e.BuildImage(context.Background(), "THIS IS NOT A DOCKERFILE\n", tag)
	require.NoError(t, err)
	assert.NotEqual(t, 0, result.ExitCode)
	assert.NotEmpty(t, result.Log)
}

func indexOf(args []string, want string) int {
	for i, a := range args {
		if a == want {
			return i
		}
	}
	return -1
}
