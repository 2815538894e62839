package k8s

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
)

func TestExecRunner_CapturesOutputAndExitCode(t *testing.T) {
	r := NewExecRunner("sh")

	result, err := r.Run(context.Background(), "-c", "echo out; echo err >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "out\n", result.Stdout)
	assert.Equal(t, "err\n", result.Stderr)
}

func TestExecRunner_Success(t *testing.T) {
	result, err := NewExecRunner("sh").Run(context.Background(), "-c", "true")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
}

func TestExecRunner_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewExecRunner("sh").Run(ctx, "-c", "sleep 5")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := NewExecRunner("/nonexistent/helm").Run(context.Background(), "status")
	require.Error(t, err)
}

func TestCommandError(t *testing.T) {
	withStderr := &CommandError{Op: "helm install", ExitCode: 1, Stderr: " boom \n"}
	assert.Equal(t, "helm install failed (exit 1): boom", withStderr.Error())
	assert.Equal(t, "boom", withStderr.Diagnostic())

	wrapped := &CommandError{Op: "delete namespace", ExitCode: -1, Err: context.DeadlineExceeded}
	assert.True(t, errors.Is(wrapped, context.DeadlineExceeded))
	assert.Equal(t, context.DeadlineExceeded.Error(), wrapped.Diagnostic())

	bare := &CommandError{Op: "helm status", ExitCode: 2}
	assert.Equal(t, "helm status exited with code 2", bare.Diagnostic())
}

func TestIsReleaseNotFound(t *testing.T) {
	assert.True(t, isReleaseNotFound(&CommandError{ExitCode: 1, Stderr: "Error: release: not found"}))
	assert.False(t, isReleaseNotFound(&CommandError{ExitCode: 1, Stderr: "Error: forbidden"}))
	assert.False(t, isReleaseNotFound(&CommandError{ExitCode: -1, Stderr: "not found", Err: context.Canceled}))
	assert.False(t, isReleaseNotFound(errors.New("release: not found")))
}

func TestPodsReady_Empty(t *testing.T) {
	assert.False(t, PodsReady(nil))
	assert.False(t, PodsReady([]corev1.Pod{}))
}
