package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
)

const (
	// maxOutputBytes caps captured stdout/stderr per invocation.
	maxOutputBytes = 64 * 1024

	// maxDetailBytes caps the tool output carried in a PipelineError.
	maxDetailBytes = 512

	outputTruncatedMsg = "\n... output truncated (64 KB limit) ..."
)

// runner executes external tools with a timeout in their own process group.
type runner struct {
	timeout time.Duration
	logger  *zap.Logger
}

// run executes bin with args and returns its stdout. Any failure is reported
// as a *domain.PipelineError for stage, wrapping cause.
func (r *runner) run(ctx context.Context, stage string, cause error, bin string, args ...string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, bin, args...)

	// Own process group so children (ffmpeg spawned by yt-dlp) die with it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr limitedBuffer
	stdout.limit = maxOutputBytes
	stderr.limit = maxOutputBytes
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	startTime := time.Now()
	err := cmd.Run()
	elapsed := time.Since(startTime)

	r.logger.Debug("Tool invocation completed",
		zap.String("stage", stage),
		zap.String("bin", bin),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)

	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
		return "", &domain.PipelineError{
			Stage:  stage,
			Detail: fmt.Sprintf("timed out after %s", r.timeout),
			Err:    cause,
		}
	}
	if ctx.Err() != nil {
		return "", &domain.PipelineError{Stage: stage, Detail: ctx.Err().Error(), Err: cause}
	}

	if err != nil {
		detail := lastLines(stderr.String(), maxDetailBytes)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = fmt.Sprintf("exit status %d: %s", exitErr.ExitCode(), detail)
		} else {
			detail = err.Error()
		}
		return "", &domain.PipelineError{Stage: stage, Detail: strings.TrimSpace(detail), Err: cause}
	}

	return truncateOutput(stdout.String(), stdout.truncated), nil
}

// limitedBuffer is a bytes.Buffer that stops accepting writes after a limit.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (lb *limitedBuffer) Write(p []byte) (n int, err error) {
	if lb.truncated {
		return len(p), nil // discard silently
	}

	remaining := lb.limit - lb.buf.Len()
	if remaining <= 0 {
		lb.truncated = true
		return len(p), nil
	}

	if len(p) > remaining {
		lb.truncated = true
		lb.buf.Write(p[:remaining])
		return len(p), nil
	}

	return lb.buf.Write(p)
}

func (lb *limitedBuffer) String() string {
	return lb.buf.String()
}

// truncateOutput appends a truncation notice if the output was cut off.
func truncateOutput(s string, wasTruncated bool) string {
	if wasTruncated {
		return s + outputTruncatedMsg
	}
	return s
}

// lastLines keeps the tail of s, at most max bytes, cut on a line boundary
// when possible. Tool errors are printed last.
func lastLines(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	tail := s[len(s)-max:]
	if i := strings.IndexByte(tail, '\n'); i >= 0 && i < len(tail)-1 {
		tail = tail[i+1:]
	}
	return tail
}
