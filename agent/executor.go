package agent

import (
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"time"

	"github.com/Rival420/donwatcher/protocol"
)

// Executor runs delivered jobs locally under a timeout.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates an executor with the given per-job timeout.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Executor{timeout: timeout}
}

// Execute runs one job and returns the result to report. The error channel
// of Go itself is folded into the result: execution problems make a failed
// result, never an agent crash.
func (e *Executor) Execute(ctx context.Context, beaconID string, job protocol.JobDelivery) protocol.ResultRequest {
	res := protocol.ResultRequest{
		JobID:    job.ID,
		BeaconID: beaconID,
	}

	cmdCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := shellCommand(cmdCtx, job.Command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res.Output = stdout.String()
	exitCode := 0
	if err != nil {
		res.Status = "failed"
		res.Error = err.Error()
		if stderr.Len() > 0 {
			res.Error = stderr.String()
		}
		if cmdCtx.Err() == context.DeadlineExceeded {
			res.Error = "execution timed out"
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	} else {
		res.Status = "completed"
	}
	res.ExitCode = &exitCode
	return res
}

// shellCommand wraps the command line in the platform shell.
func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", command)
}
