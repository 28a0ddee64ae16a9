package grid

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// runSchedulerCommand runs one scheduler CLI invocation (sbatch, squeue,
// sacct, bsub, bjobs, ...), draining stdout/stderr concurrently before
// cmd.Wait() so a chatty scheduler client can't deadlock the pipe (same
// pattern as the local worker's process helper, duplicated here because it
// is package-private).
func runSchedulerCommand(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting %s: %w", name, err)
	}

	var wg sync.WaitGroup
	var outBuf, errBuf bytes.Buffer
	wg.Add(2)
	go func() { defer wg.Done(); io.Copy(&outBuf, stdoutPipe) }()
	go func() { defer wg.Done(); io.Copy(&errBuf, stderrPipe) }()
	wg.Wait()

	waitErr := cmd.Wait()
	stdout, stderr = outBuf.Bytes(), errBuf.Bytes()
	if waitErr != nil {
		return stdout, stderr, fmt.Errorf("%s failed: %w", name, waitErr)
	}
	return stdout, stderr, nil
}

// runSchedulerCommandRetry wraps runSchedulerCommand in an exponential
// backoff, for the scheduler-rate-limit/transient-failure retry behavior
// described in spec.md §7.
func runSchedulerCommandRetry(ctx context.Context, maxElapsed time.Duration, name string, args ...string) (stdout, stderr []byte, err error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxElapsed
	policyWithCtx := backoff.WithContext(policy, ctx)

	op := func() error {
		var opErr error
		stdout, stderr, opErr = runSchedulerCommand(ctx, name, args...)
		return opErr
	}

	if err := backoff.Retry(op, policyWithCtx); err != nil {
		return stdout, stderr, err
	}
	return stdout, stderr, nil
}
