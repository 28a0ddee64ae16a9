package grid

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// LSFClient submits jobs via bsub and polls them via bjobs/bacct, grounded
// on original_source's anadama2/grid/lsf.py.
type LSFClient struct {
	Queue       string
	Options     []string
	Environment []string

	// MemoryBufferMB mirrors LSFQueue.memory_buffer: jobs are considered
	// memkilled once usage comes within this many MiB of the requested
	// allocation (original default 1024).
	MemoryBufferMB float64
}

func (c *LSFClient) SubmitCommand() string { return "bsub" }

func (c *LSFClient) SubmitTemplate(job *Job) []string {
	lines := []string{
		"#!/bin/bash",
		"#BSUB -J ${job_name}",
		"#BSUB -n ${cpus}",
		"#BSUB -W ${time}",
		"#BSUB -R 'rusage[mem=${memory}MB]'",
		"#BSUB -o ${output}",
		"#BSUB -e ${error}",
	}
	queue := job.Resources.Partition
	if queue == "" {
		queue = c.Queue
	}
	if queue != "" {
		lines = append(lines, fmt.Sprintf("#BSUB -q %s", queue))
	}
	for _, opt := range c.Options {
		lines = append(lines, "#BSUB "+opt)
	}
	lines = append(lines, c.Environment...)
	return lines
}

func (c *LSFClient) RefreshQueueStatus(ctx context.Context, schedJobID string) (string, error) {
	stdout, _, err := runSchedulerCommand(ctx, "bjobs", "-noheader", "-o", "stat", schedJobID)
	if err != nil {
		return "", fmt.Errorf("querying status for job %s: %w", schedJobID, err)
	}
	status := strings.TrimSpace(string(stdout))
	if status == "" {
		return "", fmt.Errorf("no bjobs record for job %s", schedJobID)
	}
	return status, nil
}

var lsfFailedCodes = map[string]bool{"EXIT": true}
var lsfStoppedCodes = map[string]bool{"DONE": true, "EXIT": true}

func (c *LSFClient) JobFailed(status string) bool  { return lsfFailedCodes[status] }
func (c *LSFClient) JobStopped(status string) bool { return lsfStoppedCodes[status] }

// JobTimeout and JobMemkill in LSF (unlike SLURM) need the job's benchmark
// to distinguish a clean EXIT from a resource-exhaustion EXIT, per the
// original's job_timeout/job_memkill.
func (c *LSFClient) JobTimeout(ctx context.Context, status, schedJobID string, wantedMin int) bool {
	if status != "EXIT" {
		return false
	}
	b, err := c.Benchmark(ctx, schedJobID)
	if err != nil {
		return false
	}
	return b.ElapsedSeconds/60 > wantedMin
}

func (c *LSFClient) JobMemkill(ctx context.Context, status, schedJobID string, wantedMB int) bool {
	if status != "EXIT" {
		return false
	}
	b, err := c.Benchmark(ctx, schedJobID)
	if err != nil {
		return false
	}
	buffer := c.MemoryBufferMB
	if buffer == 0 {
		buffer = 1024
	}
	return b.PeakMemMB+buffer > float64(wantedMB)
}

func (c *LSFClient) GetJobStatusFromStderr(stderr []byte) (string, bool) {
	s := string(stderr)
	switch {
	case strings.Contains(s, "TERM_RUNLIMIT"):
		return "EXIT", true
	case strings.Contains(s, "TERM_MEMLIMIT"):
		return "EXIT", true
	default:
		return "", false
	}
}

func (c *LSFClient) Benchmark(ctx context.Context, schedJobID string) (Benchmark, error) {
	stdout, _, err := runSchedulerCommandRetry(ctx, 2*time.Minute, "bacct", "-l", schedJobID)
	if err != nil {
		return Benchmark{}, fmt.Errorf("fetching benchmark for job %s: %w", schedJobID, err)
	}
	return parseBacctOutput(string(stdout)), nil
}

// parseBacctOutput pulls CPU time and max memory out of `bacct -l`'s
// free-form text report; Cores is left zero. Accounting output not yet available
// (no "CPU_T" line) yields a zero Benchmark; the worker is responsible for
// the "wait one refresh interval and retry once" behavior in spec.md §4.5.
func parseBacctOutput(text string) Benchmark {
	var b Benchmark
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.Contains(line, "CPU_T"):
			fields := strings.Fields(line)
			for i, f := range fields {
				if strings.HasPrefix(f, "CPU_T") && i+2 < len(fields) {
					b.ElapsedSeconds = atoiOr(strings.TrimSuffix(fields[i+2], "sec"), 0)
				}
			}
		case strings.Contains(line, "MAX MEM"):
			fields := strings.Fields(line)
			for i, f := range fields {
				if f == "MEM:" && i+1 < len(fields) {
					b.PeakMemMB = parseSlurmRSS(fields[i+1])
				}
			}
		}
	}
	return b
}
