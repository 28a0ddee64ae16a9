package grid

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SlurmClient submits jobs via sbatch and polls them via squeue/sacct,
// grounded on original_source's anadama/slurm.py and anadama2/grid/grid.py.
type SlurmClient struct {
	Partition   string
	Options     []string
	Environment []string
}

func (c *SlurmClient) SubmitCommand() string { return "sbatch" }

func (c *SlurmClient) SubmitTemplate(job *Job) []string {
	lines := []string{
		"#!/bin/bash",
		"#SBATCH -J ${job_name}",
		"#SBATCH -n ${cpus}",
		"#SBATCH -t ${time}",
		"#SBATCH --mem=${memory}",
		"#SBATCH -o ${output}",
		"#SBATCH -e ${error}",
	}
	partition := job.Resources.Partition
	if partition == "" {
		partition = c.Partition
	}
	if partition != "" {
		lines = append(lines, fmt.Sprintf("#SBATCH -p %s", partition))
	}
	for _, opt := range c.Options {
		lines = append(lines, "#SBATCH "+opt)
	}
	lines = append(lines, c.Environment...)
	return lines
}

func (c *SlurmClient) RefreshQueueStatus(ctx context.Context, schedJobID string) (string, error) {
	stdout, _, err := runSchedulerCommand(ctx, "squeue", "-h", "-j", schedJobID, "-o", "%T")
	if err != nil {
		// squeue returns a non-zero exit once the job has aged out of the
		// live queue; fall back to sacct for the terminal state.
		return c.terminalStatus(ctx, schedJobID)
	}
	status := strings.TrimSpace(string(stdout))
	if status == "" {
		return c.terminalStatus(ctx, schedJobID)
	}
	return status, nil
}

func (c *SlurmClient) terminalStatus(ctx context.Context, schedJobID string) (string, error) {
	stdout, _, err := runSchedulerCommand(ctx, "sacct", "-j", schedJobID, "-n", "-P", "--format=State")
	if err != nil {
		return "", fmt.Errorf("querying terminal status for job %s: %w", schedJobID, err)
	}
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return "", fmt.Errorf("no accounting record yet for job %s", schedJobID)
	}
	return strings.Fields(lines[0])[0], nil
}

var slurmFailedStates = map[string]bool{
	"FAILED": true, "CANCELLED": true, "NODE_FAIL": true, "BOOT_FAIL": true,
	"DEADLINE": true, "OUT_OF_MEMORY": true, "TIMEOUT": true,
}

var slurmStoppedStates = map[string]bool{
	"COMPLETED": true, "FAILED": true, "CANCELLED": true, "NODE_FAIL": true,
	"BOOT_FAIL": true, "DEADLINE": true, "OUT_OF_MEMORY": true, "TIMEOUT": true,
}

func (c *SlurmClient) JobFailed(status string) bool  { return slurmFailedStates[status] }
func (c *SlurmClient) JobStopped(status string) bool { return slurmStoppedStates[status] }

func (c *SlurmClient) JobTimeout(ctx context.Context, status, schedJobID string, wantedMin int) bool {
	return status == "TIMEOUT"
}

func (c *SlurmClient) JobMemkill(ctx context.Context, status, schedJobID string, wantedMB int) bool {
	return status == "OUT_OF_MEMORY"
}

func (c *SlurmClient) GetJobStatusFromStderr(stderr []byte) (string, bool) {
	s := string(stderr)
	switch {
	case strings.Contains(s, "DUE TO TIME LIMIT"):
		return "TIMEOUT", true
	case strings.Contains(s, "Exceeded job memory limit") || strings.Contains(s, "oom-kill"):
		return "OUT_OF_MEMORY", true
	default:
		return "", false
	}
}

func (c *SlurmClient) Benchmark(ctx context.Context, schedJobID string) (Benchmark, error) {
	stdout, _, err := runSchedulerCommandRetry(ctx, 2*time.Minute, "sacct", "-j", schedJobID,
		"-n", "-P", "--format=Elapsed,MaxRSS,NCPUS")
	if err != nil {
		return Benchmark{}, fmt.Errorf("fetching benchmark for job %s: %w", schedJobID, err)
	}
	fields := strings.Split(strings.TrimSpace(strings.Split(string(stdout), "\n")[0]), "|")
	if len(fields) < 3 {
		return Benchmark{}, fmt.Errorf("unexpected sacct output for job %s: %q", schedJobID, stdout)
	}
	return Benchmark{
		ElapsedSeconds: parseSlurmElapsed(fields[0]),
		PeakMemMB:      parseSlurmRSS(fields[1]),
		Cores:          atoiOr(fields[2], 1),
	}, nil
}

// parseSlurmElapsed parses sacct's [D-]HH:MM:SS elapsed format into seconds.
func parseSlurmElapsed(s string) int {
	s = strings.TrimSpace(s)
	var days int
	if idx := strings.Index(s, "-"); idx >= 0 {
		days = atoiOr(s[:idx], 0)
		s = s[idx+1:]
	}
	parts := strings.Split(s, ":")
	total := days * 24 * 3600
	mult := []int{3600, 60, 1}
	offset := len(mult) - len(parts)
	for i, p := range parts {
		total += atoiOr(p, 0) * mult[offset+i]
	}
	return total
}

// parseSlurmRSS parses sacct's MaxRSS column ("123456K", "512M", ...) into
// MiB.
func parseSlurmRSS(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	unit := s[len(s)-1]
	numPart := s
	var divisor, multiplier float64 = 1, 1
	switch unit {
	case 'K':
		numPart = s[:len(s)-1]
		divisor = 1024
	case 'M':
		numPart = s[:len(s)-1]
		multiplier = 1
	case 'G':
		numPart = s[:len(s)-1]
		multiplier = 1024
	}
	v, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0
	}
	return v * multiplier / divisor
}

func atoiOr(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}
