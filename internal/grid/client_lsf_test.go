package grid

import (
	"strings"
	"testing"
)

func TestLSFClientSubmitTemplateIncludesQueue(t *testing.T) {
	c := &LSFClient{Queue: "short"}
	job := &Job{Resources: Resources{Cores: 2, TimeMin: 30, MemMB: 4096}}
	lines := c.SubmitTemplate(job)
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "#BSUB -q short") {
		t.Fatalf("expected queue header line, got:\n%s", joined)
	}
	if !strings.Contains(joined, "rusage[mem=${memory}MB]") {
		t.Fatalf("expected an rusage memory placeholder, got:\n%s", joined)
	}
}

func TestLSFClientJobClassification(t *testing.T) {
	c := &LSFClient{}
	if !c.JobFailed("EXIT") {
		t.Fatal("expected EXIT to classify as failed")
	}
	if c.JobFailed("DONE") {
		t.Fatal("expected DONE not to classify as failed")
	}
	if !c.JobStopped("DONE") || !c.JobStopped("EXIT") {
		t.Fatal("expected DONE and EXIT to both classify as stopped")
	}
}

func TestLSFClientGetJobStatusFromStderr(t *testing.T) {
	c := &LSFClient{}
	if status, ok := c.GetJobStatusFromStderr([]byte("TERM_RUNLIMIT: job killed after reaching LSF run time limit")); !ok || status != "EXIT" {
		t.Fatalf("expected EXIT detected from TERM_RUNLIMIT stderr, got (%q, %v)", status, ok)
	}
	if status, ok := c.GetJobStatusFromStderr([]byte("TERM_MEMLIMIT: job killed after reaching LSF memory usage limit")); !ok || status != "EXIT" {
		t.Fatalf("expected EXIT detected from TERM_MEMLIMIT stderr, got (%q, %v)", status, ok)
	}
	if _, ok := c.GetJobStatusFromStderr([]byte("nothing relevant")); ok {
		t.Fatal("expected no status detected from unrelated stderr")
	}
}

func TestParseBacctOutput(t *testing.T) {
	text := "CPU_T is 120sec\nMAX MEM: 512M\n"
	b := parseBacctOutput(text)
	if b.ElapsedSeconds != 120 {
		t.Fatalf("expected ElapsedSeconds=120, got %d", b.ElapsedSeconds)
	}
	if b.PeakMemMB != 512 {
		t.Fatalf("expected PeakMemMB=512, got %v", b.PeakMemMB)
	}
}

func TestParseBacctOutputEmptyWhenNoAccountingYet(t *testing.T) {
	b := parseBacctOutput("Job <123> is not found\n")
	if b.ElapsedSeconds != 0 || b.PeakMemMB != 0 {
		t.Fatalf("expected a zero Benchmark when no accounting line is present, got %+v", b)
	}
}
