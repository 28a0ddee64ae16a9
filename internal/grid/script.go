package grid

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/anadama/anadama/internal/dag"
)

// scriptPaths are the three sibling files every grid script writes
// (spec.md §4.5, "Submission pipeline" step 1).
type scriptPaths struct {
	Script, Stdout, Stderr, RC string
}

// newScriptPaths names each submission attempt's sibling files with a
// random suffix (github.com/google/uuid) so a resubmission never collides
// with the previous attempt's still-draining rc/stdout/stderr files --
// the Go-idiomatic replacement for the original's tempfile.mkstemp.
func newScriptPaths(dir string, taskNo, tries int) scriptPaths {
	base := filepath.Join(dir, fmt.Sprintf("anadama_job_%d_try%d_%s", taskNo, tries, uuid.NewString()[:8]))
	return scriptPaths{
		Script: base + ".sh",
		Stdout: base + ".stdout",
		Stderr: base + ".stderr",
		RC:     base + ".rc",
	}
}

// headerData feeds a Client's SubmitTemplate lines through text/template so
// a scheduler's header can reference ${cpus}, ${time}, ${memory}, etc. the
// way the original's string.Template-based create_grid_script did.
type headerData struct {
	JobName string
	CPUs    int
	Time    string // D-HH:MM:SS
	Memory  int    // MiB
	Output  string
	Error   string
}

func formatWallTime(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	days := minutes / (24 * 60)
	minutes -= days * 24 * 60
	hours := minutes / 60
	minutes -= hours * 60
	return fmt.Sprintf("%d-%02d:%02d:00", days, hours, minutes)
}

// buildScript renders the scheduler header (via client.SubmitTemplate),
// the action body, and the rc-capturing trailer described in spec.md §6
// ("Grid submission files"), and writes it to fs at the paths returned.
func buildScript(fs afero.Fs, dir string, t *dag.Task, job *Job, client Client) (scriptPaths, error) {
	paths := newScriptPaths(dir, t.TaskNo, job.Tries)

	data := headerData{
		JobName: "anadama_job",
		CPUs:    job.Resources.Cores,
		Time:    formatWallTime(job.Resources.TimeMin),
		Memory:  job.Resources.MemMB,
		Output:  paths.Stdout,
		Error:   paths.Stderr,
	}

	var buf bytes.Buffer
	for _, line := range client.SubmitTemplate(job) {
		rendered, err := renderHeaderLine(line, data)
		if err != nil {
			return scriptPaths{}, fmt.Errorf("rendering header line %q: %w", line, err)
		}
		buf.WriteString(rendered)
		buf.WriteByte('\n')
	}
	for _, flag := range job.Resources.ExtraFlags {
		buf.WriteString(flag)
		buf.WriteByte('\n')
	}

	buf.WriteString("\nset +e\n")
	for _, action := range t.Actions {
		if action.IsCallable() {
			return scriptPaths{}, fmt.Errorf("task %q: callable actions cannot be shipped to a grid node", t.Name)
		}
		buf.WriteString(action.Command)
		buf.WriteByte('\n')
	}
	buf.WriteString(fmt.Sprintf("echo $? > %s\n", paths.RC))

	if err := afero.WriteFile(fs, paths.Script, buf.Bytes(), 0o755); err != nil {
		return scriptPaths{}, fmt.Errorf("writing grid script: %w", err)
	}
	return paths, nil
}

func renderHeaderLine(line string, data headerData) (string, error) {
	// The original templates use ${name} placeholders; text/template wants
	// {{.Name}}, so translate the small fixed vocabulary of placeholders
	// this package's Client implementations actually emit.
	replacer := strings.NewReplacer(
		"${cpus}", "{{.CPUs}}",
		"${time}", "{{.Time}}",
		"${memory}", "{{.Memory}}",
		"${output}", "{{.Output}}",
		"${error}", "{{.Error}}",
		"${job_name}", "{{.JobName}}",
	)
	tmplSrc := replacer.Replace(line)

	tmpl, err := template.New("header").Parse(tmplSrc)
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := tmpl.Execute(&out, data); err != nil {
		return "", err
	}
	return out.String(), nil
}
