// Package tracked defines the capability interface that lets the DAG and
// change-tracker observe whether something a task depends on or produces
// has changed since the last successful run.
package tracked

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mitchellh/hashstructure/v2"
)

// Object is a value that can be fingerprinted for change detection.
//
// compare() returns a finite sequence of comparable tokens (mtime, size,
// checksum, literal value, ...) rather than a single hash, so a fingerprint
// backend can present a diff between runs if it wants to.
type Object interface {
	// Key returns a stable identity string for this object.
	Key() string

	// Compare returns the current comparable state of the object. The
	// tokens must be serializable (stdlib encoding/json safe types).
	Compare() ([]any, error)

	// Exists reports whether the referent is currently present.
	Exists() bool

	// MustPreexist is true when it is an error for this object not to
	// be produced by some task and not to already exist.
	MustPreexist() bool
}

// File is a tracked filesystem path. Its compare sequence is mtime and size;
// the exact hash/mtime logic is intentionally this shallow — richer content
// hashing is a concrete-kind concern outside this package's interface.
type File struct {
	Path string
}

func NewFile(path string) *File {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &File{Path: abs}
}

func (f *File) Key() string { return "file://" + f.Path }

func (f *File) Compare() ([]any, error) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", f.Path, err)
	}
	return []any{info.ModTime().UnixNano(), info.Size()}, nil
}

func (f *File) Exists() bool {
	_, err := os.Stat(f.Path)
	return err == nil
}

func (f *File) MustPreexist() bool { return true }

// Executable is a tracked binary resolved on PATH (or given as an absolute
// path). Used for binary tracking in Do and for AlreadyExists-registered
// interpreters/tools.
type Executable struct {
	Path string
}

// NewExecutable resolves name via exec.LookPath if it isn't already an
// absolute, existing path.
func NewExecutable(name string) (*Executable, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err == nil {
			return &Executable{Path: name}, nil
		}
	}
	resolved, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("executable %q not found on PATH: %w", name, err)
	}
	return &Executable{Path: resolved}, nil
}

func (e *Executable) Key() string { return "executable://" + e.Path }

func (e *Executable) Compare() ([]any, error) {
	info, err := os.Stat(e.Path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", e.Path, err)
	}
	return []any{info.ModTime().UnixNano(), info.Size()}, nil
}

func (e *Executable) Exists() bool {
	_, err := os.Stat(e.Path)
	return err == nil
}

func (e *Executable) MustPreexist() bool { return true }

// Literal is a literal string variable: its compare value is the string
// itself. Used directly by callers and synthesized by Do for command
// tracking (the stripped shell command becomes the literal value).
type Literal struct {
	Namespace string
	Name      string
	Value     string
}

func (l *Literal) Key() string { return "variable://" + l.Namespace + "/" + l.Name }

func (l *Literal) Compare() ([]any, error) {
	hash, err := hashstructure.Hash(l.Value, hashstructure.FormatV2, nil)
	if err != nil {
		return nil, fmt.Errorf("hashing literal %s: %w", l.Key(), err)
	}
	return []any{hash, l.Value}, nil
}

func (l *Literal) Exists() bool { return true }

func (l *Literal) MustPreexist() bool { return false }

// Function wraps a Go callable's identity for use as a dependency or
// target. Since Go has no stable function-value hash, identity is supplied
// by the caller as a name plus an explicit version/fingerprint string —
// this is the Go-idiomatic substitute for the original's pickled-closure
// identity tracking.
type Function struct {
	Name    string
	Version string
}

func (f *Function) Key() string { return "function://" + f.Name }

func (f *Function) Compare() ([]any, error) {
	return []any{f.Version}, nil
}

func (f *Function) Exists() bool { return true }

func (f *Function) MustPreexist() bool { return false }

// Directory is a tracked directory path; its compare sequence is the
// directory's own mtime (contents are not recursively hashed — that is a
// concrete-kind richness left to callers wrapping Directory).
type Directory struct {
	Path string
}

func NewDirectory(path string) *Directory {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &Directory{Path: abs}
}

func (d *Directory) Key() string { return "directory://" + d.Path }

func (d *Directory) Compare() ([]any, error) {
	info, err := os.Stat(d.Path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", d.Path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", d.Path)
	}
	return []any{info.ModTime().UnixNano()}, nil
}

func (d *Directory) Exists() bool {
	info, err := os.Stat(d.Path)
	return err == nil && info.IsDir()
}

func (d *Directory) MustPreexist() bool { return true }

// TaskAlias references another task's completion rather than a tracked
// value; it never appears in DependencyIndex and contributes no compare
// tokens — it only contributes a DAG edge.
type TaskAlias struct {
	TaskNo int
}

func (t *TaskAlias) Key() string { return fmt.Sprintf("task://%d", t.TaskNo) }

func (t *TaskAlias) Compare() ([]any, error) { return nil, nil }

func (t *TaskAlias) Exists() bool { return true }

func (t *TaskAlias) MustPreexist() bool { return false }

// IsTaskAlias reports whether o references an upstream task rather than a
// tracked value.
func IsTaskAlias(o Object) bool {
	_, ok := o.(*TaskAlias)
	return ok
}

// Auto coerces a bare string into a File and passes an existing Object
// through unchanged. AddTask and Do do not call it: AddTask takes Objects
// and Do builds its Files with NewFile.
func Auto(v any) (Object, error) {
	switch t := v.(type) {
	case Object:
		return t, nil
	case string:
		return NewFile(t), nil
	default:
		return nil, fmt.Errorf("don't know how to track value of type %T", v)
	}
}
