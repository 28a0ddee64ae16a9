package config

import (
	"testing"

	"github.com/spf13/afero"
)

func TestLoadDefaultsWithNoFiles(t *testing.T) {
	opts, err := Load(afero.NewMemMapFs(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if opts.Vars.NParallel != 1 || opts.Vars.NGridParallel != 1 {
		t.Fatalf("expected default parallelism of 1, got %+v", opts.Vars)
	}
	if opts.Strict {
		t.Fatal("expected strict to default false")
	}
}

func TestLoadMissingFilesAreNotAnError(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "/etc/anadama/config.yml", "anadama.yml")
	if err != nil {
		t.Fatalf("a missing config file should not be an error, got %v", err)
	}
}

func TestLoadProjectOverridesGlobal(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/global.yml", []byte("strict: true\nvars:\n  n_parallel: 2\n"), 0o644)
	afero.WriteFile(fs, "/project.yml", []byte("vars:\n  n_parallel: 8\n"), 0o644)

	opts, err := Load(fs, "/global.yml", "/project.yml")
	if err != nil {
		t.Fatal(err)
	}
	if !opts.Strict {
		t.Fatal("expected strict:true from the global file to survive since the project file doesn't set it")
	}
	if opts.Vars.NParallel != 8 {
		t.Fatalf("expected the project file's n_parallel to win over the global file's, got %d", opts.Vars.NParallel)
	}
}

func TestLoadEnvVarOverridesFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/project.yml", []byte("vars:\n  n_parallel: 8\n"), 0o644)
	t.Setenv("ANADAMA_VARS_N_PARALLEL", "16")

	opts, err := Load(fs, "", "/project.yml")
	if err != nil {
		t.Fatal(err)
	}
	if opts.Vars.NParallel != 16 {
		t.Fatalf("expected the environment variable to take highest precedence, got %d", opts.Vars.NParallel)
	}
}

func TestLoadMalformedFileIsAnError(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/project.yml", []byte("not: valid: yaml: ["), 0o644)
	if _, err := Load(fs, "", "/project.yml"); err == nil {
		t.Fatal("expected a malformed config file to produce an error")
	}
}

func TestLoadSubmitSleepDefault(t *testing.T) {
	opts, err := Load(afero.NewMemMapFs(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if opts.SubmitSleep.Seconds() != 5 {
		t.Fatalf("expected a 5s default submit_sleep, got %v", opts.SubmitSleep)
	}
}
