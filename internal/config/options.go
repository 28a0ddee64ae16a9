// Package config resolves Options for a run: defaults, then a global file,
// then a project file, then ANADAMA_* environment variables, the same
// precedence order the teacher's config.Load documents but implemented with
// viper instead of hand-merged JSON structs.
package config

import "time"

// Vars is the user-visible configuration bag threaded through to Run
// (spec.md §6, "vars").
type Vars struct {
	RunThemAll    bool   `mapstructure:"run_them_all"`
	QuitEarly     bool   `mapstructure:"quit_early"`
	NParallel     int    `mapstructure:"n_parallel"`
	NGridParallel int    `mapstructure:"n_grid_parallel"`
	UntilTask     string `mapstructure:"until_task"`
	DryRun        bool   `mapstructure:"dry_run"`
}

// Options is the fully resolved Workflow-construction configuration
// (spec.md §6, "Workflow construction").
type Options struct {
	StorageBackend string `mapstructure:"storage_backend"`
	Strict         bool   `mapstructure:"strict"`
	GridPowerup    string `mapstructure:"grid_powerup"`
	Vars           Vars   `mapstructure:"vars"`

	SubmitSleep  time.Duration `mapstructure:"submit_sleep"`
	CheckJobRate time.Duration `mapstructure:"check_job_rate"`
	RefreshRate  time.Duration `mapstructure:"refresh_rate"`
}

func defaults() Options {
	return Options{
		StorageBackend: "",
		Strict:         false,
		GridPowerup:    "",
		Vars: Vars{
			NParallel:     1,
			NGridParallel: 1,
		},
		SubmitSleep:  5 * time.Second,
		CheckJobRate: 60 * time.Second,
		RefreshRate:  600 * time.Second,
	}
}
