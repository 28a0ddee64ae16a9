package config

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix viper.AutomaticEnv uses for override variables
// (e.g. ANADAMA_VARS_N_PARALLEL).
const EnvPrefix = "ANADAMA"

// Load resolves Options from defaults, then globalPath, then projectPath,
// then ANADAMA_* environment variables (highest precedence), matching the
// teacher's documented precedence order. Either path may be empty; a
// missing file at a given path is not an error, a malformed one is. fs lets
// callers substitute an afero.MemMapFs in tests.
func Load(fs afero.Fs, globalPath, projectPath string) (*Options, error) {
	v := viper.New()
	v.SetFs(fs)

	d := defaults()
	v.SetDefault("storage_backend", d.StorageBackend)
	v.SetDefault("strict", d.Strict)
	v.SetDefault("grid_powerup", d.GridPowerup)
	v.SetDefault("vars.run_them_all", d.Vars.RunThemAll)
	v.SetDefault("vars.quit_early", d.Vars.QuitEarly)
	v.SetDefault("vars.n_parallel", d.Vars.NParallel)
	v.SetDefault("vars.n_grid_parallel", d.Vars.NGridParallel)
	v.SetDefault("vars.until_task", d.Vars.UntilTask)
	v.SetDefault("vars.dry_run", d.Vars.DryRun)
	v.SetDefault("submit_sleep", d.SubmitSleep)
	v.SetDefault("check_job_rate", d.CheckJobRate)
	v.SetDefault("refresh_rate", d.RefreshRate)

	for _, path := range []string{globalPath, projectPath} {
		if path == "" {
			continue
		}
		if err := mergeFile(v, fs, path); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	return &opts, nil
}

func mergeFile(v *viper.Viper, fs afero.Fs, path string) error {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return fmt.Errorf("checking config file %s: %w", path, err)
	}
	if !exists {
		return nil
	}

	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}
