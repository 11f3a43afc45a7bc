// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/hashicorp/go-foundry/components"
)

// configNames are the file names probed for a project configuration, in
// order of preference.
var configNames = []string{"foundry.yaml", "foundry.yml"}

// maxUpwardSearchLevels limits how far up the directory tree the loader
// searches for a config file.
const maxUpwardSearchLevels = 10

// configIn returns the path of the config file in dir, or "".
func configIn(dir string) string {
	for _, name := range configNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findProjectDir searches upward from startDir for a directory holding a
// config file. Returns "" if none is found.
func findProjectDir(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configIn(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// resolveProjectDir determines the project directory. An explicit
// --project-dir flag wins; otherwise the config file's directory is used
// when one was named; otherwise the loader searches upward from the
// working directory and falls back to it.
func resolveProjectDir(cfgFile string, flags *pflag.FlagSet) (string, error) {
	if flags != nil && flags.Changed("project-dir") {
		if dir, _ := flags.GetString("project-dir"); dir != "" {
			return filepath.Abs(dir)
		}
	}
	if cfgFile != "" {
		abs, err := filepath.Abs(cfgFile)
		if err != nil {
			return "", err
		}
		return filepath.Dir(abs), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("cannot determine working directory: %w", err)
	}
	if dir := findProjectDir(cwd); dir != "" {
		return dir, nil
	}
	return cwd, nil
}

// Load reads project configuration in increasing precedence order:
// built-in defaults, the project's config file, FOUNDRY_* environment
// variables, then explicitly set command-line flags.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	projectDir, err := resolveProjectDir(cfgFile, flags)
	if err != nil {
		return nil, err
	}

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"environment": DefaultEnvironment,
		"runtime":     components.DefaultRuntime,
		"work_dir":    components.DefaultWorkDir,
		"output":      DefaultOutput,
		"verbose":     false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		cfgFile = configIn(projectDir)
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	if err := k.Load(env.Provider("FOUNDRY_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "FOUNDRY_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectDir = projectDir
	cfg.ConfigFile = cfgFile
	return &cfg, nil
}
