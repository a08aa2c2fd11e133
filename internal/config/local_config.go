package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LocalConfig is the subset of config.yaml read directly from disk, bypassing
// the viper singleton. Used when the CWD has changed since initialization or
// when config must be checked before Initialize runs.
type LocalConfig struct {
	SpecsDir string `yaml:"specs-dir"`
	Database string `yaml:"db"`
	GitHub   struct {
		BaseBranch string `yaml:"base-branch"`
	} `yaml:"github"`
	Git struct {
		ProtectedBranches []string `yaml:"protected-branches"`
	} `yaml:"git"`
}

// LoadLocalConfig reads and parses config.yaml from the given specsync
// directory. Returns an empty LocalConfig (not nil) if the file is missing or
// malformed.
func LoadLocalConfig(dir string) *LocalConfig {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	if err != nil {
		return &LocalConfig{}
	}

	var cfg LocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &LocalConfig{}
	}
	return &cfg
}

// WorkspaceLayout resolves the specs directory name and database filename for
// the workspace at the given specsync directory. Precedence: SPECSYNC_* env
// override, then the workspace's own config file read directly from disk,
// then the viper singleton, then the built-in default. The direct read keeps
// layout resolution tied to the workspace even before Initialize runs.
func WorkspaceLayout(dir string) (specsDir, database string) {
	local := LoadLocalConfig(dir)

	specsDir = os.Getenv("SPECSYNC_SPECS_DIR")
	if specsDir == "" {
		specsDir = local.SpecsDir
	}
	if specsDir == "" {
		specsDir = GetString(KeySpecsDir)
	}
	if specsDir == "" {
		specsDir = "specs"
	}

	database = os.Getenv("SPECSYNC_DB")
	if database == "" {
		database = local.Database
	}
	if database == "" {
		database = GetString(KeyDatabase)
	}
	if database == "" {
		database = "specsync.db"
	}
	return specsDir, database
}

// ProtectedBranchesWithEnv returns the protected-branch list with the
// SPECSYNC_PROTECTED_BRANCHES env override applied (comma-separated).
func ProtectedBranchesWithEnv() []string {
	if env := os.Getenv("SPECSYNC_PROTECTED_BRANCHES"); env != "" {
		var out []string
		for _, item := range strings.Split(env, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	}
	return GetStringSlice(KeyProtectedBranches)
}
