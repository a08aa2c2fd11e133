// Package config loads specsync configuration from .specsync/config.yaml
// with SPECSYNC_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DirName is the per-project directory holding config, database, and specs.
const DirName = ".specsync"

// ConfigFileName is the YAML config file inside DirName.
const ConfigFileName = "config.yaml"

// Well-known configuration keys.
const (
	KeyGitHubToken       = "github.token"
	KeyGitHubOwner       = "github.owner"
	KeyGitHubRepo        = "github.repo"
	KeyGitHubAPIURL      = "github.api-url"
	KeyBaseBranch        = "github.base-branch"
	KeyReleaseBranch     = "github.release-branch"
	KeyProjectID         = "github.project-id"
	KeyProtectedBranches = "git.protected-branches"
	KeySpecsDir          = "specs-dir"
	KeyDatabase          = "db"
	KeyWatchDebounce     = "watch.debounce"
)

// v is the process-wide viper instance. Nil until Initialize succeeds; all
// getters are nil-safe so callers before init see zero values, not panics.
var v *viper.Viper

// Initialize loads config.yaml from the given specsync directory. Missing
// files are not an error: env vars and defaults still apply.
func Initialize(dir string) error {
	nv := viper.New()
	nv.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
	nv.SetConfigType("yaml")
	nv.AddConfigPath(dir)

	nv.SetEnvPrefix("SPECSYNC")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	nv.AutomaticEnv()

	nv.SetDefault(KeySpecsDir, "specs")
	nv.SetDefault(KeyDatabase, "specsync.db")
	nv.SetDefault(KeyGitHubAPIURL, "https://api.github.com")
	nv.SetDefault(KeyWatchDebounce, 2*time.Second)

	if err := nv.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errorsAs(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	v = nv
	return nil
}

// errorsAs is a tiny wrapper so the viper not-found check reads cleanly.
func errorsAs(err error, target *viper.ConfigFileNotFoundError) bool {
	if e, ok := err.(viper.ConfigFileNotFoundError); ok {
		*target = e
		return true
	}
	return false
}

// GetString returns the string value for key, or "" before initialization.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool returns the bool value for key, or false before initialization.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt returns the int value for key, or 0 before initialization.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration returns the duration value for key, or 0 before initialization.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice returns the list value for key, or nil before initialization.
func GetStringSlice(key string) []string {
	if v == nil {
		return nil
	}
	return v.GetStringSlice(key)
}

// Set overrides a value in the live config (used by tests and flag binding).
func Set(key string, value interface{}) {
	if v == nil {
		v = viper.New()
	}
	v.Set(key, value)
}

// Reset discards the live config. Tests use this for isolation.
func Reset() {
	v = nil
}

// FindDir walks up from startDir looking for a .specsync directory. Returns
// the directory path, or "" if none is found before the filesystem root.
func FindDir(startDir string) string {
	dir := startDir
	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
