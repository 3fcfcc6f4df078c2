// Package configpaths resolves where padbridge looks for configuration files.
package configpaths

import (
	"os"
	"path/filepath"
	"strings"
)

const appDir = "padbridge"

// DefaultConfigDir returns the per-user configuration directory.
func DefaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDir), nil
}

// ConfigCandidatePaths returns the config files to try, grouped by format.
// An explicit userCfg is tried first; its extension decides the group, and
// an unknown extension is treated as JSON. The user config dir and the
// working directory follow.
func ConfigCandidatePaths(userCfg string) (jsonPaths, yamlPaths, tomlPaths []string) {
	if userCfg != "" {
		switch strings.ToLower(filepath.Ext(userCfg)) {
		case ".yaml", ".yml":
			yamlPaths = append(yamlPaths, userCfg)
		case ".toml":
			tomlPaths = append(tomlPaths, userCfg)
		default:
			jsonPaths = append(jsonPaths, userCfg)
		}
	}

	var dirs []string
	if dir, err := DefaultConfigDir(); err == nil {
		dirs = append(dirs, dir)
	}
	dirs = append(dirs, ".")
	for _, dir := range dirs {
		jsonPaths = append(jsonPaths, filepath.Join(dir, "config.json"))
		yamlPaths = append(yamlPaths, filepath.Join(dir, "config.yaml"), filepath.Join(dir, "config.yml"))
		tomlPaths = append(tomlPaths, filepath.Join(dir, "config.toml"))
	}
	return jsonPaths, yamlPaths, tomlPaths
}
