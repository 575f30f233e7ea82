package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath names an explicit config file
	EnvConfigPath = "ORGCHART_CONFIG"
	// ConfigFileName is looked up in the working directory
	ConfigFileName = "orgchart.yaml"
	// ConfigDirName is the directory under the XDG and system config roots
	ConfigDirName = "orgchart"
)

// localNames are accepted in the working directory, in this order
var localNames = []string{ConfigFileName, "orgchart.yml", ".orgchart.yaml"}

// SearchPaths lists the config candidates from highest to lowest priority:
// $ORGCHART_CONFIG, the working directory, $XDG_CONFIG_HOME/orgchart,
// ~/.config/orgchart and /etc/orgchart. Unset variables contribute nothing.
func SearchPaths() []string {
	var paths []string
	if path := os.Getenv(EnvConfigPath); path != "" {
		paths = append(paths, path)
	}
	paths = append(paths, localNames...)
	for _, dir := range configDirs() {
		paths = append(paths, filepath.Join(dir, "config.yaml"), filepath.Join(dir, "config.yml"))
	}
	return paths
}

// FindConfigPath returns the first search path naming a regular file, made
// absolute when it was relative. It returns "" when nothing is found.
func FindConfigPath() string {
	for _, path := range SearchPaths() {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	return ""
}

func configDirs() []string {
	var dirs []string
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		dirs = append(dirs, filepath.Join(xdgHome, ConfigDirName))
	}
	if home := os.Getenv("HOME"); home != "" {
		dirs = append(dirs, filepath.Join(home, ".config", ConfigDirName))
	}
	return append(dirs, filepath.Join("/etc", ConfigDirName))
}

func ensureDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}
