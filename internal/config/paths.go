package config

import (
	"errors"
	"os"
	"path/filepath"

	gap "github.com/muesli/go-app-paths"
)

// AppName names the config, data and cache directories.
const AppName = "storyfeed"

// ConfigFileName is the YAML settings file looked up in ConfigDirs.
const ConfigFileName = "storyfeed.yml"

var scope = gap.NewScope(gap.User, AppName)

// ConfigDirs lists where the settings file is searched, most specific
// first: STORYFEED_CONFIG_HOME, $XDG_CONFIG_HOME/storyfeed, then the
// platform defaults.
func ConfigDirs() []string {
	var dirs []string
	if c := os.Getenv("STORYFEED_CONFIG_HOME"); c != "" {
		dirs = append(dirs, c)
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append(dirs, filepath.Join(c, AppName))
	}
	if d, err := scope.ConfigDirs(); err == nil {
		dirs = append(dirs, d...)
	}
	return dirs
}

// DefaultConfigFile is where `storyfeed config` creates the settings file.
func DefaultConfigFile() (string, error) {
	if c := os.Getenv("STORYFEED_CONFIG_HOME"); c != "" {
		return filepath.Join(c, ConfigFileName), nil
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		return filepath.Join(c, AppName, ConfigFileName), nil
	}
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return "", err
	}
	if len(dirs) == 0 {
		return "", errors.New("no configuration directory")
	}
	return filepath.Join(dirs[0], ConfigFileName), nil
}

// DataPath returns name inside the user data directory.
func DataPath(name string) (string, error) {
	return scope.DataPath(name)
}

// CacheDir returns the user cache directory.
func CacheDir() (string, error) {
	return scope.CacheDir()
}

// LogPath returns the TUI log file.
func LogPath() (string, error) {
	return scope.LogPath(AppName + ".log")
}
