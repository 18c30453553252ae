package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - FIMON_CONFIG_PATH: config file location (default: ~/.config/fimon.toml)
//   - FIMON_HOME: base directory for fimon data (default: ~/.local/share/fimon)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking FIMON_CONFIG_PATH env var first,
// then falling back to the default ~/.config/fimon.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("FIMON_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "fimon.toml"), nil
}

// getBaseDir returns the base directory for fimon data, checking FIMON_HOME env var first,
// then falling back to the XDG default ~/.local/share/fimon.
func getBaseDir() (string, error) {
	if path := os.Getenv("FIMON_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "fimon"), nil
}
