// Package config provides configuration management for rescale-qr.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// ConfigDirectory returns the directory holding config.csv and servers files.
//
// Locations:
//   - Windows: %LOCALAPPDATA%\Rescale\QR
//   - Unix: ~/.config/rescale-qr
func ConfigDirectory() string {
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), "rescale-qr")
			}
			localAppData = filepath.Join(homeDir, "AppData", "Local")
		}
		return filepath.Join(localAppData, "Rescale", "QR")
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "rescale-qr")
		}
		return filepath.Join(homeDir, ".config", "rescale-qr")
	}
	return filepath.Join(configDir, "rescale-qr")
}

// GetDefaultConfigPath returns the default config.csv location.
func GetDefaultConfigPath() string {
	return filepath.Join(ConfigDirectory(), "config.csv")
}

// GetDefaultServersPath returns the default server list location.
func GetDefaultServersPath() string {
	return filepath.Join(ConfigDirectory(), "servers.csv")
}

// GetDefaultDestinationPath returns the default directory for retrieved studies.
func GetDefaultDestinationPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "rescale-qr-studies")
	}
	return filepath.Join(homeDir, "rescale-qr", "studies")
}
