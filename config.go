package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// getProjectStateFolder returns the per-project directory holding the result
// index, creating it on first use
func getProjectStateFolder(projectRoot string) (string, error) {
	configDir, err := getUserConfigDir()
	if err != nil {
		return "", err
	}

	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project path: %w", err)
	}

	projectSlug := strings.NewReplacer("/", "_", ":", "_", "\\", "_").Replace(absRoot)

	expectedDir := filepath.Join(configDir, "quack", projectSlug)

	if err := os.MkdirAll(expectedDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	return expectedDir, nil
}

func getUserConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		usr, err := user.Current()
		if err != nil {
			return "", fmt.Errorf("failed to get current user: %w", err)
		}
		return filepath.Join(usr.HomeDir, ".config"), nil
	}
	return configDir, nil
}
