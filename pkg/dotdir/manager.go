// Package dotdir manages the .uistream/ and ~/.uistream directories, which
// hold config.toml and recorded streams.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the uistream directory.
	dirName = ".uistream"

	// recordingsDir holds raw streams captured with "uistream chat --record".
	recordingsDir = "recordings"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .uistream/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.uistream/ dir
//  3. Home ~/.uistream/ dir, created when missing
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating uistream directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// RecordingsDir returns the directory for recorded streams under the
// resolved target, creating it when missing.
func (m *Manager) RecordingsDir(overrideDir string) (string, error) {
	target, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(target, recordingsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating recordings directory %s: %w", dir, err)
	}

	return dir, nil
}

// localDirExists checks whether a .uistream/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
