// Package home locates the atheneum home directory and the files that
// live inside it.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the atheneum home directory.
	DefaultDirName = ".atheneum"

	// DatabaseFileName is the SQLite catalog database.
	DatabaseFileName = "atheneum.db"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// DownloadsDirName holds book files fetched by extraction jobs before
	// they are pushed to object storage.
	DownloadsDirName = "downloads"
)

// Dir represents the atheneum home directory structure.
type Dir struct {
	path string
}

// New creates a Dir with the given path. An empty path resolves to
// ~/.atheneum.
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}
	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// DatabasePath returns the path to the SQLite catalog database.
func (d *Dir) DatabasePath() string {
	return filepath.Join(d.path, DatabaseFileName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// DownloadsPath returns the staging directory for fetched book files.
func (d *Dir) DownloadsPath() string {
	return filepath.Join(d.path, DownloadsDirName)
}

// JobDownloadsPath returns the staging directory for one extraction job.
func (d *Dir) JobDownloadsPath(jobID string) string {
	return filepath.Join(d.DownloadsPath(), jobID)
}

// EnsureExists creates the home directory and its subdirectories.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.DownloadsPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create downloads directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
