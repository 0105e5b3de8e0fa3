// Package staging writes fetched chains under {dir}/.staging/{date} and moves a
// date into place only once it is complete, so the screener never reads a
// half-fetched day.
package staging

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/dgnsrekt/options-screener/internal/api"
	"github.com/dgnsrekt/options-screener/internal/data"
)

type Manager struct {
	baseDir     string
	stagingRoot string
	compress    bool
}

func NewManager(baseDir string, compress bool) *Manager {
	return &Manager{
		baseDir:     baseDir,
		stagingRoot: filepath.Join(baseDir, ".staging"),
		compress:    compress,
	}
}

func (m *Manager) FinalDir() string {
	return m.baseDir
}

func (m *Manager) StagingRoot() string {
	return m.stagingRoot
}

func (m *Manager) StagingDir(date string) string {
	return filepath.Join(m.stagingRoot, date)
}

// StagingPath is where a ticker's chain is written before commit.
func (m *Manager) StagingPath(date, ticker string) string {
	return filepath.Join(m.StagingDir(date), data.SnapshotName(ticker, m.compress))
}

func (m *Manager) PrepareStaging(date string) error {
	dir := m.StagingDir(date)
	return os.MkdirAll(dir, 0750)
}

// FetchToStaging streams a chain from client into the staging area, gzip
// compressed when the manager was created with compress. The returned size is
// the uncompressed byte count.
func (m *Manager) FetchToStaging(ctx context.Context, client api.Client, ticker, date string) (int64, error) {
	destPath := m.StagingPath(date, ticker)

	// Create parent directories
	if err := os.MkdirAll(filepath.Dir(destPath), 0750); err != nil {
		return 0, fmt.Errorf("creating directories: %w", err)
	}

	// Download to temp file
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}

	size, err := m.write(ctx, client, ticker, date, f)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("fetching chain: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("renaming temp file: %w", err)
	}

	return size, nil
}

func (m *Manager) write(ctx context.Context, client api.Client, ticker, date string, f *os.File) (int64, error) {
	buf := bufio.NewWriter(f)
	var w io.Writer = buf

	var zw *gzip.Writer
	if m.compress {
		zw = gzip.NewWriter(buf)
		w = zw
	}

	size, err := client.FetchChain(ctx, ticker, date, w)
	if err != nil {
		return 0, err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return 0, fmt.Errorf("closing gzip stream: %w", err)
		}
	}
	if err := buf.Flush(); err != nil {
		return 0, err
	}
	return size, nil
}

// CommitStaging moves every staged file for date into the final directory.
func (m *Manager) CommitStaging(date string) error {
	stagingDir := m.StagingDir(date)
	finalDir := filepath.Join(m.baseDir, date)

	// Walk staging and move files
	return filepath.Walk(stagingDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == stagingDir {
				return nil
			}
			return err
		}
		if info.IsDir() || filepath.Ext(path) == ".tmp" {
			return nil
		}

		relPath, err := filepath.Rel(stagingDir, path)
		if err != nil {
			return err
		}

		destPath := filepath.Join(finalDir, relPath)
		if err := os.MkdirAll(filepath.Dir(destPath), 0750); err != nil {
			return err
		}

		return os.Rename(path, destPath)
	})
}

func (m *Manager) CleanupStaging(date string) error {
	return os.RemoveAll(m.StagingDir(date))
}
