package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains the resolved locations of the host's files
type Paths struct {
	ExecutableDir string
	WebRoot       string
	EntryDocument string
	LogFile       string
}

// ResolvePaths resolves relative paths against the working directory first
// and the executable directory second, so the host runs from a source checkout
// as well as from an installed layout.
func (c *Config) ResolvePaths() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}
	exeDir := filepath.Dir(exe)

	webRoot := resolveAgainst(c.Web.Root, exeDir)

	return &Paths{
		ExecutableDir: exeDir,
		WebRoot:       webRoot,
		EntryDocument: filepath.Join(webRoot, c.Web.EntryDocument),
		LogFile:       resolveAgainst(c.Logging.FilePath, exeDir),
	}, nil
}

func resolveAgainst(path, exeDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if FileExists(path) {
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	return filepath.Join(exeDir, path)
}

// FileExists checks if a file or directory exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LogPathResolution logs the resolved paths for debugging
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	logger.Info("Resolved host paths",
		slog.String("executable_dir", p.ExecutableDir),
		slog.String("web_root", p.WebRoot),
		slog.Bool("web_root_exists", FileExists(p.WebRoot)),
		slog.String("entry_document", p.EntryDocument),
		slog.Bool("entry_document_exists", FileExists(p.EntryDocument)),
		slog.String("log_file", p.LogFile))
}
