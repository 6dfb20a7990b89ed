package config

import (
	"os"
	"path/filepath"
)

// AppName is used to derive the default base directory (~/.pykuang.d)
// and the file names beneath it.
const AppName = "pykuang"

// Paths resolves the well-known file and directory locations beneath a
// pykuang base directory, matching the layout in spec.md §6.
type Paths struct {
	Base string
}

// NewPaths returns a Paths rooted at base. If base is empty, it defaults
// to ~/.pykuang.d.
func NewPaths(base string) Paths {
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, "."+AppName+".d")
	}
	return Paths{Base: base}
}

// DB returns the path to the relational store file.
func (p Paths) DB() string { return filepath.Join(p.Base, AppName+".db") }

// CacheDir returns the path to the LMDB-style cache environment directory.
func (p Paths) CacheDir() string { return filepath.Join(p.Base, "cache", "lmdb") }

// CacheFile returns the path to the cache environment's database file
// within CacheDir.
func (p Paths) CacheFile() string { return filepath.Join(p.CacheDir(), "ipcache.db") }

// Log returns the path to the rotating log file.
func (p Paths) Log() string { return filepath.Join(p.Base, AppName+".log") }

// ConfigFile returns the path to the optional TOML config file.
func (p Paths) ConfigFile() string { return filepath.Join(p.Base, AppName+".toml") }

// EnsureDirs creates the base directory and the cache directory if they
// do not already exist.
func (p Paths) EnsureDirs() error {
	if err := os.MkdirAll(p.Base, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(p.CacheDir(), 0o755)
}
