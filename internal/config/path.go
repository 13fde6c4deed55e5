package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns where the server keeps its store when no data dir is
// given. DISPATCH_DATA_DIR wins, then XDG_DATA_HOME, then an OS-conventional
// location, then ~/.dispatch. Without a home directory it falls back to ./data.
func DefaultDataDir() string {
	if v := os.Getenv("DISPATCH_DATA_DIR"); v != "" {
		return v
	}
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./data"
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "dispatch")
	}
	if isDir("/var/lib") && isWritable("/var/lib") {
		return "/var/lib/dispatch"
	}
	if isDir(filepath.Join(homeDir, "Library")) {
		return filepath.Join(homeDir, "Library", "Application Support", "dispatch")
	}
	if isDir(filepath.Join(homeDir, "AppData")) {
		return filepath.Join(homeDir, "AppData", "Local", "dispatch")
	}
	return filepath.Join(homeDir, ".dispatch")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isWritable(dir string) bool {
	f, err := os.CreateTemp(dir, ".dispatch-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
