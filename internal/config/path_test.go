package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultDataDir(t *testing.T) {
	t.Run("explicit override", func(t *testing.T) {
		t.Setenv("DISPATCH_DATA_DIR", "/srv/dispatch")
		if got := DefaultDataDir(); got != "/srv/dispatch" {
			t.Fatalf("got %s", got)
		}
	})
	t.Run("xdg", func(t *testing.T) {
		t.Setenv("DISPATCH_DATA_DIR", "")
		t.Setenv("XDG_DATA_HOME", "/custom/data")
		if got := DefaultDataDir(); got != "/custom/data/dispatch" {
			t.Fatalf("got %s", got)
		}
	})
	t.Run("no home", func(t *testing.T) {
		t.Setenv("DISPATCH_DATA_DIR", "")
		t.Setenv("HOME", "")
		if got := DefaultDataDir(); got != "./data" {
			t.Fatalf("got %s", got)
		}
	})
	t.Run("fallback shape", func(t *testing.T) {
		t.Setenv("DISPATCH_DATA_DIR", "")
		t.Setenv("XDG_DATA_HOME", "")
		got := DefaultDataDir()
		if !filepath.IsAbs(got) && !strings.HasPrefix(got, "./") {
			t.Fatalf("expected absolute or ./ path, got %s", got)
		}
		if !strings.HasSuffix(strings.ToLower(got), "dispatch") && got != "./data" {
			t.Fatalf("unexpected path %s", got)
		}
	})
}

func TestIsDir(t *testing.T) {
	cases := map[string]bool{
		".":                      true,
		"/non/existent/path/xyz": false,
		os.Args[0]:               false,
	}
	for path, want := range cases {
		if got := isDir(path); got != want {
			t.Fatalf("isDir(%s) = %v, want %v", path, got, want)
		}
	}
}
