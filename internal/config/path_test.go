package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultDataDirXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != "/custom/data/farm" {
		t.Fatalf("got %s", got)
	}
}

func TestDefaultDataDirNoHome(t *testing.T) {
	t.Setenv("HOME", "")
	if got := DefaultDataDir(); got != "./data" {
		t.Fatalf("expected ./data without HOME, got %s", got)
	}
}

func TestDefaultDataDirShape(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	got := DefaultDataDir()
	if !filepath.IsAbs(got) && !strings.HasPrefix(got, "./") {
		t.Fatalf("want absolute or ./ path, got %s", got)
	}
	if base := strings.ToLower(filepath.Base(got)); base != "farm" && base != ".farm" && base != "data" {
		t.Fatalf("unexpected data dir %s", got)
	}
}

func TestIsDir(t *testing.T) {
	if !isDir(".") {
		t.Fatalf(". should be a dir")
	}
	if isDir("/non/existent/path") {
		t.Fatalf("missing path reported as dir")
	}
	if isDir(os.Args[0]) {
		t.Fatalf("test binary reported as dir")
	}
}
