package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLatestFile(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)

	write := func(name string, ts time.Time) {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if err := os.Chtimes(path, ts, ts); err != nil {
			t.Fatalf("chtimes %s: %v", name, err)
		}
	}
	write("old.csv", base)
	write("new.csv", base.Add(time.Minute))
	write("newest.txt", base.Add(2*time.Minute))

	got, err := LatestFile(dir, ".csv")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if filepath.Base(got) != "new.csv" {
		t.Fatalf("expected new.csv, got %s", got)
	}
}

func TestLatestFileNone(t *testing.T) {
	got, err := LatestFile(t.TempDir(), ".csv")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty path, got %q", got)
	}
}

func TestAppendLineCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.txt")

	if err := AppendLine(path, "first"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := AppendLine(path, "second"); err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || lines[0] != "first" || lines[1] != "second" {
		t.Fatalf("unexpected content %q", string(data))
	}
}
