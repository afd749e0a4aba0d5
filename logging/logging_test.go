package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteRotatesPastCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")

	lf, err := Open(path, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer lf.Close()

	line := bytes.Repeat([]byte("x"), 50)
	for i := 0; i < 3; i++ {
		if _, err := lf.Write(line); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	backup, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("no backup after rotation: %v", err)
	}
	if len(backup) == 0 {
		t.Error("backup is empty")
	}
	live, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read live file: %v", err)
	}
	if len(live) >= len(backup) {
		t.Errorf("live file not reset: %d bytes", len(live))
	}
}

func TestOpenRollsOversizeLeftover(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.log")
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), 100), 0644); err != nil {
		t.Fatal(err)
	}

	lf, err := Open(path, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer lf.Close()

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("oversize leftover not rolled to backup: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("live file missing: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("live file carries %d leftover bytes", info.Size())
	}
}
