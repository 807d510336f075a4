package monitor

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskMonitor_Usage(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "000001.vlog"), []byte("technician rows"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	m := NewDiskMonitor(tmpDir, 1<<30)
	usage, err := m.Usage()
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if usage < 15 {
		t.Errorf("Usage() = %d, want at least 15", usage)
	}
	if m.Limit() != 1<<30 {
		t.Errorf("Limit() = %d, want %d", m.Limit(), 1<<30)
	}
}

func TestDiskMonitor_Caching(t *testing.T) {
	tmpDir := t.TempDir()
	m := NewDiskMonitor(tmpDir, 0)

	first, err := m.Usage()
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "big"), make([]byte, 64*1024), 0644); err != nil {
		t.Fatal(err)
	}
	second, err := m.Usage()
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if first != second {
		t.Errorf("cached usage changed: %d != %d", first, second)
	}
}

func TestDiskMonitor_Exceeded(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "data"), make([]byte, 8192), 0644); err != nil {
		t.Fatal(err)
	}

	over, err := NewDiskMonitor(tmpDir, 100).Exceeded()
	if err != nil || !over {
		t.Errorf("Exceeded() = %v, %v; want true, nil", over, err)
	}
	over, err = NewDiskMonitor(tmpDir, 0).Exceeded()
	if err != nil || over {
		t.Errorf("Exceeded() without limit = %v, %v; want false, nil", over, err)
	}
}

func TestDiskMonitor_InvalidDir(t *testing.T) {
	m := NewDiskMonitor("/nonexistent/path/12345", 1<<30)
	if _, err := m.Usage(); err == nil {
		t.Error("Usage() should return error for nonexistent directory")
	}
}
