package logger

import (
	"path/filepath"
	"testing"
)

func TestInitRejectsBadLevel(t *testing.T) {
	if err := Init("nope", "json", "stdout"); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	if err := Init("debug", "json", path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Info("hello")
	Sync()
}

func TestInitStdout(t *testing.T) {
	if err := Init("info", "console", "stdout"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if GetLogger() == nil {
		t.Fatal("GetLogger returned nil")
	}
}
