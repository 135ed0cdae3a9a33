package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInit(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")

	err := Init(Config{
		Debug:     false,
		ConfigDir: configDir,
	})
	if err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	logDir := filepath.Join(configDir, "logs")
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		t.Errorf("Log directory was not created: %s", logDir)
	}

	if Logger == nil {
		t.Error("Logger is nil after initialization")
	}

	Debug("Test debug message")
	Info("Test info message")
	Warn("Test warning message")
	Error("Test error message")
}

func TestWarnWritesToFile(t *testing.T) {
	configDir := t.TempDir()

	if err := Init(Config{ConfigDir: configDir}); err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	Warn("write discarded", "id", "w-1")
	Debug("should be filtered")

	data, err := os.ReadFile(filepath.Join(configDir, "logs", "habitsync.log"))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "write discarded") {
		t.Errorf("expected warning in log file, got %q", content)
	}
	if strings.Contains(content, "should be filtered") {
		t.Error("debug message should not be written at warn level")
	}
}

func TestWithBeforeInit(t *testing.T) {
	saved := Logger
	Logger = nil
	defer func() { Logger = saved }()

	l := With("sync")
	if l == nil {
		t.Fatal("With must never return nil")
	}
	l.Info("discarded")
}

func TestNilLoggerHelpers(t *testing.T) {
	saved := Logger
	Logger = nil
	defer func() { Logger = saved }()

	// Should not panic
	Debug("x")
	Info("x")
	Warn("x")
	Error("x")
}
