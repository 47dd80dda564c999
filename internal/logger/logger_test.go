package logger

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := levelFromString(in); got != want {
			t.Errorf("levelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConfigFromEnvDevDefaultsToDebug(t *testing.T) {
	t.Setenv("LOG_DEV", "1")
	t.Setenv("LOG_LEVEL", "")

	cfg := ConfigFromEnv()
	if !cfg.Dev || cfg.Level != "debug" {
		t.Fatalf("got %+v", cfg)
	}
}

func TestInitWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cashback.log")

	log, err := Init(Config{Level: "info", File: path})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	log.Info("hello")
	_ = log.Sync()

	matches, _ := filepath.Glob(path + ".*")
	if len(matches) == 0 {
		t.Fatal("expected a rotated log file")
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("log file is empty")
	}
}
