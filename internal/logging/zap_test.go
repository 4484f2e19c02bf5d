package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (*ZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return New(zap.New(core)), logs
}

func TestInfoRecordsKeyValuePairs(t *testing.T) {
	logger, logs := newObserved()

	logger.Info("call started", "call_id", "abc123", "state", "listening")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Message != "call started" {
		t.Fatalf("unexpected message %q", entry.Message)
	}
	fields := entry.ContextMap()
	if fields["call_id"] != "abc123" || fields["state"] != "listening" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestErrorIsLoggedAtErrorLevel(t *testing.T) {
	logger, logs := newObserved()

	logger.Error("tts failed", "error", "connection reset")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected error level, got %v", entries[0].Level)
	}
}

func TestWarnAndDebugLevels(t *testing.T) {
	logger, logs := newObserved()

	logger.Warn("playout buffer low")
	logger.Debug("vad frame processed", "energy", 42)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level, got %v", entries[0].Level)
	}
	if entries[1].Level != zapcore.DebugLevel {
		t.Fatalf("expected debug level, got %v", entries[1].Level)
	}
}
