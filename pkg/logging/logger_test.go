// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"  info  ", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"garbage", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewFileLogging(t *testing.T) {
	t.Run("writes JSON entries to the dated file", func(t *testing.T) {
		dir := t.TempDir()
		logger, err := New(Config{
			Level:   LevelDebug,
			LogDir:  dir,
			Service: "indexer",
			Quiet:   true,
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		logger.Info("indexing started", "base_path", "/repo")
		logger.Debug("chunked file", "chunks", 3)
		if err := logger.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		path := filepath.Join(dir, fmt.Sprintf("indexer_%s.log", time.Now().Format("2006-01-02")))
		f, err := os.Open(path)
		if err != nil {
			t.Fatalf("log file missing: %v", err)
		}
		defer f.Close()

		var entries []map[string]any
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var entry map[string]any
			if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
				t.Fatalf("line is not JSON: %q", scanner.Text())
			}
			entries = append(entries, entry)
		}
		if len(entries) != 2 {
			t.Fatalf("got %d entries, want 2", len(entries))
		}
		if entries[0]["msg"] != "indexing started" || entries[0]["service"] != "indexer" {
			t.Errorf("first entry = %v", entries[0])
		}
		if entries[0]["base_path"] != "/repo" {
			t.Errorf("missing attribute: %v", entries[0])
		}
	})

	t.Run("creates missing log directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "logs")
		logger, err := New(Config{LogDir: dir, Service: "indexer", Quiet: true})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer logger.Close()

		if _, err := os.Stat(dir); err != nil {
			t.Errorf("directory not created: %v", err)
		}
	})

	t.Run("unwritable directory fails", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		parent := t.TempDir()
		if err := os.Chmod(parent, 0o500); err != nil {
			t.Fatal(err)
		}
		defer os.Chmod(parent, 0o750)

		_, err := New(Config{LogDir: filepath.Join(parent, "logs"), Quiet: true})
		if err == nil {
			t.Error("expected an error for unwritable log directory")
		}
	})

	t.Run("defaults service name for the file", func(t *testing.T) {
		dir := t.TempDir()
		logger, err := New(Config{LogDir: dir, Quiet: true})
		if err != nil {
			t.Fatal(err)
		}
		logger.Info("hello")
		logger.Close()

		path := filepath.Join(dir, fmt.Sprintf("fawkes_%s.log", time.Now().Format("2006-01-02")))
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected fawkes_ prefixed file: %v", err)
		}
	})
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Level: LevelWarn, LogDir: dir, Service: "indexer", Quiet: true})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	logger.Error("kept as well")
	logger.Close()

	data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("indexer_%s.log", time.Now().Format("2006-01-02"))))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "dropped") {
		t.Errorf("below-level entries written: %s", out)
	}
	if !strings.Contains(out, "kept") || !strings.Contains(out, "kept as well") {
		t.Errorf("warn/error entries missing: %s", out)
	}
}

func TestWith(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{LogDir: dir, Service: "indexer", Quiet: true})
	if err != nil {
		t.Fatal(err)
	}
	child := logger.With("repo", "platform-docs")
	child.Info("scanning")
	logger.Close()

	data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("indexer_%s.log", time.Now().Format("2006-01-02"))))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"repo":"platform-docs"`) {
		t.Errorf("With attribute missing: %s", data)
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	if logger == nil {
		t.Fatal("Default returned nil")
	}
	// Stderr-only logger has no file; Close must be a no-op.
	if err := logger.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestSlogAccessor(t *testing.T) {
	logger := Default()
	defer logger.Close()

	var s *slog.Logger = logger.Slog()
	if s == nil {
		t.Fatal("Slog returned nil")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"~", home},
		{"/var/log/fawkes", "/var/log/fawkes"},
		{"relative/logs", "relative/logs"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := expandPath(tt.in); got != tt.want {
				t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
