package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupCreatesLogDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	if err := Setup(dir, false); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("log directory not created: %v", err)
	}

	Default().Info("hello")
	if _, err := os.Stat(filepath.Join(dir, "attache.log")); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestStreamLogSanitizesConversationID(t *testing.T) {
	dir := t.TempDir()
	w, err := StreamLog(dir, "telegram:chat/42")
	if err != nil {
		t.Fatalf("stream log failed: %v", err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("line\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "streams"))
	if err != nil {
		t.Fatalf("stream dir not created: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one stream file, got %d", len(entries))
	}
	name := entries[0].Name()
	if strings.ContainsAny(name, ":/") {
		t.Errorf("conversation id not sanitized: %q", name)
	}
	if !strings.HasSuffix(name, ".stream.log") {
		t.Errorf("unexpected stream file name: %q", name)
	}
}

func TestStreamLogRequiresDirectory(t *testing.T) {
	if _, err := StreamLog("", "conv"); err == nil {
		t.Error("expected error for empty directory")
	}
}
