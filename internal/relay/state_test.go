package relay

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSessionStoreMissingFile(t *testing.T) {
	s, err := LoadSessionStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("missing file should load empty: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d entries", s.Len())
	}
	if got := s.Get("conv-1"); got != "" {
		t.Errorf("expected no session, got %q", got)
	}
}

func TestSessionStoreSetGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	s, err := LoadSessionStore(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if err := s.Set("conv-1", "sess-abc"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got := s.Get("conv-1"); got != "sess-abc" {
		t.Errorf("expected sess-abc, got %q", got)
	}

	// A fresh load sees the persisted mapping.
	reloaded, err := LoadSessionStore(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got := reloaded.Get("conv-1"); got != "sess-abc" {
		t.Errorf("expected persisted session, got %q", got)
	}
}

func TestSessionStoreOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	s, err := LoadSessionStore(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if err := s.Set("conv-1", "sess-old"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := s.Set("conv-1", "sess-new"); err != nil {
		t.Fatalf("second set failed: %v", err)
	}
	if got := s.Get("conv-1"); got != "sess-new" {
		t.Errorf("expected sess-new, got %q", got)
	}
}

func TestSessionStoreForget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	s, err := LoadSessionStore(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if err := s.Set("conv-1", "sess-abc"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := s.Forget("conv-1"); err != nil {
		t.Fatalf("forget failed: %v", err)
	}
	if got := s.Get("conv-1"); got != "" {
		t.Errorf("expected forgotten session, got %q", got)
	}

	// Forgetting an unknown conversation is a no-op.
	if err := s.Forget("conv-unknown"); err != nil {
		t.Errorf("forget on unknown conversation failed: %v", err)
	}
}

func TestSessionStoreCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "sessions.json")
	s, err := LoadSessionStore(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := s.Set("conv-1", "sess-abc"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("store file not created: %v", err)
	}
}

func TestSessionStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}
	if _, err := LoadSessionStore(path); err == nil {
		t.Error("expected error for corrupt store file")
	}
}
