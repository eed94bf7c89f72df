package relay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// sessionFile is the on-disk shape of the session store.
type sessionFile struct {
	Sessions map[string]string `json:"sessions"`
}

// SessionStore persists the conversation to CLI session mapping as a JSON
// file, so follow-up messages resume the right session across restarts.
type SessionStore struct {
	mu       sync.Mutex
	path     string
	sessions map[string]string
}

// LoadSessionStore reads the store at path, creating an empty one when the
// file does not exist yet.
func LoadSessionStore(path string) (*SessionStore, error) {
	s := &SessionStore{
		path:     path,
		sessions: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session store: %w", err)
	}

	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse session store: %w", err)
	}
	if f.Sessions != nil {
		s.sessions = f.Sessions
	}
	return s, nil
}

// Get returns the CLI session id for a conversation, or "" when none is
// recorded.
func (s *SessionStore) Get(conversationID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[conversationID]
}

// Set records a conversation's CLI session id and saves the store.
func (s *SessionStore) Set(conversationID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[conversationID] = sessionID
	return s.save()
}

// Forget drops a conversation's session mapping, so the next message starts
// a fresh CLI session.
func (s *SessionStore) Forget(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[conversationID]; !ok {
		return nil
	}
	delete(s.sessions, conversationID)
	return s.save()
}

// Len returns the number of recorded conversations.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// save writes the store atomically: temp file in the same directory, then
// rename. Caller holds the mutex.
func (s *SessionStore) save() error {
	data, err := json.MarshalIndent(sessionFile{Sessions: s.sessions}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sessions-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp session store: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write session store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close session store: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace session store: %w", err)
	}
	return nil
}
