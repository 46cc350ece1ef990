// Package notes provides the shared scratchpad: one free-form text file per
// room, read and replaced whole. Last writer wins.
package notes

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bloodroom/sanctum/internal/protocol"
)

// Store manages the per-room note files under one directory.
type Store struct {
	root string
	mu   sync.Mutex
}

// NewStore creates the notes directory under root if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("notes: create %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Read returns the room's note text. A room with no note yet reads as empty.
func (s *Store) Read(room protocol.Room) (string, error) {
	if !protocol.ValidRoom(room) {
		return "", fmt.Errorf("notes: unknown room %q", room)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(room))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("notes: read %s: %w", room, err)
	}
	return string(data), nil
}

// Write replaces the room's note text.
func (s *Store) Write(room protocol.Room, text string) error {
	if !protocol.ValidRoom(room) {
		return fmt.Errorf("notes: unknown room %q", room)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path(room) + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0o644); err != nil {
		return fmt.Errorf("notes: write %s: %w", room, err)
	}
	if err := os.Rename(tmp, s.path(room)); err != nil {
		return fmt.Errorf("notes: rename %s: %w", room, err)
	}
	return nil
}

func (s *Store) path(room protocol.Room) string {
	return filepath.Join(s.root, string(room)+".txt")
}
