// Package wall stores per-room image galleries on disk. Filenames are content
// hashed, so uploading the same image to the same wall twice lands on one
// file.
package wall

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bloodroom/sanctum/internal/protocol"
)

// Entry describes one image on a wall.
type Entry struct {
	Name string `json:"name"` // stored filename
	Size int64  `json:"size"`
	At   int64  `json:"at"` // upload time, milliseconds since epoch
}

// Store manages the wall directories under one root.
type Store struct {
	root string
}

// NewStore creates a wall directory per room under root.
func NewStore(root string) (*Store, error) {
	for _, room := range []protocol.Room{
		protocol.RoomBloodroom, protocol.RoomVault, protocol.RoomGarden, protocol.RoomTower,
	} {
		if err := os.MkdirAll(filepath.Join(root, string(room)), 0o755); err != nil {
			return nil, fmt.Errorf("wall: create %s: %w", room, err)
		}
	}
	return &Store{root: root}, nil
}

// Save stores image data on the room's wall. The stored name is the first 16
// hex chars of the content hash plus the original extension; saving identical
// content again returns the existing name without rewriting.
func (s *Store) Save(room protocol.Room, origName string, data []byte) (Entry, error) {
	if !protocol.ValidRoom(room) {
		return Entry{}, fmt.Errorf("wall: unknown room %q", room)
	}

	sum := sha256.Sum256(data)
	ext := strings.ToLower(filepath.Ext(origName))
	name := hex.EncodeToString(sum[:8]) + ext
	path := filepath.Join(s.root, string(room), name)

	if info, err := os.Stat(path); err == nil {
		return Entry{Name: name, Size: info.Size(), At: info.ModTime().UnixMilli()}, nil
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Entry{}, fmt.Errorf("wall: write %s: %w", name, err)
	}
	return Entry{Name: name, Size: int64(len(data)), At: time.Now().UnixMilli()}, nil
}

// List returns the wall's entries, newest first.
func (s *Store) List(room protocol.Room) ([]Entry, error) {
	if !protocol.ValidRoom(room) {
		return nil, fmt.Errorf("wall: unknown room %q", room)
	}

	entries, err := os.ReadDir(filepath.Join(s.root, string(room)))
	if err != nil {
		return nil, fmt.Errorf("wall: read %s: %w", room, err)
	}

	var out []Entry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Name: e.Name(),
			Size: info.Size(),
			At:   info.ModTime().UnixMilli(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At > out[j].At })
	return out, nil
}

// Open returns the image bytes for a stored name.
func (s *Store) Open(room protocol.Room, name string) ([]byte, error) {
	if !protocol.ValidRoom(room) {
		return nil, fmt.Errorf("wall: unknown room %q", room)
	}
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("wall: invalid name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(s.root, string(room), name))
	if err != nil {
		return nil, fmt.Errorf("wall: open %s: %w", name, err)
	}
	return data, nil
}

// Delete removes an image from a wall. Returns true if a file was removed.
func (s *Store) Delete(room protocol.Room, name string) (bool, error) {
	if !protocol.ValidRoom(room) {
		return false, fmt.Errorf("wall: unknown room %q", room)
	}
	if name != filepath.Base(name) {
		return false, fmt.Errorf("wall: invalid name %q", name)
	}
	err := os.Remove(filepath.Join(s.root, string(room), name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("wall: delete %s: %w", name, err)
	}
	return true, nil
}
