// Package message provides the canonical message archive ("the vault") and
// per-recipient mailbox indexes, backed by JSON files on disk. Persistence is
// best effort: a write either lands as one file or not at all, and there is
// no recovery log.
package message

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Member identifies one of the three fixed message participants.
type Member string

const (
	MemberKing     Member = "King"
	MemberQueen    Member = "Queen"
	MemberPrincess Member = "Princess"
)

// ValidMember reports whether m is one of the three members.
func ValidMember(m Member) bool {
	return m == MemberKing || m == MemberQueen || m == MemberPrincess
}

// Record is the single authoritative stored copy of a sent message. It is
// written once and never mutated; deletion is an explicit user action.
type Record struct {
	ID          string            `json:"id"`
	Key         string            `json:"key"`
	Author      Member            `json:"author"`
	Recipients  []Member          `json:"recipients"`
	Text        string            `json:"text"`
	At          int64             `json:"at"`
	Attachments []string          `json:"attachments,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Pointer is a lightweight per-recipient index entry referencing a canonical
// record. Pointers are advisory; the vault file is the source of truth.
type Pointer struct {
	ID  string `json:"id"`
	Key string `json:"key"`
	At  int64  `json:"at"`
}

// SendInput describes one logical send.
type SendInput struct {
	Author      Member
	Recipients  []Member
	Text        string
	At          int64 // milliseconds since epoch
	Attachments []string
	Metadata    map[string]string

	// WriteIndexes controls whether per-recipient mailbox pointers are
	// written alongside the canonical record.
	WriteIndexes bool
}

// Store manages the vault directory and the per-recipient mailboxes.
type Store struct {
	root string
	mu   sync.Mutex
}

// NewStore creates the vault and mailbox directories under root if needed.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{
		filepath.Join(root, "vault"),
		filepath.Join(root, "mailboxes", string(MemberKing)),
		filepath.Join(root, "mailboxes", string(MemberQueen)),
		filepath.Join(root, "mailboxes", string(MemberPrincess)),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("message: create %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// Send persists one logical send. The vault filename is content addressed,
// "<at>-<key prefix>.json", so a repeated send of the same logical message
// finds its file already present and is skipped. It returns the record (the
// existing one on dedup) and whether a new file was written.
func (s *Store) Send(in SendInput) (*Record, bool, error) {
	key := Key(string(in.Author), memberStrings(in.Recipients), in.Text, in.At)
	name := fmt.Sprintf("%d-%s.json", in.At, key[:12])
	path := filepath.Join(s.root, "vault", name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := s.load(path); err == nil {
		return existing, false, nil
	} else if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("message: probe %s: %w", name, err)
	}

	rec := &Record{
		ID:          uuid.New().String(),
		Key:         key,
		Author:      in.Author,
		Recipients:  in.Recipients,
		Text:        strings.TrimSpace(in.Text),
		At:          in.At,
		Attachments: in.Attachments,
		Metadata:    in.Metadata,
	}
	if err := writeJSON(path, rec); err != nil {
		return nil, false, err
	}

	if in.WriteIndexes {
		ptr := Pointer{ID: rec.ID, Key: key, At: in.At}
		for _, m := range in.Recipients {
			ptrPath := filepath.Join(s.root, "mailboxes", string(m), name)
			if err := writeJSON(ptrPath, ptr); err != nil {
				// Pointers are advisory; the canonical write already landed.
				continue
			}
		}
	}

	return rec, true, nil
}

// ListVault returns up to limit canonical records, newest first. A limit of
// zero or less means no limit.
func (s *Store) ListVault(limit int) ([]Record, error) {
	dir := filepath.Join(s.root, "vault")
	names, err := sortedNames(dir)
	if err != nil {
		return nil, err
	}

	var out []Record
	for _, name := range names {
		if limit > 0 && len(out) >= limit {
			break
		}
		rec, err := s.load(filepath.Join(dir, name))
		if err != nil {
			continue // skip unreadable entries rather than failing the list
		}
		out = append(out, *rec)
	}
	return out, nil
}

// ListMailbox returns the pointer entries for one member, newest first.
func (s *Store) ListMailbox(m Member) ([]Pointer, error) {
	if !ValidMember(m) {
		return nil, fmt.Errorf("message: unknown member %q", m)
	}
	dir := filepath.Join(s.root, "mailboxes", string(m))
	names, err := sortedNames(dir)
	if err != nil {
		return nil, err
	}

	var out []Pointer
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var ptr Pointer
		if err := json.Unmarshal(data, &ptr); err != nil {
			continue
		}
		out = append(out, ptr)
	}
	return out, nil
}

// Delete removes the canonical record with the given id and any mailbox
// pointers referencing it. It returns true if a record was removed.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, "vault")
	names, err := sortedNames(dir)
	if err != nil {
		return false, err
	}

	for _, name := range names {
		rec, err := s.load(filepath.Join(dir, name))
		if err != nil || rec.ID != id {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return false, fmt.Errorf("message: delete %s: %w", name, err)
		}
		for _, m := range []Member{MemberKing, MemberQueen, MemberPrincess} {
			_ = os.Remove(filepath.Join(s.root, "mailboxes", string(m), name))
		}
		return true, nil
	}
	return false, nil
}

func (s *Store) load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("message: decode %s: %w", filepath.Base(path), err)
	}
	return &rec, nil
}

// writeJSON writes v atomically via a temp file and rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("message: marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("message: write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("message: rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// sortedNames lists .json entries in dir sorted newest first. Filenames start
// with the millisecond timestamp, so a descending string sort of equal-era
// names is close enough; ties break on the key suffix.
func sortedNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("message: read dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func memberStrings(ms []Member) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = string(m)
	}
	return out
}
