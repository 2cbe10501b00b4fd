// Package session keeps the editable state of one exposé between CLI invocations:
// the Markdown the user edits and the photos with their selection.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/thywilljoshua/expose-generator/internal/ids"
)

const (
	stateFile    = "session.json"
	MarkdownFile = "expose.md"
	photoDir     = "photos"
)

var ErrNoSession = errors.New("no session in directory")

type Photo struct {
	Name      string `json:"name"`
	Family    bool   `json:"family"`
	Selected  bool   `json:"selected"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Category  string `json:"category,omitempty"`
}

// Session is persisted as session.json next to expose.md and photos/.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// LastRun is the history ID of the latest extraction.
	LastRun string  `json:"last_run,omitempty"`
	Stage   string  `json:"stage,omitempty"`
	Source  string  `json:"source,omitempty"`
	Photos  []Photo `json:"photos"`

	dir string
}

// Create starts a new session in dir. An existing session there is replaced.
func Create(dir string) (*Session, error) {
	if err := os.MkdirAll(filepath.Join(dir, photoDir), 0o755); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	now := time.Now().UTC()
	s := &Session{ID: ids.New(), CreatedAt: now, UpdatedAt: now, Photos: []Photo{}, dir: dir}
	return s, s.Save()
}

func Open(dir string) (*Session, error) {
	raw, err := os.ReadFile(filepath.Join(dir, stateFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	s.dir = dir
	return &s, nil
}

func (s *Session) Dir() string { return s.dir }

func (s *Session) Save() error {
	s.UpdatedAt = time.Now().UTC()
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	tmp := filepath.Join(s.dir, stateFile+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return os.Rename(tmp, filepath.Join(s.dir, stateFile))
}

// MarkdownPath is the file the user edits.
func (s *Session) MarkdownPath() string { return filepath.Join(s.dir, MarkdownFile) }

func (s *Session) Markdown() (string, error) {
	raw, err := os.ReadFile(s.MarkdownPath())
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	return string(raw), err
}

func (s *Session) SetMarkdown(md string) error {
	return os.WriteFile(s.MarkdownPath(), []byte(md), 0o644)
}

// AddPhoto stores data under photos/ and appends it unselected.
func (s *Session) AddPhoto(name string, data []byte) (*Photo, error) {
	name = filepath.Base(name)
	if err := os.WriteFile(s.PhotoPath(name), data, 0o644); err != nil {
		return nil, fmt.Errorf("add photo: %w", err)
	}
	s.Photos = append(s.Photos, Photo{Name: name})
	return &s.Photos[len(s.Photos)-1], nil
}

func (s *Session) PhotoPath(name string) string {
	return filepath.Join(s.dir, photoDir, filepath.Base(name))
}

func (s *Session) PhotoData(p Photo) ([]byte, error) {
	return os.ReadFile(s.PhotoPath(p.Name))
}

// Family returns the family photo, if any.
func (s *Session) Family() (Photo, bool) {
	for _, p := range s.Photos {
		if p.Family {
			return p, true
		}
	}
	return Photo{}, false
}

// SetFamily flags the photo called name and clears the flag everywhere else.
func (s *Session) SetFamily(name string) error {
	found := false
	for i := range s.Photos {
		s.Photos[i].Family = s.Photos[i].Name == name
		found = found || s.Photos[i].Family
	}
	if !found && name != "" {
		return fmt.Errorf("no photo named %q", name)
	}
	return nil
}

// Selected lists the non-family photos marked for the photo sheet, in order.
func (s *Session) Selected() []Photo {
	var out []Photo
	for _, p := range s.Photos {
		if p.Selected && !p.Family {
			out = append(out, p)
		}
	}
	return out
}
