// Package artifacts writes operator-facing files: failure screenshots, the
// last captcha image and the calendar export.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	captchaFile  = "captcha.png"
	calendarFile = "event.ics"
)

// Store writes artifacts below one directory
type Store struct {
	dir string
}

// NewStore creates the directory if needed
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory
func (s *Store) Dir() string { return s.dir }

// SaveFailure keeps a full-page capture keyed by its timestamp
func (s *Store) SaveFailure(png []byte, at time.Time) (string, error) {
	return s.write(fmt.Sprintf("failure-%d.png", at.UnixMilli()), png)
}

// SaveCaptcha overwrites the last challenge image
func (s *Store) SaveCaptcha(png []byte) (string, error) {
	return s.write(captchaFile, png)
}

// SaveCalendar overwrites the last booking's calendar document
func (s *Store) SaveCalendar(ics []byte) (string, error) {
	return s.write(calendarFile, ics)
}

// write replaces name atomically so readers never see a partial file
func (s *Store) write(name string, data []byte) (string, error) {
	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}
