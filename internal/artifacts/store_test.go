package artifacts

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "img")
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	at := time.UnixMilli(1792652400123)
	tests := []struct {
		name  string
		save  func() (string, error)
		file  string
		bytes string
	}{
		{"failure", func() (string, error) { return s.SaveFailure([]byte("shot"), at) }, "failure-1792652400123.png", "shot"},
		{"captcha", func() (string, error) { return s.SaveCaptcha([]byte("c1")) }, "captcha.png", "c1"},
		{"captcha overwritten", func() (string, error) { return s.SaveCaptcha([]byte("c2")) }, "captcha.png", "c2"},
		{"calendar", func() (string, error) { return s.SaveCalendar([]byte("BEGIN:VCALENDAR")) }, "event.ics", "BEGIN:VCALENDAR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := tt.save()
			if err != nil {
				t.Fatalf("save: %v", err)
			}
			if path != filepath.Join(dir, tt.file) {
				t.Errorf("path = %s", path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(data) != tt.bytes {
				t.Errorf("content = %q, want %q", data, tt.bytes)
			}
		})
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 3 {
		t.Errorf("dir has %d entries, want 3 (no temp files left)", len(entries))
	}
}
