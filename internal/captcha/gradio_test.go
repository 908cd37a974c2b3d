package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/julianbeese/tennis_bot/internal/config"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"AB12CD", "AB12CD"},
		{" a|b-c12 ", "abc12"},
		{"ABCDEFGH", "ABCDEF"},
		{"|-|", ""},
		{"éàç123x", "éàç123"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.raw); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestSpaceURL(t *testing.T) {
	got, err := SpaceURL("docparser/Text_Captcha_breaker")
	if err != nil {
		t.Fatalf("SpaceURL: %v", err)
	}
	if got != "https://docparser-text-captcha-breaker.hf.space" {
		t.Errorf("SpaceURL = %q", got)
	}
	if _, err := SpaceURL("no-slash"); err == nil {
		t.Error("expected error for malformed space")
	}
}

// fakeSpace mimics a Gradio app serving /predict under prefix
func fakeSpace(t *testing.T, prefix, answer string, stream string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var predictions atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /config", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"api_prefix": prefix, "version": "5.0.0"})
	})
	mux.HandleFunc("POST "+prefix+"/upload", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("files")
		if err != nil {
			t.Errorf("upload without file: %v", err)
			http.Error(w, "bad upload", http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		if string(data) != "PNG" || header.Filename != "captcha.png" {
			t.Errorf("upload = %q (%s)", data, header.Filename)
		}
		json.NewEncoder(w).Encode([]string{"/tmp/gradio/abc/captcha.png"})
	})
	mux.HandleFunc("POST "+prefix+"/call/predict", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data []fileData `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Data) != 1 {
			t.Errorf("predict body: %v", err)
		} else if body.Data[0].Path != "/tmp/gradio/abc/captcha.png" || body.Data[0].Meta["_type"] != "gradio.FileData" {
			t.Errorf("predict data = %+v", body.Data[0])
		}
		predictions.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"event_id": "evt-1"})
	})
	mux.HandleFunc("GET "+prefix+"/call/predict/evt-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		if stream == "" {
			stream = fmt.Sprintf("event: generating\ndata: null\n\nevent: complete\ndata: [%q]\n\n", answer)
		}
		io.WriteString(w, stream)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &predictions
}

func newSolver(t *testing.T, endpoint string) *GradioSolver {
	t.Helper()
	cfg := config.DefaultConfig().Captcha
	cfg.Endpoint = endpoint
	s, err := NewGradioSolver(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewGradioSolver: %v", err)
	}
	return s
}

func TestGradioSolve(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
	}{
		{"legacy routes", ""},
		{"prefixed routes", "/gradio_api"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, predictions := fakeSpace(t, tt.prefix, "X7|K-2PQZ", "")
			s := newSolver(t, srv.URL)

			for i := 0; i < 2; i++ {
				got, err := s.Solve(context.Background(), []byte("PNG"))
				if err != nil {
					t.Fatalf("Solve: %v", err)
				}
				if got != "X7K2PQ" {
					t.Errorf("answer = %q, want X7K2PQ", got)
				}
			}
			if predictions.Load() != 2 {
				t.Errorf("predictions = %d, want 2", predictions.Load())
			}
		})
	}
}

func TestGradioSolveErrors(t *testing.T) {
	tests := []struct {
		name    string
		stream  string
		wantErr error
	}{
		{"error event", "event: error\ndata: \"queue full\"\n\n", nil},
		{"empty answer", "event: complete\ndata: [\"|-\"]\n\n", ErrNoAnswer},
		{"no result", "event: heartbeat\ndata: null\n\n", nil},
		{"not a string", "event: complete\ndata: [42]\n\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := fakeSpace(t, "", "", tt.stream)
			s := newSolver(t, srv.URL)

			_, err := s.Solve(context.Background(), []byte("PNG"))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGradioSolveHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "sleeping", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newSolver(t, srv.URL).Solve(context.Background(), []byte("PNG"))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestNewEngine(t *testing.T) {
	cfg := config.DefaultConfig().Captcha

	s, closeFn, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New(gradio): %v", err)
	}
	if _, ok := s.(*GradioSolver); !ok {
		t.Errorf("solver = %T, want *GradioSolver", s)
	}
	if err := closeFn(); err != nil {
		t.Errorf("close: %v", err)
	}

	cfg.Engine = "abacus"
	if _, _, err := New(cfg, nil); err == nil {
		t.Error("expected error for unknown engine")
	}
}
