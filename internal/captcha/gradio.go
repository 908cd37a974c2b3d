// Package captcha turns anti-bot challenge images into text answers.
package captcha

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/julianbeese/tennis_bot/internal/antidetect"
	"github.com/julianbeese/tennis_bot/internal/config"
)

// MaxAnswerLength is the number of characters the portal's challenge uses
const MaxAnswerLength = 6

// ErrNoAnswer is returned when the recognizer finished without any text
var ErrNoAnswer = errors.New("recognizer returned no answer")

// GradioSolver calls the /predict endpoint of a hosted Gradio app
type GradioSolver struct {
	endpoint string
	client   *http.Client
	limiter  *antidetect.RateLimiter
	logger   *slog.Logger

	mu     sync.Mutex
	prefix *string
}

// NewGradioSolver creates a solver for cfg.Endpoint, or the Hugging Face
// space named by cfg.Space when no endpoint is set
func NewGradioSolver(cfg config.CaptchaConfig, logger *slog.Logger) (*GradioSolver, error) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		var err error
		if endpoint, err = SpaceURL(cfg.Space); err != nil {
			return nil, err
		}
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GradioSolver{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		limiter:  antidetect.NewRateLimiter(cfg.MaxRequestsPerMinute, 0, 0),
		logger:   logger,
	}, nil
}

// SpaceURL maps "owner/Name_Here" to https://owner-name-here.hf.space
func SpaceURL(space string) (string, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(space), "/")
	if !ok || owner == "" || name == "" {
		return "", fmt.Errorf("captcha space %q: want owner/name", space)
	}
	host := strings.ToLower(owner + "-" + name)
	host = strings.NewReplacer("_", "-", ".", "-").Replace(host)
	return "https://" + host + ".hf.space", nil
}

// Solve uploads the image, queues a prediction and waits for its result
func (s *GradioSolver) Solve(ctx context.Context, image []byte) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	s.logger.Debug("recognizer request", "requests_last_minute", s.limiter.InWindow())

	base := s.endpoint + s.apiPrefix(ctx)

	path, err := s.upload(ctx, base, image)
	if err != nil {
		return "", fmt.Errorf("upload challenge: %w", err)
	}
	eventID, err := s.call(ctx, base, path)
	if err != nil {
		return "", fmt.Errorf("queue prediction: %w", err)
	}
	raw, err := s.result(ctx, base, eventID)
	if err != nil {
		return "", fmt.Errorf("prediction %s: %w", eventID, err)
	}

	answer := Normalize(raw)
	s.logger.Debug("recognizer answer", "raw", raw, "answer", answer)
	if answer == "" {
		return "", ErrNoAnswer
	}
	return answer, nil
}

// apiPrefix reads the app's route prefix once. Older apps have none.
func (s *GradioSolver) apiPrefix(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefix != nil {
		return *s.prefix
	}

	prefix := ""
	var cfg struct {
		APIPrefix string `json:"api_prefix"`
	}
	if err := s.getJSON(ctx, s.endpoint+"/config", &cfg); err != nil {
		s.logger.Debug("gradio config unavailable", "error", err)
		return prefix
	}
	prefix = strings.TrimRight(cfg.APIPrefix, "/")
	s.prefix = &prefix
	return prefix
}

func (s *GradioSolver) upload(ctx context.Context, base string, image []byte) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("files", "captcha.png")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(image); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var paths []string
	if err := s.doJSON(req, &paths); err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("no file path returned")
	}
	return paths[0], nil
}

type fileData struct {
	Path string            `json:"path"`
	Meta map[string]string `json:"meta"`
}

func (s *GradioSolver) call(ctx context.Context, base, path string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"data": []any{fileData{Path: path, Meta: map[string]string{"_type": "gradio.FileData"}}},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/call/predict", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		EventID string `json:"event_id"`
	}
	if err := s.doJSON(req, &resp); err != nil {
		return "", err
	}
	if resp.EventID == "" {
		return "", fmt.Errorf("no event id returned")
	}
	return resp.EventID, nil
}

// result reads the server-sent event stream until "complete" or "error"
func (s *GradioSolver) result(ctx context.Context, base, eventID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/call/predict/"+eventID, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	var event string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			switch event {
			case "complete":
				return firstString(data)
			case "error":
				return "", fmt.Errorf("recognizer error: %s", data)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("stream ended without result")
}

func firstString(data string) (string, error) {
	var values []any
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return "", fmt.Errorf("decode result: %w", err)
	}
	if len(values) == 0 {
		return "", ErrNoAnswer
	}
	text, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected result type %T", values[0])
	}
	return text, nil
}

func (s *GradioSolver) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return s.doJSON(req, v)
}

func (s *GradioSolver) doJSON(req *http.Request, v any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("gradio API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

var junk = strings.NewReplacer("|", "", "-", "")

// Normalize drops separator glyphs the model emits and keeps the challenge length
func Normalize(raw string) string {
	answer := junk.Replace(strings.TrimSpace(raw))
	if r := []rune(answer); len(r) > MaxAnswerLength {
		answer = string(r[:MaxAnswerLength])
	}
	return answer
}
