//go:build tesseract

package captcha

import (
	"context"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract"
)

const whitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// TesseractSolver recognizes challenges locally with libtesseract
type TesseractSolver struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseractSolver creates a local solver. Close releases the engine.
func NewTesseractSolver() (*TesseractSolver, error) {
	client := gosseract.NewClient()
	if err := client.SetWhitelist(whitelist); err != nil {
		client.Close()
		return nil, fmt.Errorf("tesseract whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, fmt.Errorf("tesseract page mode: %w", err)
	}
	return &TesseractSolver{client: client}, nil
}

// Solve runs OCR on the image. ctx is only checked up front; recognition is not interruptible.
func (s *TesseractSolver) Solve(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("tesseract image: %w", err)
	}
	text, err := s.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	answer := Normalize(text)
	if answer == "" {
		return "", ErrNoAnswer
	}
	return answer, nil
}

// Close releases the engine
func (s *TesseractSolver) Close() error {
	return s.client.Close()
}

func init() {
	local = func() (localSolver, error) { return NewTesseractSolver() }
}
