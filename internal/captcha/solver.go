package captcha

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/julianbeese/tennis_bot/internal/config"
)

// localSolver is a recognizer compiled into the binary
type localSolver interface {
	Solve(ctx context.Context, image []byte) (string, error)
	Close() error
}

// local is set by builds that include an OCR engine
var local func() (localSolver, error)

// Solver is the contract shared by every recognizer
type Solver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// New selects the recognizer named by cfg.Engine. The returned close func is never nil.
func New(cfg config.CaptchaConfig, logger *slog.Logger) (Solver, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Engine {
	case "", "gradio":
		s, err := NewGradioSolver(cfg, logger)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case "tesseract":
		if local == nil {
			return nil, noop, fmt.Errorf("captcha engine tesseract: binary built without the tesseract tag")
		}
		s, err := local()
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown captcha engine %q", cfg.Engine)
}
