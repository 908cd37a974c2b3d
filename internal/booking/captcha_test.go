package booking

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/julianbeese/tennis_bot/internal/browser"
	"github.com/julianbeese/tennis_bot/internal/browser/browsertest"
	"github.com/julianbeese/tennis_bot/internal/domain"
)

type keptImages struct{ n int }

func (k *keptImages) SaveCaptcha(png []byte) (string, error) {
	k.n++
	return "captcha.png", nil
}

func challengePage(c *fakeCaptcha) *browsertest.Page {
	p := browsertest.NewPage()
	p.Show(selCaptchaMarker, "")
	p.SetFrame(selCaptchaFrame, c.frame())
	return p
}

func TestCaptchaLoop(t *testing.T) {
	tests := []struct {
		name        string
		acceptAfter int
		solverErr   error
		wantErr     error
		wantCalls   int
	}{
		{name: "first answer", acceptAfter: 1, wantCalls: 1},
		{name: "third answer", acceptAfter: 3, wantCalls: 3},
		{name: "last allowed answer", acceptAfter: 5, wantCalls: 5},
		{name: "never verified", acceptAfter: 0, wantErr: domain.ErrCaptchaExhausted, wantCalls: 5},
		{name: "solver down", acceptAfter: 1, solverErr: errors.New("space sleeping"), wantErr: domain.ErrCaptchaExhausted, wantCalls: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(nil)
			solver := &countingSolver{err: tt.solverErr}
			images := &keptImages{}
			loop := NewCaptchaLoop(cfg.Captcha, solver, images, discardLogger())

			err := loop.Clear(context.Background(), challengePage(&fakeCaptcha{acceptAfter: tt.acceptAfter}), cfg.Browser)

			if tt.wantErr == nil && err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if solver.Calls() != tt.wantCalls {
				t.Errorf("solver called %d times, want %d", solver.Calls(), tt.wantCalls)
			}
			if images.n != tt.wantCalls {
				t.Errorf("kept %d images, want %d", images.n, tt.wantCalls)
			}
		})
	}
}

func TestCaptchaLoopNoChallenge(t *testing.T) {
	cfg := testConfig(nil)
	solver := &countingSolver{}
	loop := NewCaptchaLoop(cfg.Captcha, solver, nil, discardLogger())

	if err := loop.Clear(context.Background(), browsertest.NewPage(), cfg.Browser); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if solver.Calls() != 0 {
		t.Errorf("solver called without a challenge")
	}
}

func TestCaptchaLoopMissingFrameCountsAsAttempt(t *testing.T) {
	cfg := testConfig(nil)
	cfg.Captcha.MaxAttempts = 2
	solver := &countingSolver{}
	loop := NewCaptchaLoop(cfg.Captcha, solver, nil, discardLogger())

	page := browsertest.NewPage().Show(selCaptchaMarker, "")
	err := loop.Clear(context.Background(), page, cfg.Browser)
	if !errors.Is(err, domain.ErrCaptchaExhausted) {
		t.Fatalf("error = %v, want ErrCaptchaExhausted", err)
	}
	if solver.Calls() != 0 {
		t.Errorf("solver called %d times without a frame", solver.Calls())
	}
}

func TestCaptchaLoopUnreachableFrameStopsAtOnce(t *testing.T) {
	cfg := testConfig(nil)
	solver := &countingSolver{}
	loop := NewCaptchaLoop(cfg.Captcha, solver, nil, discardLogger())

	page := browsertest.NewPage().
		Show(selCaptchaMarker, "").
		Fail(selCaptchaFrame, fmt.Errorf("frame %s: %w", selCaptchaFrame, browser.ErrNoFrameDocument))
	err := loop.Clear(context.Background(), page, cfg.Browser)
	if !errors.Is(err, domain.ErrDriver) || !errors.Is(err, browser.ErrNoFrameDocument) {
		t.Fatalf("error = %v, want ErrDriver wrapping ErrNoFrameDocument", err)
	}
	if errors.Is(err, domain.ErrCaptchaExhausted) {
		t.Error("unreachable frame must not be reported as exhausted attempts")
	}
	if solver.Calls() != 0 {
		t.Errorf("solver called %d times", solver.Calls())
	}
	if domain.Classify(err) != domain.ClassFatal {
		t.Error("unreachable frame should not be retried")
	}
}

func TestCaptchaLoopCanceled(t *testing.T) {
	cfg := testConfig(nil)
	ctx, cancel := context.WithCancel(context.Background())
	solver := &cancelingSolver{cancel: cancel}
	loop := NewCaptchaLoop(cfg.Captcha, solver, nil, discardLogger())

	err := loop.Clear(ctx, challengePage(&fakeCaptcha{}), cfg.Browser)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if solver.calls != 1 {
		t.Errorf("solver called %d times after cancel", solver.calls)
	}
}

type cancelingSolver struct {
	cancel context.CancelFunc
	calls  int
}

func (s *cancelingSolver) Solve(ctx context.Context, image []byte) (string, error) {
	s.calls++
	s.cancel()
	return "", ctx.Err()
}
