package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/julianbeese/tennis_bot/internal/antidetect"
	"github.com/julianbeese/tennis_bot/internal/config"
	"github.com/julianbeese/tennis_bot/internal/domain"
)

// KeyEnter is the key name accepted by Page.Press for the confirm key
const KeyEnter = "Enter"

var (
	// ErrNoElement is returned when a selector matched nothing
	ErrNoElement = errors.New("no element matches selector")
	// ErrNoFrameDocument means the frame's document is not reachable, as with cross-origin frames
	ErrNoFrameDocument = errors.New("frame document not accessible")
)

// Page is one controllable document (a tab or a frame inside it).
// Every call is bounded by ctx; callers set per-operation timeouts.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitIdle waits until the document finished loading and the DOM settled
	WaitIdle(ctx context.Context) error

	WaitVisible(ctx context.Context, sel string) error
	// WaitReady waits until sel is attached, visible or not
	WaitReady(ctx context.Context, sel string) error
	WaitHidden(ctx context.Context, sel string) error

	// Count returns the number of matches without waiting
	Count(ctx context.Context, sel string) (int, error)
	// Visible reports whether the first match is rendered
	Visible(ctx context.Context, sel string) (bool, error)

	Click(ctx context.Context, sel string) error
	ClickNth(ctx context.Context, sel string, n int) error
	Fill(ctx context.Context, sel, value string) error
	FillNth(ctx context.Context, sel string, n int, value string) error
	Press(ctx context.Context, key string) error

	Texts(ctx context.Context, sel string) ([]string, error)
	Text(ctx context.Context, sel string) (string, error)
	Attributes(ctx context.Context, sel, name string) ([]string, error)
	// AdjacentHTML returns the inner HTML of the target element sharing a row
	// with anchor, preferring the one to its left
	AdjacentHTML(ctx context.Context, anchor, target string) (string, error)

	// Unlock drops readonly from a form field and makes it visible
	Unlock(ctx context.Context, sel string) error
	RemoveClass(ctx context.Context, sel, class string) error

	Title(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, sel string) ([]byte, error)
	FullScreenshot(ctx context.Context) ([]byte, error)
	Frame(ctx context.Context, sel string) (Page, error)
}

// Session owns one browser process and its page
type Session interface {
	Page() Page
	// Close releases the browser. Safe to call more than once.
	Close() error
}

// Launcher starts a fresh, unauthenticated browser session
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Options configure a launcher
type Options struct {
	Headless    bool
	ChromePath  string
	Agents      *antidetect.UserAgentRotator
	Behavior    *antidetect.HumanBehavior
	SettleDelay time.Duration // quiet period WaitIdle allows after load
}

// NewLauncher returns the launcher for the configured engine
func NewLauncher(cfg config.BrowserConfig, behavior *antidetect.HumanBehavior) (Launcher, error) {
	opts := Options{
		Headless:    cfg.Headless,
		ChromePath:  cfg.ChromePath,
		Agents:      antidetect.NewUserAgentRotator(cfg.UserAgents),
		Behavior:    behavior,
		SettleDelay: cfg.SettleDelay,
	}
	switch cfg.Engine {
	case "", "chromedp":
		return NewChromedpLauncher(opts), nil
	case "rod":
		return NewRodLauncher(opts), nil
	}
	return nil, fmt.Errorf("%w: unknown engine %q", domain.ErrDriver, cfg.Engine)
}

// wrap classifies a driver error. Expired caller deadlines become navigation
// timeouts and connection failures become network errors.
func wrap(ctx context.Context, op, sel string, err error) error {
	if err == nil {
		return nil
	}
	where := op
	if sel != "" {
		where = fmt.Sprintf("%s %s", op, sel)
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", where, domain.ErrNavigationTimeout)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", where, err)
	case strings.Contains(strings.ToLower(err.Error()), "net::err_"):
		return fmt.Errorf("%s: %w: %v", where, domain.ErrNetwork, err)
	}
	return fmt.Errorf("%s: %w", where, err)
}
