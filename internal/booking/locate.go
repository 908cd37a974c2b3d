package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/julianbeese/tennis_bot/internal/antidetect"
	"github.com/julianbeese/tennis_bot/internal/browser"
)

// ErrNotLocated is returned when every strategy came back empty
var ErrNotLocated = errors.New("element not located")

// Target is a located element: the n-th match of Selector
type Target struct {
	Selector string
	Index    int
	Strategy string
}

// Strategy is one way of finding candidate elements for a criterion
type Strategy struct {
	Name    string
	Timeout time.Duration
	Find    func(ctx context.Context, page browser.Page) (Target, error)
}

// Locate tries strategies in order and returns the first non-empty, visible result.
// Each strategy gets its own wait budget.
func Locate(ctx context.Context, page browser.Page, strategies ...Strategy) (Target, error) {
	var errs []error
	for _, s := range strategies {
		sctx, cancel := bounded(ctx, s.Timeout)
		t, err := s.Find(sctx, page)
		cancel()
		if err == nil {
			t.Strategy = s.Name
			return t, nil
		}
		if ctx.Err() != nil {
			return Target{}, ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}
	return Target{}, fmt.Errorf("%w: %w", ErrNotLocated, errors.Join(errs...))
}

// WaitFor waits up to timeout for sel to become visible
func WaitFor(name, sel string, timeout time.Duration) Strategy {
	return Strategy{
		Name:    name,
		Timeout: timeout,
		Find: func(ctx context.Context, page browser.Page) (Target, error) {
			if err := page.WaitVisible(ctx, sel); err != nil {
				return Target{}, err
			}
			return Target{Selector: sel}, nil
		},
	}
}

// Present checks sel once without waiting
func Present(name, sel string) Strategy {
	return Strategy{
		Name: name,
		Find: func(ctx context.Context, page browser.Page) (Target, error) {
			visible, err := page.Visible(ctx, sel)
			if err != nil {
				return Target{}, err
			}
			if !visible {
				return Target{}, fmt.Errorf("%w: %s", browser.ErrNoElement, sel)
			}
			return Target{Selector: sel}, nil
		},
	}
}

// MatchText waits for sel and picks the first match whose trimmed text satisfies match
func MatchText(name, sel string, timeout time.Duration, match func(text string) bool) Strategy {
	return Strategy{
		Name:    name,
		Timeout: timeout,
		Find: func(ctx context.Context, page browser.Page) (Target, error) {
			if err := page.WaitVisible(ctx, sel); err != nil {
				return Target{}, err
			}
			texts, err := page.Texts(ctx, sel)
			if err != nil {
				return Target{}, err
			}
			for i, text := range texts {
				if match(strings.TrimSpace(text)) {
					return Target{Selector: sel, Index: i}, nil
				}
			}
			return Target{}, fmt.Errorf("%w: no %s text matched", browser.ErrNoElement, sel)
		},
	}
}

// ExpandThen clicks an expander, waits settle and then requires sel to be attached
func ExpandThen(name, expander, sel string, clickTimeout, settle time.Duration) Strategy {
	return Strategy{
		Name: name,
		Find: func(ctx context.Context, page browser.Page) (Target, error) {
			cctx, cancel := bounded(ctx, clickTimeout)
			// A missing expander is fine; the panel may already be open
			_ = page.Click(cctx, expander)
			cancel()
			if err := antidetect.Sleep(ctx, settle); err != nil {
				return Target{}, err
			}
			n, err := page.Count(ctx, sel)
			if err != nil {
				return Target{}, err
			}
			if n == 0 {
				return Target{}, fmt.Errorf("%w: %s", browser.ErrNoElement, sel)
			}
			return Target{Selector: sel}, nil
		},
	}
}

// bounded derives a context with timeout; zero means the parent's deadline
func bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
