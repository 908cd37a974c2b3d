package domain

import (
	"context"
	"errors"
	"net"
	"strings"
)

var (
	// ErrAuth means the logged-in marker never appeared
	ErrAuth = errors.New("authentication failed")
	// ErrAllLocationsExhausted means every location was scanned without a qualifying slot
	ErrAllLocationsExhausted = errors.New("no qualifying slot at any location")
	// ErrNavigationTimeout wraps bounded waits that expired
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrNetwork wraps transport failures talking to the portal
	ErrNetwork = errors.New("network error")
	// ErrCaptchaExhausted means the challenge was not cleared within the attempt cap
	ErrCaptchaExhausted = errors.New("captcha not solved within attempt cap")
	// ErrDriver means the browser could not be launched or driven
	ErrDriver = errors.New("browser driver failure")
	// ErrRetriesExhausted is returned once the whole-run retry budget is spent
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Class tells the retry controller what to do with a failed run
type Class int

const (
	ClassFatal Class = iota
	ClassRetryable
)

func (c Class) String() string {
	if c == ClassRetryable {
		return "retryable"
	}
	return "fatal"
}

// Classify maps a run failure onto the retry taxonomy.
// Auth failures and caller cancellation are fatal, transient portal failures are retryable,
// and anything unrecognised is fatal.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassFatal
	case errors.Is(err, ErrAuth), errors.Is(err, ErrDriver), errors.Is(err, context.Canceled):
		return ClassFatal
	case errors.Is(err, ErrAllLocationsExhausted),
		errors.Is(err, ErrCaptchaExhausted),
		errors.Is(err, ErrNavigationTimeout),
		errors.Is(err, ErrNetwork),
		errors.Is(err, context.DeadlineExceeded):
		return ClassRetryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassRetryable
	}

	// Driver errors arrive as plain strings from the devtools protocol. Only the
	// innermost cause is read; wrapping layers carry selectors and URLs.
	msg := strings.ToLower(rootCause(err).Error())
	for _, marker := range []string{"captcha", "timeout", "network", "navigation", "net::err_"} {
		if strings.Contains(msg, marker) {
			return ClassRetryable
		}
	}
	return ClassFatal
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// Reason returns a short, operator-facing label for a failure
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrAllLocationsExhausted):
		return "all_locations_exhausted"
	case errors.Is(err, ErrCaptchaExhausted):
		return "captcha_exhausted"
	case errors.Is(err, ErrNavigationTimeout), errors.Is(err, context.DeadlineExceeded):
		return "navigation_timeout"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrDriver):
		return "driver"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "unclassified"
}
