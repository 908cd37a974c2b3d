package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassFatal},
		{"auth", fmt.Errorf("login: %w", ErrAuth), ClassFatal},
		{"canceled", fmt.Errorf("run: %w", context.Canceled), ClassFatal},
		{"driver", fmt.Errorf("launch: %w", ErrDriver), ClassFatal},
		{"exhausted", ErrAllLocationsExhausted, ClassRetryable},
		{"captcha", fmt.Errorf("reserve: %w", ErrCaptchaExhausted), ClassRetryable},
		{"navigation", fmt.Errorf("goto: %w", ErrNavigationTimeout), ClassRetryable},
		{"network", fmt.Errorf("goto: %w", ErrNetwork), ClassRetryable},
		{"deadline", fmt.Errorf("click: %w", context.DeadlineExceeded), ClassRetryable},
		{"net.Error", fmt.Errorf("dial: %w", timeoutErr{}), ClassRetryable},
		{"devtools string", errors.New("page load error net::ERR_CONNECTION_RESET"), ClassRetryable},
		{"unknown", errors.New("selector syntax invalid"), ClassFatal},
		{"wrapped devtools string", fmt.Errorf("click #go: %w", errors.New("net::ERR_ABORTED")), ClassRetryable},
		{"selector text ignored", fmt.Errorf("click #navigation-timeout: %w", errors.New("node is detached")), ClassFatal},
		{"url text ignored", fmt.Errorf("goto https://tennis.paris.fr/network: %w", errors.New("invalid argument")), ClassFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestReason(t *testing.T) {
	if got := Reason(fmt.Errorf("x: %w", ErrCaptchaExhausted)); got != "captcha_exhausted" {
		t.Errorf("Reason = %q", got)
	}
	if got := Reason(errors.New("boom")); got != "unclassified" {
		t.Errorf("Reason = %q", got)
	}
	if got := Reason(nil); got != "" {
		t.Errorf("Reason(nil) = %q", got)
	}
}

func TestLocationAllowsCourt(t *testing.T) {
	open := Location{Name: "A"}
	if !open.AllowsCourt(9) {
		t.Error("empty allow-list should accept any court")
	}
	restricted := Location{Name: "B", Courts: []int{1, 4}}
	if !restricted.AllowsCourt(4) {
		t.Error("court 4 should be allowed")
	}
	if restricted.AllowsCourt(2) {
		t.Error("court 2 should be rejected")
	}
}
