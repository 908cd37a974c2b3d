package antidetect

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// RateLimiter paces outbound calls so a burst of captcha refreshes
// does not hammer the recognizer
type RateLimiter struct {
	mu                   sync.Mutex
	maxRequestsPerMinute int
	requestTimes         []time.Time
	minDelay             time.Duration
	maxDelay             time.Duration
	now                  func() time.Time
}

// NewRateLimiter creates a new rate limiter. A non-positive maxPerMinute disables the window.
func NewRateLimiter(maxPerMinute int, minDelay, maxDelay time.Duration) *RateLimiter {
	capacity := maxPerMinute
	if capacity < 0 {
		capacity = 0
	}
	return &RateLimiter{
		maxRequestsPerMinute: maxPerMinute,
		requestTimes:         make([]time.Time, 0, capacity),
		minDelay:             minDelay,
		maxDelay:             maxDelay,
		now:                  time.Now,
	}
}

// Wait blocks until a request can be made within rate limits or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-time.Minute)

	filtered := rl.requestTimes[:0]
	for _, t := range rl.requestTimes {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	rl.requestTimes = filtered

	var wait time.Duration
	if rl.maxRequestsPerMinute > 0 && len(rl.requestTimes) >= rl.maxRequestsPerMinute {
		if until := rl.requestTimes[0].Add(time.Minute); until.After(now) {
			wait = until.Sub(now)
		}
	}
	wait += rl.randomDelay()

	if err := Sleep(ctx, wait); err != nil {
		return err
	}

	rl.requestTimes = append(rl.requestTimes, rl.now())
	return nil
}

// InWindow returns how many requests were recorded during the last minute
func (rl *RateLimiter) InWindow() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-time.Minute)
	n := 0
	for _, t := range rl.requestTimes {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

func (rl *RateLimiter) randomDelay() time.Duration {
	if rl.maxDelay <= rl.minDelay {
		return rl.minDelay
	}
	diff := rl.maxDelay - rl.minDelay
	return rl.minDelay + time.Duration(rand.Int63n(int64(diff)))
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// UserAgentRotator hands out a different user agent per browser launch
type UserAgentRotator struct {
	mu         sync.Mutex
	userAgents []string
	index      int
}

// NewUserAgentRotator creates a new user agent rotator
func NewUserAgentRotator(userAgents []string) *UserAgentRotator {
	if len(userAgents) == 0 {
		userAgents = defaultUserAgents()
	}
	shuffled := make([]string, len(userAgents))
	copy(shuffled, userAgents)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return &UserAgentRotator{userAgents: shuffled}
}

// Next returns the next user agent in rotation
func (r *UserAgentRotator) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ua := r.userAgents[r.index]
	r.index = (r.index + 1) % len(r.userAgents)
	return ua
}

// Current returns the current user agent without advancing
func (r *UserAgentRotator) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userAgents[r.index]
}

func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	}
}

// HumanBehavior provides human-like delays for form filling. Zero delays disable pausing.
type HumanBehavior struct {
	TypeDelay   time.Duration
	ActionDelay time.Duration
}

// NewHumanBehavior creates a new human behavior simulator
func NewHumanBehavior(typeDelay, actionDelay time.Duration) *HumanBehavior {
	return &HumanBehavior{
		TypeDelay:   typeDelay,
		ActionDelay: actionDelay,
	}
}

// TypeChar returns a delay for typing a character (with variation)
func (h *HumanBehavior) TypeChar() time.Duration {
	if h == nil || h.TypeDelay <= 0 {
		return 0
	}
	// Add 0-50% variation
	return h.TypeDelay + jitter(h.TypeDelay/2)
}

// ActionPause returns a delay between actions
func (h *HumanBehavior) ActionPause() time.Duration {
	if h == nil || h.ActionDelay <= 0 {
		return 0
	}
	// Add 0-100% variation
	return h.ActionDelay + jitter(h.ActionDelay)
}

// Pause sleeps for one ActionPause
func (h *HumanBehavior) Pause(ctx context.Context) error {
	return Sleep(ctx, h.ActionPause())
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
