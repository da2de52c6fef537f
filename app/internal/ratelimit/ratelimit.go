package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Limiter implements a per-key token bucket
type Limiter struct {
	mu           sync.Mutex
	buckets      map[string]*bucket
	tokensPerMin int
	maxTokens    int
	errorMessage string
	now          func() time.Time
	stopCleanup  chan struct{}
	stopOnce     sync.Once
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// Config for creating a new rate limiter
type Config struct {
	TokensPerMinute int    // Number of tokens added per minute
	MaxTokens       int    // Maximum tokens that can be accumulated
	ErrorMessage    string // Message to return when rate limited
	// Clock returns "now"; nil selects time.Now
	Clock func() time.Time
}

// New creates a rate limiter and starts a janitor for idle buckets
func New(cfg Config) *Limiter {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = cfg.TokensPerMinute
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	l := &Limiter{
		buckets:      make(map[string]*bucket),
		tokensPerMin: cfg.TokensPerMinute,
		maxTokens:    cfg.MaxTokens,
		errorMessage: cfg.ErrorMessage,
		now:          cfg.Clock,
		stopCleanup:  make(chan struct{}),
	}
	go l.cleanup(5 * time.Minute)
	return l
}

// cleanup removes buckets idle for more than 10 minutes
func (l *Limiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.prune(10 * time.Minute)
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *Limiter) prune(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, b := range l.buckets {
		if now.Sub(b.lastCheck) > idle {
			delete(l.buckets, key)
		}
	}
}

// Stop ends the janitor goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
}

// Allow reports whether one request for key (usually a client IP) may proceed
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN reports whether n requests may proceed and consumes them if so
func (l *Limiter) AllowN(key string, n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(key)
	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

// Remaining returns the whole tokens left for key
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.buckets[key]; !ok {
		return l.maxTokens
	}
	return int(l.refill(key).tokens)
}

// RetryAfter returns how long until key has a token again; zero if it has one
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.buckets[key]; !ok || l.tokensPerMin <= 0 {
		return 0
	}
	missing := 1 - l.refill(key).tokens
	if missing <= 0 {
		return 0
	}
	secs := math.Ceil(missing * 60 / float64(l.tokensPerMin))
	return time.Duration(secs) * time.Second
}

// ErrorMessage returns the error message for this limiter
func (l *Limiter) ErrorMessage() string {
	return l.errorMessage
}

// Reset forgets the bucket for key
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// refill tops up the bucket for key by the time elapsed since it was last
// seen. Caller holds l.mu.
func (l *Limiter) refill(key string) *bucket {
	now := l.now()
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{tokens: float64(l.maxTokens), lastCheck: now}
		l.buckets[key] = b
		return b
	}

	elapsed := now.Sub(b.lastCheck).Minutes()
	if elapsed > 0 {
		b.tokens += elapsed * float64(l.tokensPerMin)
		if b.tokens > float64(l.maxTokens) {
			b.tokens = float64(l.maxTokens)
		}
		b.lastCheck = now
	}
	return b
}
