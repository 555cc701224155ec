package auth

import (
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// AttemptLimiter counts failed logins per email. Once an email reaches max
// failures inside the window it is locked until the window expires.
type AttemptLimiter struct {
	max      int
	failures *cache.Cache
}

// NewAttemptLimiter returns a limiter; max <= 0 disables locking.
func NewAttemptLimiter(max int, window time.Duration) *AttemptLimiter {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &AttemptLimiter{
		max:      max,
		failures: cache.New(window, 2*window),
	}
}

func attemptKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *AttemptLimiter) Locked(email string) bool {
	if a.max <= 0 {
		return false
	}
	n, ok := a.failures.Get(attemptKey(email))
	return ok && n.(int) >= a.max
}

// Fail records a failed attempt and returns the count inside the window.
func (a *AttemptLimiter) Fail(email string) int {
	if a.max <= 0 {
		return 0
	}
	key := attemptKey(email)
	if err := a.failures.Add(key, 1, cache.DefaultExpiration); err == nil {
		return 1
	}
	n, err := a.failures.IncrementInt(key, 1)
	if err != nil {
		// expired between Add and IncrementInt
		a.failures.Set(key, 1, cache.DefaultExpiration)
		return 1
	}
	return n
}

func (a *AttemptLimiter) Reset(email string) {
	a.failures.Delete(attemptKey(email))
}
