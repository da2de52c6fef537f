package auth

import (
	"crypto/subtle"
	"net/http"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"uptime/app/internal/ratelimit"
	"uptime/app/internal/security"
)

const realm = `Basic realm="uptime admin", charset="UTF-8"`

// Auth guards admin routes with HTTP basic auth against a bcrypt hash.
// Failed attempts are metered per client IP.
type Auth struct {
	mu   sync.RWMutex
	user string
	hash []byte

	failures *ratelimit.Limiter
}

// NewAuth creates an Auth. failures may be nil to disable lockout.
func NewAuth(user string, hash []byte, failures *ratelimit.Limiter) *Auth {
	return &Auth{user: user, hash: hash, failures: failures}
}

// Enabled reports whether a password hash is configured
func (a *Auth) Enabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.hash) > 0
}

// User returns the configured admin user name
func (a *Auth) User() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.user
}

// Reload swaps the credentials in place
func (a *Auth) Reload(user string, hash []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user = user
	a.hash = hash
}

// CheckCredentials reports whether user and password match
func (a *Auth) CheckCredentials(user, password string) bool {
	a.mu.RLock()
	wantUser, hash := a.user, a.hash
	a.mu.RUnlock()

	if len(hash) == 0 || user == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(wantUser)) == 1
	// Always run bcrypt so a wrong user name costs the same as a wrong password
	passOK := bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
	return userOK && passOK
}

// RequireAuth is middleware that requires valid basic auth credentials
func (a *Auth) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			http.Error(w, "admin disabled", http.StatusNotFound)
			return
		}

		ip := security.ClientIP(r)
		if a.failures != nil && a.failures.Remaining(ip) < 1 {
			security.TooManyRequests(w, a.failures, ip)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok || !a.CheckCredentials(user, pass) {
			if a.failures != nil {
				a.failures.Allow(ip)
			}
			w.Header().Set("WWW-Authenticate", realm)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if a.failures != nil {
			a.failures.Reset(ip)
		}
		next(w, r)
	}
}
