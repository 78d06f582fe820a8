package auth

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// SessionStore is the driver's view of the caller's session. Implementations
// wrap whatever session machinery the host application uses; the driver only
// needs key/value access plus id rotation for fixation defence.
type SessionStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)

	// RotateID re-keys the session while keeping its values.
	RotateID() error

	// Destroy drops the session and everything in it.
	Destroy() error
}

// CookieJar abstracts persistent cookie access for the remember-me flow.
type CookieJar interface {
	Get(name string) (string, bool)
	Set(name, value string, maxAge int)
	Delete(name string)
}

var sessionSeq atomic.Int64

// MemorySession is an in-process SessionStore. It backs tests and non-HTTP
// callers such as background jobs that authenticate programmatically.
type MemorySession struct {
	mu     sync.RWMutex
	id     string
	values map[string]string
}

// NewMemorySession returns an empty in-process session.
func NewMemorySession() *MemorySession {
	return &MemorySession{
		id:     strconv.FormatInt(sessionSeq.Add(1), 10),
		values: make(map[string]string),
	}
}

// ID returns the current session id.
func (s *MemorySession) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

func (s *MemorySession) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *MemorySession) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *MemorySession) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

func (s *MemorySession) RotateID() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = strconv.FormatInt(sessionSeq.Add(1), 10)
	return nil
}

func (s *MemorySession) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = strconv.FormatInt(sessionSeq.Add(1), 10)
	s.values = make(map[string]string)
	return nil
}

// GinCookieJar reads and writes cookies on a request context.
type GinCookieJar struct {
	ctx      *gin.Context
	path     string
	domain   string
	secure   bool
	httpOnly bool
}

// NewGinCookieJar wraps the request context. Cookies are scoped to the site
// root and marked HttpOnly; secure is taken from the request scheme.
func NewGinCookieJar(c *gin.Context) *GinCookieJar {
	return &GinCookieJar{
		ctx:      c,
		path:     "/",
		secure:   c.Request != nil && c.Request.TLS != nil,
		httpOnly: true,
	}
}

func (j *GinCookieJar) Get(name string) (string, bool) {
	value, err := j.ctx.Cookie(name)
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}

func (j *GinCookieJar) Set(name, value string, maxAge int) {
	j.ctx.SetSameSite(http.SameSiteLaxMode)
	j.ctx.SetCookie(name, value, maxAge, j.path, j.domain, j.secure, j.httpOnly)
}

func (j *GinCookieJar) Delete(name string) {
	j.ctx.SetSameSite(http.SameSiteLaxMode)
	j.ctx.SetCookie(name, "", -1, j.path, j.domain, j.secure, j.httpOnly)
}
