package auth

import (
	"sync"

	"github.com/gin-gonic/gin"
)

// SessionCookie carries the session id between requests.
const SessionCookie = "warden_session"

// SessionRegistry keeps in-process sessions keyed by a session id cookie.
// It suits single-instance deployments; multi-instance setups should plug
// their own SessionStore implementation into the driver instead.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*MemorySession
}

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*MemorySession)}
}

// ForRequest resolves the caller's session from the cookie, creating one if
// needed. Id rotation and destruction keep the cookie in sync.
func (r *SessionRegistry) ForRequest(c *gin.Context) SessionStore {
	jar := NewGinCookieJar(c)

	r.mu.Lock()
	var sess *MemorySession
	if id, ok := jar.Get(SessionCookie); ok {
		sess = r.sessions[id]
	}
	if sess == nil {
		sess = NewMemorySession()
		r.sessions[sess.ID()] = sess
		jar.Set(SessionCookie, sess.ID(), 0)
	}
	r.mu.Unlock()

	return &boundSession{session: sess, registry: r, jar: jar}
}

// boundSession links a registry session to the response cookie so id
// changes propagate to the client.
type boundSession struct {
	session  *MemorySession
	registry *SessionRegistry
	jar      *GinCookieJar
}

func (s *boundSession) Get(key string) (string, bool) { return s.session.Get(key) }
func (s *boundSession) Set(key, value string)         { s.session.Set(key, value) }
func (s *boundSession) Delete(key string)             { s.session.Delete(key) }

func (s *boundSession) RotateID() error {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()

	delete(s.registry.sessions, s.session.ID())
	if err := s.session.RotateID(); err != nil {
		return err
	}
	s.registry.sessions[s.session.ID()] = s.session
	s.jar.Set(SessionCookie, s.session.ID(), 0)
	return nil
}

func (s *boundSession) Destroy() error {
	s.registry.mu.Lock()
	delete(s.registry.sessions, s.session.ID())
	s.registry.mu.Unlock()

	s.jar.Delete(SessionCookie)
	return s.session.Destroy()
}
