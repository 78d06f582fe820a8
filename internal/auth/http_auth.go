package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/warden/pkg/crypto"
	"github.com/charlesng35/warden/pkg/logger"
)

// HTTP authentication methods.
const (
	HTTPMethodBasic  = "basic"
	HTTPMethodDigest = "digest"
)

// HTTPAuthConfig is the statically configured credential table for HTTP
// Basic and Digest access authentication (RFC 2617). It protects endpoints
// that sit outside the user database, such as operational dashboards.
type HTTPAuthConfig struct {
	Method string            `mapstructure:"method"`
	Realm  string            `mapstructure:"realm"`
	Users  map[string]string `mapstructure:"users"`
}

// HTTPAuthenticator enforces Basic or Digest authentication on a route
// group. A failed or absent credential receives a fresh challenge and the
// request ends there.
type HTTPAuthenticator struct {
	cfg HTTPAuthConfig
}

// NewHTTPAuthenticator validates the configuration and builds the enforcer.
func NewHTTPAuthenticator(cfg HTTPAuthConfig) (*HTTPAuthenticator, error) {
	switch cfg.Method {
	case HTTPMethodBasic, HTTPMethodDigest:
	default:
		return nil, fmt.Errorf("http auth: unsupported method %q", cfg.Method)
	}
	if strings.TrimSpace(cfg.Realm) == "" {
		cfg.Realm = "Protected"
	}
	if len(cfg.Users) == 0 {
		return nil, fmt.Errorf("http auth: at least one user is required")
	}
	return &HTTPAuthenticator{cfg: cfg}, nil
}

// Middleware returns the gin handler enforcing the configured method.
func (a *HTTPAuthenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var username string
		var ok bool

		switch a.cfg.Method {
		case HTTPMethodBasic:
			username, ok = a.checkBasic(c.Request)
		case HTTPMethodDigest:
			username, ok = a.checkDigest(c.Request)
		}

		if !ok {
			a.challenge(c)
			return
		}
		c.Set("http_auth_user", username)
		c.Next()
	}
}

func (a *HTTPAuthenticator) checkBasic(r *http.Request) (string, bool) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return "", false
	}

	expected, known := a.cfg.Users[username]
	if !known {
		// Burn comparable time for unknown users.
		subtle.ConstantTimeCompare([]byte(password), []byte(password))
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(expected)) != 1 {
		return "", false
	}
	return username, true
}

func (a *HTTPAuthenticator) checkDigest(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Digest ") {
		return "", false
	}

	params := parseDigestParams(strings.TrimPrefix(header, "Digest "))
	username := params["username"]
	password, known := a.cfg.Users[username]
	if !known {
		return "", false
	}
	if params["realm"] != a.cfg.Realm || params["uri"] == "" || params["nonce"] == "" {
		return "", false
	}

	var expected string
	if qop := params["qop"]; qop != "" {
		if params["nc"] == "" || params["cnonce"] == "" {
			return "", false
		}
		expected = crypto.DigestResponse(username, a.cfg.Realm, password,
			r.Method, params["uri"], params["nonce"], params["nc"], params["cnonce"], qop)
	} else {
		a1 := crypto.MD5Hex(fmt.Sprintf("%s:%s:%s", username, a.cfg.Realm, password))
		a2 := crypto.MD5Hex(fmt.Sprintf("%s:%s", r.Method, params["uri"]))
		expected = crypto.MD5Hex(fmt.Sprintf("%s:%s:%s", a1, params["nonce"], a2))
	}

	if subtle.ConstantTimeCompare([]byte(params["response"]), []byte(expected)) != 1 {
		return "", false
	}
	return username, true
}

// challenge replies 401 with a freshly minted challenge and aborts the
// request. Digest nonces are never reused across challenges.
func (a *HTTPAuthenticator) challenge(c *gin.Context) {
	switch a.cfg.Method {
	case HTTPMethodBasic:
		c.Header("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", a.cfg.Realm))
	case HTTPMethodDigest:
		nonce, err := crypto.GenerateNonce()
		if err != nil {
			logger.Error("failed to generate digest nonce", zap.Error(err))
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Header("WWW-Authenticate", fmt.Sprintf(
			"Digest realm=%q, qop=\"auth\", nonce=%q, opaque=%q",
			a.cfg.Realm, nonce, crypto.MD5Hex(a.cfg.Realm)))
	}
	c.AbortWithStatus(http.StatusUnauthorized)
}

// parseDigestParams splits a Digest header's comma separated key=value
// pairs, honoring quoted values that may themselves contain commas.
func parseDigestParams(input string) map[string]string {
	params := make(map[string]string)

	for len(input) > 0 {
		eq := strings.IndexByte(input, '=')
		if eq < 0 {
			break
		}
		key := strings.TrimSpace(input[:eq])
		input = input[eq+1:]

		var value string
		if strings.HasPrefix(input, `"`) {
			end := strings.IndexByte(input[1:], '"')
			if end < 0 {
				break
			}
			value = input[1 : end+1]
			input = input[end+2:]
		} else if comma := strings.IndexByte(input, ','); comma >= 0 {
			value = strings.TrimSpace(input[:comma])
			input = input[comma:]
		} else {
			value = strings.TrimSpace(input)
			input = ""
		}

		params[key] = value
		input = strings.TrimPrefix(strings.TrimSpace(input), ",")
		input = strings.TrimSpace(input)
	}

	return params
}
