package auth

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/warden/pkg/crypto"
)

func protectedRouter(t *testing.T, cfg HTTPAuthConfig) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	authn, err := NewHTTPAuthenticator(cfg)
	require.NoError(t, err)

	r := gin.New()
	r.Use(authn.Middleware())
	r.GET("/dir/index.html", func(c *gin.Context) {
		c.String(http.StatusOK, "hello %s", c.GetString("http_auth_user"))
	})
	return r
}

func TestNewHTTPAuthenticatorValidation(t *testing.T) {
	_, err := NewHTTPAuthenticator(HTTPAuthConfig{Method: "bearer", Users: map[string]string{"a": "b"}})
	require.Error(t, err)

	_, err = NewHTTPAuthenticator(HTTPAuthConfig{Method: HTTPMethodBasic})
	require.Error(t, err)
}

func TestBasicAuth(t *testing.T) {
	r := protectedRouter(t, HTTPAuthConfig{
		Method: HTTPMethodBasic,
		Realm:  "Ops",
		Users:  map[string]string{"admin": "s3cr3t"},
	})

	// No credentials: challenged and terminated.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/dir/index.html", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, `Basic realm="Ops"`, w.Header().Get("WWW-Authenticate"))

	// Wrong password.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/dir/index.html", nil)
	req.SetBasicAuth("admin", "wrong")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Unknown user.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/dir/index.html", nil)
	req.SetBasicAuth("ghost", "s3cr3t")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid credentials.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/dir/index.html", nil)
	req.SetBasicAuth("admin", "s3cr3t")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "hello admin", w.Body.String())
}

func TestDigestAuthKnownVector(t *testing.T) {
	// RFC 2617 section 3.5 example.
	const (
		realm    = "testrealm@host.com"
		username = "Mufasa"
		password = "Circle Of Life"
		nonce    = "dcd98b7102dd2f0e8b11d0f600bfb0c093"
		uri      = "/dir/index.html"
		nc       = "00000001"
		cnonce   = "0a4f113b"
	)

	r := protectedRouter(t, HTTPAuthConfig{
		Method: HTTPMethodDigest,
		Realm:  realm,
		Users:  map[string]string{username: password},
	})

	response := crypto.DigestResponse(username, realm, password, http.MethodGet, uri, nonce, nc, cnonce, "auth")
	require.Equal(t, "6629fae49393a05397450978507c4ef1", response)

	header := fmt.Sprintf(
		`Digest username=%q, realm=%q, nonce=%q, uri=%q, qop=auth, nc=%s, cnonce=%q, response=%q`,
		username, realm, nonce, uri, nc, cnonce, response)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, uri, nil)
	req.Header.Set("Authorization", header)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "hello Mufasa", w.Body.String())

	// Tampering with the response hash fails.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, uri, nil)
	req.Header.Set("Authorization", strings.Replace(header, response, strings.Repeat("0", 32), 1))
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDigestChallengeIsFreshEachTime(t *testing.T) {
	r := protectedRouter(t, HTTPAuthConfig{
		Method: HTTPMethodDigest,
		Realm:  "Ops",
		Users:  map[string]string{"admin": "s3cr3t"},
	})

	challenge := func() map[string]string {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/dir/index.html", nil)
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code)

		header := w.Header().Get("WWW-Authenticate")
		require.True(t, strings.HasPrefix(header, "Digest "))
		return parseDigestParams(strings.TrimPrefix(header, "Digest "))
	}

	first := challenge()
	second := challenge()

	require.Equal(t, "Ops", first["realm"])
	require.Equal(t, "auth", first["qop"])
	require.Equal(t, crypto.MD5Hex("Ops"), first["opaque"])
	require.NotEmpty(t, first["nonce"])
	require.NotEqual(t, first["nonce"], second["nonce"])
}

func TestParseDigestParams(t *testing.T) {
	params := parseDigestParams(`username="mu, fasa", realm="r", qop=auth, nc=00000001`)
	require.Equal(t, "mu, fasa", params["username"])
	require.Equal(t, "r", params["realm"])
	require.Equal(t, "auth", params["qop"])
	require.Equal(t, "00000001", params["nc"])
}
