package middleware

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/warden/internal/auth"
	"github.com/charlesng35/warden/internal/models"
	"github.com/charlesng35/warden/internal/permissions"
	"github.com/charlesng35/warden/pkg/errors"
	"github.com/charlesng35/warden/pkg/response"
)

const (
	CtxDriverKey = "authDriver"
	CtxUserKey   = "authUser"
)

// DriverFactory builds a request scoped authentication driver. Injecting the
// factory keeps each request on its own driver instance.
type DriverFactory func(c *gin.Context) (*iauth.Driver, error)

// Warden attaches a fresh driver to every request. Downstream guards and
// handlers retrieve it with DriverFrom.
func Warden(factory DriverFactory) gin.HandlerFunc {
	return func(c *gin.Context) {
		driver, err := factory(c)
		if err != nil {
			response.Error(c, errors.ErrInternalServer.WithInternal(err))
			c.Abort()
			return
		}

		c.Set(CtxDriverKey, driver)
		c.Next()
	}
}

// DriverFrom returns the request's driver installed by Warden.
func DriverFrom(c *gin.Context) (*iauth.Driver, bool) {
	value, ok := c.Get(CtxDriverKey)
	if !ok {
		return nil, false
	}
	driver, ok := value.(*iauth.Driver)
	return driver, ok
}

// UserFrom returns the authenticated user set by RequireAuth.
func UserFrom(c *gin.Context) (*models.User, bool) {
	value, ok := c.Get(CtxUserKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok
}

// resolveUser authenticates the request and exposes the user under
// CtxUserKey. On failure it writes the response and aborts, so callers must
// not continue the chain.
func resolveUser(c *gin.Context) (*models.User, bool) {
	driver, ok := DriverFrom(c)
	if !ok {
		response.Error(c, errors.ErrInternalServer)
		c.Abort()
		return nil, false
	}

	user := driver.CurrentUser(c.Request.Context())
	if user == nil {
		response.Error(c, errors.ErrUnauthorized)
		c.Abort()
		return nil, false
	}

	c.Set(CtxUserKey, user)
	return user, true
}

// RequireAuth rejects anonymous requests with 401 and exposes the resolved
// user to downstream handlers.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := resolveUser(c); !ok {
			return
		}
		c.Next()
	}
}

// RequireRole rejects requests whose user lacks any of the named roles.
// It implies RequireAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := resolveUser(c)
		if !ok {
			return
		}

		if !permissions.HasAccess(roles, user) {
			response.Error(c, errors.NewAccessDenied("", ""))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequirePermission rejects requests whose user cannot perform the action on
// the resource. It implies RequireAuth.
func RequirePermission(action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := resolveUser(c)
		if !ok {
			return
		}

		if err := permissions.Authorize(user, action, resource); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}
