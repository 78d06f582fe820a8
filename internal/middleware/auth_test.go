package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/warden/internal/auth"
	"github.com/charlesng35/warden/internal/database/testutil"
	"github.com/charlesng35/warden/internal/lifecycle"
	"github.com/charlesng35/warden/internal/models"
	"github.com/charlesng35/warden/internal/store"
	"github.com/charlesng35/warden/pkg/response"
)

type fixture struct {
	identities *store.IdentityStore
	session    *iauth.MemorySession
	router     *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	identities, err := store.NewIdentityStore(db)
	require.NoError(t, err)

	f := &fixture{
		identities: identities,
		session:    iauth.NewMemorySession(),
	}

	factory := func(c *gin.Context) (*iauth.Driver, error) {
		return iauth.New(identities, f.session)
	}

	r := gin.New()
	r.Use(Warden(factory))
	r.GET("/me", RequireAuth(), func(c *gin.Context) {
		user, _ := UserFrom(c)
		response.Success(c, http.StatusOK, gin.H{"username": user.Username})
	})
	r.GET("/admin", RequireRole("admin"), func(c *gin.Context) {
		response.Success(c, http.StatusOK, nil)
	})
	r.GET("/posts/edit", RequirePermission("edit", "posts"), func(c *gin.Context) {
		response.Success(c, http.StatusOK, nil)
	})

	f.router = r
	return f
}

func (f *fixture) signIn(t *testing.T, roles ...models.Role) *models.User {
	t.Helper()

	user := &models.User{
		Username:    "guard.test",
		Email:       "guard.test@example.com",
		IsConfirmed: true,
		Roles:       roles,
	}
	require.NoError(t, lifecycle.SetPassword(user, "sekret!"))
	require.NoError(t, f.identities.Save(context.Background(), user))

	driver, err := iauth.New(f.identities, f.session)
	require.NoError(t, err)
	ok, err := driver.Authenticate(context.Background(), "guard.test", "sekret!", false)
	require.NoError(t, err)
	require.True(t, ok)
	return user
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	f.router.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	f := newFixture(t)

	w := f.get("/me")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	f.signIn(t)
	w = f.get("/me")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "guard.test")
}

func TestRequireRole(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, models.Role{Name: "Member"})

	w := f.get("/admin")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "ACCESS_DENIED")
}

func TestRequireRoleAllows(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, models.Role{Name: "Admin"})

	w := f.get("/admin")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequirePermission(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, models.Role{
		Name: "editor",
		Permissions: []models.Permission{
			{Resource: "posts", Action: "edit", Name: "edit_posts"},
		},
	})

	w := f.get("/posts/edit")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequirePermissionDenies(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, models.Role{Name: "viewer"})

	w := f.get("/posts/edit")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "not authorized to edit posts")
}

func TestDeniedRequestNeverReachesHandler(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, models.Role{Name: "viewer"})

	var roleHits, permHits int
	f.router.GET("/locked-role", RequireRole("admin"), func(c *gin.Context) {
		roleHits++
		response.Success(c, http.StatusOK, nil)
	})
	f.router.GET("/locked-perm", RequirePermission("edit", "posts"), func(c *gin.Context) {
		permHits++
		response.Success(c, http.StatusOK, nil)
	})

	w := f.get("/locked-role")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Zero(t, roleHits)

	w = f.get("/locked-perm")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Zero(t, permHits)
}
