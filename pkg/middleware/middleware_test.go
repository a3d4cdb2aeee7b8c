package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bitwise74/fileshare-api/internal/model"
	"bitwise74/fileshare-api/internal/store"
	"bitwise74/fileshare-api/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type fakeUsers struct {
	users map[string]model.User
	finds int
}

func (f *fakeUsers) CreateUser(_ context.Context, u *model.User) error {
	f.users[u.ID] = *u
	return nil
}

func (f *fakeUsers) FindUser(_ context.Context, id string) (*model.User, error) {
	f.finds++

	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	return &u, nil
}

func (f *fakeUsers) FindUserByEmail(context.Context, string) (*model.User, error) {
	return nil, store.ErrNotFound
}

func (f *fakeUsers) UpdatePasswordHash(context.Context, string, string) error {
	return nil
}

func newAuthRouter(t *testing.T, users *fakeUsers) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	a := NewAuth(users, secret)
	t.Cleanup(func() { a.Close() })

	r := gin.New()
	r.Use(NewRequestIDMiddleware())

	echo := func(c *gin.Context) {
		id := IdentityOf(c)
		c.JSON(http.StatusOK, gin.H{"user": id.UserID, "authenticated": id.Authenticated})
	}

	r.GET("/required", a.Required(), echo)
	r.GET("/optional", a.Optional(), echo)

	return r
}

func do(r http.Handler, path string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if mutate != nil {
		mutate(req)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	users := &fakeUsers{users: map[string]model.User{"u1": {ID: "u1"}}}
	r := newAuthRouter(t, users)

	w := do(r, "/required", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "requestID")

	token, err := security.IssueToken("u1", []byte(secret), time.Hour)
	require.NoError(t, err)

	withCookie := func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: AuthCookie, Value: token})
	}

	w = do(r, "/required", withCookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"u1","authenticated":true}`, w.Body.String())

	// the second request is served from the user cache
	w = do(r, "/required", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, users.finds)
}

func TestAuthUnknownUser(t *testing.T) {
	r := newAuthRouter(t, &fakeUsers{users: map[string]model.User{}})

	token, err := security.IssueToken("ghost", []byte(secret), time.Hour)
	require.NoError(t, err)

	w := do(r, "/required", func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: AuthCookie, Value: token})
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthOptional(t *testing.T) {
	r := newAuthRouter(t, &fakeUsers{users: map[string]model.User{}})

	w := do(r, "/optional", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"","authenticated":false}`, w.Body.String())

	w = do(r, "/optional", func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: AuthCookie, Value: "garbage"})
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(NewRequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("requestID")) })

	w := do(r, "/", nil)
	assert.Len(t, w.Body.String(), requestIDLength)
	assert.Equal(t, w.Body.String(), w.Header().Get("X-Request-ID"))
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	l := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, Burst: 2})

	r := gin.New()
	r.Use(NewRequestIDMiddleware(), l.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, "/", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, "/", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, "/", nil).Code)

	l.cfg.TTL = -time.Second
	l.Cleanup()
	assert.Empty(t, l.visitors)
}

func TestBodySizeLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(NewRequestIDMiddleware(), BodySizeLimiter(8))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("tiny"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTurnstileDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(NewRequestIDMiddleware(), NewTurnstileMiddleware(""))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, "/", nil).Code)
}

func TestTurnstileMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(NewRequestIDMiddleware(), NewTurnstileMiddleware("secret"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusBadRequest, do(r, "/", nil).Code)
}
