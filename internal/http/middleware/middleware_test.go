package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/centaur-backend/internal/pkg/apperror"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubParser struct {
	userID uuid.UUID
	role   string
	err    error
}

func (s stubParser) ParseAccess(string) (uuid.UUID, string, error) {
	return s.userID, s.role, s.err
}

func perform(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	userID := uuid.New()
	r := gin.New()
	r.GET("/me", AuthMiddleware(stubParser{userID: userID, role: "member"}), func(c *gin.Context) {
		c.String(http.StatusOK, c.MustGet(ContextUserIDKey).(uuid.UUID).String())
	})

	w := perform(r, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = perform(r, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer abc"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID.String(), w.Body.String())
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthMiddleware(stubParser{err: errors.New("expired")}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := perform(r, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer abc"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	build := func(role string) *gin.Engine {
		r := gin.New()
		r.GET("/admin", AuthMiddleware(stubParser{userID: uuid.New(), role: role}), RequireRole("admin"), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		return r
	}
	auth := map[string]string{"Authorization": "Bearer x"}

	assert.Equal(t, http.StatusForbidden, perform(build("member"), http.MethodGet, "/admin", auth).Code)
	assert.Equal(t, http.StatusOK, perform(build("admin"), http.MethodGet, "/admin", auth).Code)
}

func TestErrorHandler_MapsAppError(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/conflict", func(c *gin.Context) {
		_ = c.Error(apperror.Conflict("средства уже выплачены"))
	})
	r.GET("/internal", func(c *gin.Context) {
		_ = c.Error(errors.New("pq: connection refused"))
	})

	w := perform(r, http.MethodGet, "/conflict", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "средства уже выплачены")

	w = perform(r, http.MethodGet, "/internal", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pq:")
}

func TestRateLimitMiddleware(t *testing.T) {
	store, err := NewLimiterStore(nil, "test")
	require.NoError(t, err)

	r := gin.New()
	r.POST("/refund", RateLimitMiddleware(store, 2, time.Minute, ByIP), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/refund", nil).Code)
	w := perform(r, http.MethodPost, "/refund", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusTooManyRequests, perform(r, http.MethodPost, "/refund", nil).Code)
}

func TestHostRedirect(t *testing.T) {
	r := gin.New()
	r.Use(HostRedirect("centaur.example", "app.centaur.example"))
	r.GET("/orders", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/orders?page=2", nil)
	req.Host = "centaur.example:443"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusPermanentRedirect, w.Code)
	assert.Equal(t, "https://app.centaur.example/orders?page=2", w.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Host = "app.centaur.example"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "app.centaur.example"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusPermanentRedirect, w.Code)
	assert.Equal(t, "https://centaur.example/", w.Header().Get("Location"))
}

func TestHostRedirect_ConfiguredHostsIgnoreCase(t *testing.T) {
	r := gin.New()
	r.Use(HostRedirect(" Centaur.Example ", "App.Centaur.Example"))
	r.GET("/orders", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Host = "centaur.example"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusPermanentRedirect, w.Code)
	assert.Equal(t, "https://app.centaur.example/orders", w.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "APP.centaur.example:8443"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusPermanentRedirect, w.Code)
	assert.Equal(t, "https://centaur.example/", w.Header().Get("Location"))
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"http://localhost:3000"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodOptions, "/x", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	w = perform(r, http.MethodGet, "/x", map[string]string{"Origin": "http://evil.example"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestUUIDValidator(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/orders/:id", UUIDValidator("id"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := perform(r, http.MethodGet, "/orders/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "UUID")

	w = perform(r, http.MethodGet, "/orders/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
