package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-trader/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T, onError ErrorHandler) (*gin.Engine, *session.Store, *miniredis.Miniredis, *[]session.Session) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := session.NewStore(rdb, "secret", time.Hour)

	log := logrus.New()
	log.SetOutput(io.Discard)

	var seen []session.Session
	r := gin.New()
	r.Use(Logger(log), NoCache())
	r.GET("/private", NewAuth(store, log, onError).Protect(func(c *gin.Context, s session.Session) {
		seen = append(seen, s)
		c.String(http.StatusOK, "ok")
	}))
	return r, store, mr, &seen
}

func TestAuth_Protect(t *testing.T) {
	r, store, _, seen := newRouter(t, nil)
	_, token, err := store.Create(context.Background(), 5)
	require.NoError(t, err)

	testTable := []struct {
		name       string
		cookie     string
		expectCode int
	}{
		{name: "Redirected without cookie", cookie: "", expectCode: http.StatusFound},
		{name: "Redirected with invalid cookie", cookie: "garbage", expectCode: http.StatusFound},
		{name: "OK with session cookie", cookie: token, expectCode: http.StatusOK},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if testCase.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CookieName, Value: testCase.cookie})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, testCase.expectCode, w.Code)
			if testCase.expectCode == http.StatusFound {
				assert.Equal(t, "/login", w.Header().Get("Location"))
			}
		})
	}

	require.Len(t, *seen, 1)
	assert.Equal(t, uint(5), (*seen)[0].UserID)
}

func TestNoCache(t *testing.T) {
	r, _, _, _ := newRouter(t, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))

	assert.Equal(t, "no-cache, no-store, must-revalidate", w.Header().Get("Cache-Control"))
	assert.Equal(t, "0", w.Header().Get("Expires"))
	assert.Equal(t, "no-cache", w.Header().Get("Pragma"))
}

func TestAuth_Protect_storeDown(t *testing.T) {
	var handled []error
	custom := func(c *gin.Context, err error) {
		handled = append(handled, err)
		c.String(http.StatusServiceUnavailable, "try again")
	}

	testTable := []struct {
		name       string
		onError    ErrorHandler
		expectCode int
	}{
		{name: "Default handler answers 500", onError: nil, expectCode: http.StatusInternalServerError},
		{name: "Custom handler renders the response", onError: custom, expectCode: http.StatusServiceUnavailable},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			r, store, mr, seen := newRouter(t, testCase.onError)
			_, token, err := store.Create(context.Background(), 5)
			require.NoError(t, err)
			mr.Close()

			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, testCase.expectCode, w.Code)
			assert.Empty(t, w.Header().Get("Location"))
			assert.Empty(t, w.Header().Values("Set-Cookie"))
			assert.Empty(t, *seen)
		})
	}
	assert.Len(t, handled, 1)
}
