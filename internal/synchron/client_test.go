package synchron

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// portalStub simulates the login and events pages of the portal.
type portalStub struct {
	loginPosts atomic.Int32
	failLogins bool
}

func (p *portalStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><form><input type="hidden" name="_token" value="tok-123"></form></html>`)
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		p.loginPosts.Add(1)
		if p.failLogins {
			fmt.Fprint(w, `<html>Login fehlgeschlagen</html>`)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("_token") != "tok-123" ||
			r.PostForm.Get("username") != "user" || r.PostForm.Get("password") != "pass" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "synchron_session", Value: "sess-1", Path: "/"})
		fmt.Fprint(w, `<html><h1>Termine</h1></html>`)
	})
	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("synchron_session"); err != nil || c.Value != "sess-1" {
			fmt.Fprint(w, `<html>Login</html>`)
			return
		}
		fmt.Fprint(w, appointmentsPage)
	})
	return mux
}

func newTestClient(t *testing.T, baseURL string, cache SessionCache, retries int) *Client {
	t.Helper()
	logger := zerolog.New(io.Discard)
	c, err := NewClient(Config{
		BaseURL:         baseURL,
		Username:        "user",
		Password:        "pass",
		LoginRetries:    retries,
		LoginRetryDelay: time.Millisecond,
		MaxAppointments: 5,
	}, cache, &logger)
	require.NoError(t, err)
	return c
}

func TestLoginAndFetch(t *testing.T) {
	stub := &portalStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, 3)
	ctx := context.Background()

	require.NoError(t, c.Login(ctx))
	assert.Equal(t, int32(1), stub.loginPosts.Load())

	appointments, err := c.FetchAppointments(ctx)
	require.NoError(t, err)
	require.Len(t, appointments, 3)
	assert.Equal(t, "Studio A", appointments[0].Studio)
}

func TestLogin_RetriesExhausted(t *testing.T) {
	stub := &portalStub{failLogins: true}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, 2)

	err := c.Login(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 2, authErr.Attempts)
	assert.Equal(t, int32(2), stub.loginPosts.Load())
}

// memoryCache is an in-process SessionCache for tests.
type memoryCache struct {
	cookies []*http.Cookie
}

func (m *memoryCache) Load(context.Context) ([]*http.Cookie, error) { return m.cookies, nil }
func (m *memoryCache) Save(_ context.Context, cookies []*http.Cookie) error {
	m.cookies = cookies
	return nil
}

func TestLogin_ReusesCachedSession(t *testing.T) {
	stub := &portalStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	cache := &memoryCache{}
	ctx := context.Background()

	first := newTestClient(t, srv.URL, cache, 3)
	require.NoError(t, first.Login(ctx))
	require.NotEmpty(t, cache.cookies)

	// A fresh client with the same cache should skip the login POST.
	second := newTestClient(t, srv.URL, cache, 3)
	require.NoError(t, second.Login(ctx))
	assert.Equal(t, int32(1), stub.loginPosts.Load())

	appointments, err := second.FetchAppointments(ctx)
	require.NoError(t, err)
	assert.Len(t, appointments, 3)
}

func TestLogin_StaleCachedSessionFallsBack(t *testing.T) {
	stub := &portalStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	cache := &memoryCache{cookies: []*http.Cookie{{Name: "synchron_session", Value: "expired", Path: "/"}}}
	c := newTestClient(t, srv.URL, cache, 3)

	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, int32(1), stub.loginPosts.Load())
}
