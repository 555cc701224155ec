package auth

import (
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/mic-data-portal/app/session"
	"github.com/FACorreiaa/mic-data-portal/config"
	"github.com/FACorreiaa/mic-data-portal/internal/types"
	"github.com/FACorreiaa/mic-data-portal/internal/view"
)

var handlerViews = fstest.MapFS{
	"layouts/main.html":    {Data: []byte(`{{define "layout"}}{{range .Messages}}[{{.Category}}:{{.Text}}]{{end}}{{template "content" .}}{{end}}`)},
	"index.html":           {Data: []byte(`{{define "content"}}{{with .CurrentUser}}user:{{.Email}}{{else}}anon{{end}}{{end}}`)},
	"users/login.html":     {Data: []byte(`{{define "content"}}login-form {{with .CurrentUser}}user:{{.Email}}{{else}}anon{{end}}{{end}}`)},
	"partials/unused.html": {Data: []byte(`{{define "unused"}}{{end}}`)},
}

type authFixture struct {
	users  *memoryUsers
	server *httptest.Server
	client *http.Client
}

func newAuthFixture(t *testing.T, maxFailures int) *authFixture {
	t.Helper()
	logger := discardLogger()
	users := newMemoryUsers()

	sessionCfg := config.SessionConfig{
		Name:       "mic_session",
		Secret:     "test-session-secret",
		SessionTTL: time.Hour,
		Store:      config.SessionStoreCookie,
	}
	manager := session.NewManager(session.NewCookieStore(sessionCfg), sessionCfg.Name, logger)
	codec := NewJWTIdentityCodec(users, sessionCfg.Secret, sessionCfg.SessionTTL, "test-issuer", logger)
	service := NewAuthService(users, NewBcryptHasher(bcrypt.MinCost), logger)
	limiter := NewAttemptLimiter(maxFailures, time.Minute)
	views, err := view.NewRenderer(handlerViews, "main", logger)
	require.NoError(t, err)

	h := NewHandlerImpl(service, codec, manager, limiter, views, logger)

	r := chi.NewRouter()
	r.Use(Decorator(manager, codec, logger))
	r.Get(HomePath, func(w http.ResponseWriter, r *http.Request) {
		views.Render(w, r, http.StatusOK, "index", "Home", nil)
	})
	r.Get(LoginPath, h.LoginForm)
	r.Post(LoginPath, h.Login)
	r.Post(LogoutPath, h.Logout)
	r.Delete(LogoutPath, h.Logout)
	r.Post("/notify", func(w http.ResponseWriter, r *http.Request) {
		s, err := manager.Session(r)
		require.NoError(t, err)
		manager.AddFlash(s, types.NewMessage(types.MessageSuccess, "first"))
		manager.AddFlash(s, types.NewMessage(types.MessageError, "second"))
		require.NoError(t, manager.Save(w, r, s))
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &authFixture{users: users, server: server, client: client}
}

func (f *authFixture) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := f.client.Get(f.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

// login posts the form and returns the status and redirect target.
func (f *authFixture) login(t *testing.T, email, password string) (int, string) {
	t.Helper()
	resp, err := f.client.PostForm(f.server.URL+LoginPath, url.Values{"email": {email}, "password": {password}})
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode, resp.Header.Get("Location")
}

func TestLoginHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newAuthFixture(t, 5)
		f.users.add(t, "Ann", "a@b.com", "hunter2")

		status, location := f.login(t, "a@b.com", "hunter2")
		assert.Equal(t, http.StatusSeeOther, status)
		assert.Equal(t, HomePath, location)

		status, body := f.get(t, HomePath)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "[success:You are now logged in]user:a@b.com", body)

		_, body = f.get(t, HomePath)
		assert.Equal(t, "user:a@b.com", body, "flash is shown exactly once")
	})

	t.Run("WrongPassword", func(t *testing.T) {
		f := newAuthFixture(t, 5)
		f.users.add(t, "Ann", "a@b.com", "hunter2")

		status, location := f.login(t, "a@b.com", "wrong")
		assert.Equal(t, http.StatusSeeOther, status)
		assert.Equal(t, LoginPath, location)

		_, body := f.get(t, LoginPath)
		assert.Equal(t, "[error:Incorrect password]login-form anon", body)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		f := newAuthFixture(t, 5)
		status, location := f.login(t, "x@y.com", "whatever")
		assert.Equal(t, http.StatusSeeOther, status)
		assert.Equal(t, LoginPath, location)

		_, body := f.get(t, LoginPath)
		assert.Equal(t, "[error:No user x@y.com found]login-form anon", body)
	})

	t.Run("MissingFields", func(t *testing.T) {
		f := newAuthFixture(t, 5)
		status, _ := f.login(t, "a@b.com", "")
		assert.Equal(t, http.StatusSeeOther, status)

		_, body := f.get(t, LoginPath)
		assert.Equal(t, "[validationError:Please fill in all fields]login-form anon", body)
	})

	t.Run("FlashesKeepOrder", func(t *testing.T) {
		f := newAuthFixture(t, 5)
		resp, err := f.client.Post(f.server.URL+"/notify", "text/plain", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

		_, body := f.get(t, LoginPath)
		assert.Equal(t, "[success:first][error:second]login-form anon", body)

		_, body = f.get(t, LoginPath)
		assert.Equal(t, "login-form anon", body, "flashes are shown exactly once")
	})

	t.Run("NextRequestDrainsFlash", func(t *testing.T) {
		f := newAuthFixture(t, 5)
		f.login(t, "", "")
		f.login(t, "x@y.com", "pw")

		_, body := f.get(t, LoginPath)
		assert.Equal(t, "[error:No user x@y.com found]login-form anon", body)
	})

	t.Run("JSONBody", func(t *testing.T) {
		f := newAuthFixture(t, 5)
		f.users.add(t, "Ann", "a@b.com", "hunter2")

		resp, err := f.client.Post(f.server.URL+LoginPath, "application/json",
			strings.NewReader(`{"email":"a@b.com","password":"hunter2"}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

		_, body := f.get(t, HomePath)
		assert.Contains(t, body, "user:a@b.com")
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		f := newAuthFixture(t, 5)
		resp, err := f.client.Post(f.server.URL+LoginPath, "application/json", strings.NewReader(`{"email":`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("LockedOut", func(t *testing.T) {
		f := newAuthFixture(t, 2)
		f.users.add(t, "Ann", "a@b.com", "hunter2")

		f.login(t, "a@b.com", "wrong")
		f.login(t, "a@b.com", "wrong")
		f.get(t, LoginPath)

		status, location := f.login(t, "a@b.com", "hunter2")
		assert.Equal(t, http.StatusSeeOther, status)
		assert.Equal(t, LoginPath, location)

		_, body := f.get(t, LoginPath)
		assert.Equal(t, "[error:"+msgLockedOut+"]login-form anon", body)
	})

	t.Run("MalformedHashIsFatal", func(t *testing.T) {
		f := newAuthFixture(t, 5)
		u := f.users.add(t, "Ann", "a@b.com", "hunter2")
		f.users.update(u.ID, func(u *types.User) { u.PasswordHash = "garbage" })

		resp, err := f.client.PostForm(f.server.URL+LoginPath, url.Values{"email": {"a@b.com"}, "password": {"hunter2"}})
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "Internal Server Error\n", string(body))
	})
}

func TestLogoutHandler(t *testing.T) {
	for _, method := range []string{http.MethodPost, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			f := newAuthFixture(t, 5)
			f.users.add(t, "Ann", "a@b.com", "hunter2")
			f.login(t, "a@b.com", "hunter2")
			f.get(t, HomePath)

			req, err := http.NewRequest(method, f.server.URL+LogoutPath, nil)
			require.NoError(t, err)
			resp, err := f.client.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
			assert.Equal(t, LoginPath, resp.Header.Get("Location"))

			_, body := f.get(t, LoginPath)
			assert.Equal(t, "[success:You are logged out]login-form anon", body)
		})
	}
}

func TestDecorator(t *testing.T) {
	t.Run("StaleIdentityIsDropped", func(t *testing.T) {
		f := newAuthFixture(t, 5)
		u := f.users.add(t, "Ann", "a@b.com", "hunter2")
		f.login(t, "a@b.com", "hunter2")
		f.get(t, HomePath)

		f.users.mu.Lock()
		saved := f.users.byID[u.ID]
		f.users.mu.Unlock()
		f.users.delete(u.ID)

		_, body := f.get(t, HomePath)
		assert.Equal(t, "anon", body)

		// the token left the session, so the user coming back changes nothing
		f.users.mu.Lock()
		f.users.byID[u.ID] = saved
		f.users.mu.Unlock()
		_, body = f.get(t, HomePath)
		assert.Equal(t, "anon", body)
	})

	t.Run("AdminChangeVisibleNextRequest", func(t *testing.T) {
		f := newAuthFixture(t, 5)
		u := f.users.add(t, "Ann", "a@b.com", "hunter2")
		f.login(t, "a@b.com", "hunter2")
		f.get(t, HomePath)

		f.users.update(u.ID, func(u *types.User) { u.Email = "ann@b.com" })
		_, body := f.get(t, HomePath)
		assert.Equal(t, "user:ann@b.com", body)
	})

	t.Run("StoreFailureIs500", func(t *testing.T) {
		f := newAuthFixture(t, 5)
		f.users.add(t, "Ann", "a@b.com", "hunter2")
		f.login(t, "a@b.com", "hunter2")

		f.users.failWith(errors.New("connection reset"))
		status, body := f.get(t, HomePath)
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "Internal Server Error\n", body)

		// the flash survived because the failed request saved nothing
		f.users.failWith(nil)
		_, body = f.get(t, HomePath)
		assert.Equal(t, "[success:You are now logged in]user:a@b.com", body)
	})

	t.Run("TamperedCookieIsAnonymous", func(t *testing.T) {
		f := newAuthFixture(t, 5)
		req, err := http.NewRequest(http.MethodGet, f.server.URL+HomePath, nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: "mic_session", Value: "forged"})
		resp, err := f.client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "anon", string(body))
	})
}
