package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/materialdesk/apiserver/internal/services"
	"github.com/materialdesk/apiserver/internal/store"
	"github.com/materialdesk/apiserver/types"
)

const testSecret = "test-secret"

// fakeUserRepo is an in-memory UserRepository.
type fakeUserRepo struct {
	nextID int
	users  map[int]types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{nextID: 1, users: make(map[int]types.User)}
}

func (f *fakeUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	for _, existing := range f.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = f.nextID
	f.nextID++
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) Update(_ context.Context, id int, patch types.UserPatch) (types.User, error) {
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if patch.IsEmpty() {
		return types.User{}, store.ErrNoFields
	}
	if patch.Name != nil {
		user.Name = *patch.Name
	}
	if patch.PasswordHash != nil {
		user.PasswordHash = *patch.PasswordHash
	}
	if patch.Role != nil {
		user.Role = *patch.Role
	}
	f.users[id] = user
	return user, nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id int) error {
	if _, ok := f.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func newAuthTestRouter() (*chi.Mux, *AuthHandler) {
	handler := NewAuthHandler(services.NewUserService(newFakeUserRepo()), testSecret, false)
	router := chi.NewRouter()
	router.Route("/api/auth", func(r chi.Router) {
		AuthRouter(r, handler)
	})
	return router, handler
}

func postJSON(t *testing.T, router http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func registerUser(t *testing.T, router http.Handler) types.User {
	t.Helper()
	rec := postJSON(t, router, "/api/auth/register", RegisterRequest{
		Email:    "kim@example.com",
		Password: "hunter22",
		Name:     "Kim",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	return resp.User
}

func sessionCookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == sessionCookieName {
			return cookie
		}
	}
	t.Fatalf("no %s cookie in response", sessionCookieName)
	return nil
}

func TestAuthRegister(t *testing.T) {
	t.Run("creates a user without exposing the hash", func(t *testing.T) {
		router, _ := newAuthTestRouter()
		rec := postJSON(t, router, "/api/auth/register", RegisterRequest{
			Email:    "kim@example.com",
			Password: "hunter22",
			Name:     "Kim",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		require.NotContains(t, rec.Body.String(), "passwordHash")

		var resp AuthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "kim@example.com", resp.User.Email)
		require.Equal(t, "user", resp.User.Role)
	})

	t.Run("duplicate email", func(t *testing.T) {
		router, _ := newAuthTestRouter()
		registerUser(t, router)

		rec := postJSON(t, router, "/api/auth/register", RegisterRequest{
			Email:    "kim@example.com",
			Password: "other",
			Name:     "Other Kim",
		})
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		router, _ := newAuthTestRouter()
		rec := postJSON(t, router, "/api/auth/register", RegisterRequest{Email: "kim@example.com"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthLogin(t *testing.T) {
	t.Run("valid credentials set the session cookie", func(t *testing.T) {
		router, _ := newAuthTestRouter()
		registerUser(t, router)

		rec := postJSON(t, router, "/api/auth/login", LoginRequest{
			Email:    "kim@example.com",
			Password: "hunter22",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		cookie := sessionCookieFrom(t, rec)
		require.NotEmpty(t, cookie.Value)
		require.True(t, cookie.HttpOnly)
	})

	t.Run("wrong password", func(t *testing.T) {
		router, _ := newAuthTestRouter()
		registerUser(t, router)

		rec := postJSON(t, router, "/api/auth/login", LoginRequest{
			Email:    "kim@example.com",
			Password: "wrong",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown email looks like wrong password", func(t *testing.T) {
		router, _ := newAuthTestRouter()

		rec := postJSON(t, router, "/api/auth/login", LoginRequest{
			Email:    "nobody@example.com",
			Password: "whatever",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthCheck(t *testing.T) {
	router, _ := newAuthTestRouter()
	registerUser(t, router)

	login := postJSON(t, router, "/api/auth/login", LoginRequest{
		Email:    "kim@example.com",
		Password: "hunter22",
	})
	require.Equal(t, http.StatusOK, login.Code)
	cookie := sessionCookieFrom(t, login)

	t.Run("with session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp CheckResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.True(t, resp.IsAuthenticated)
		require.NotNil(t, resp.User)
		require.Equal(t, "kim@example.com", resp.User.Email)
	})

	t.Run("without session it still answers 200", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp CheckResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.False(t, resp.IsAuthenticated)
		require.Nil(t, resp.User)
	})
}

func TestAuthLogout(t *testing.T) {
	router, _ := newAuthTestRouter()

	rec := postJSON(t, router, "/api/auth/logout", struct{}{})
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := sessionCookieFrom(t, rec)
	require.Empty(t, cookie.Value)
	require.Negative(t, cookie.MaxAge)
}

func TestRequireAuth(t *testing.T) {
	router, handler := newAuthTestRouter()
	user := registerUser(t, router)

	protected := chi.NewRouter()
	protected.Use(handler.RequireAuth)
	protected.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromContext(r.Context())
		require.NoError(t, err)
		writeJSON(w, http.StatusOK, map[string]int{"id": userID})
	})

	t.Run("no session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "not-a-jwt"})
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("cookie session", func(t *testing.T) {
		login := postJSON(t, router, "/api/auth/login", LoginRequest{
			Email:    "kim@example.com",
			Password: "hunter22",
		})
		require.Equal(t, http.StatusOK, login.Code)

		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.AddCookie(sessionCookieFrom(t, login))
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]int
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, user.ID, resp["id"])
	})

	t.Run("bearer fallback", func(t *testing.T) {
		token, err := handler.issueToken(user.ID)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		other := NewAuthHandler(services.NewUserService(newFakeUserRepo()), "other-secret", false)
		token, err := other.issueToken(user.ID)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
