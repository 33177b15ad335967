package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/materialdesk/apiserver/internal/services"
	"github.com/materialdesk/apiserver/internal/store"
	"github.com/materialdesk/apiserver/pkg/httpx"
	"github.com/materialdesk/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionCookieName = "catalog_session"
	defaultSessionTTL = 24 * time.Hour
	defaultUserRole   = "user"
)

// AuthHandler provides session endpoints. The session is an HS256 JWT
// carried in an HttpOnly cookie; a Bearer header is accepted as well for
// non-browser clients.
type AuthHandler struct {
	userService  *services.UserService
	secret       []byte
	sessionTTL   time.Duration
	cookieSecure bool
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, secret string, cookieSecure bool) *AuthHandler {
	return &AuthHandler{
		userService:  userService,
		secret:       []byte(secret),
		sessionTTL:   defaultSessionTTL,
		cookieSecure: cookieSecure,
	}
}

// AuthRouter registers auth routes on the given router. Credential
// endpoints are rate limited by client IP.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	limit := httpx.RateLimit(httpx.StrictLimit, httpx.IPKey)

	r.With(limit).Post("/register", handler.Register)
	r.With(limit).Post("/login", handler.Login)
	r.Post("/logout", handler.Logout)
	r.Get("/check", handler.Check)
}

// RequireAuth enforces a valid session and injects the user id into the
// request context. Every store operation behind it runs only after this
// gate passes.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := h.sessionSubject(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "please login first")
			return
		}

		ctx := context.WithValue(r.Context(), contextSubjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Register creates a new user account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Name == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "please provide email, password, and name")
		return
	}

	if _, err := h.userService.GetByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	user, err := h.userService.Create(r.Context(), types.User{
		Email:        req.Email,
		Name:         req.Name,
		Role:         defaultUserRole,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{Success: true, User: user})
}

// Login verifies credentials and establishes the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "please provide email and password")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, err := h.issueToken(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	http.SetCookie(w, h.sessionCookie(token, h.sessionTTL))
	writeJSON(w, http.StatusOK, AuthResponse{Success: true, User: user})
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.sessionCookie("", -time.Hour))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "logged out successfully",
	})
}

// Check reports whether the request carries a valid session. It never
// returns an error status so clients can poll it freely.
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	subject, err := h.sessionSubject(r)
	if err != nil {
		writeJSON(w, http.StatusOK, CheckResponse{IsAuthenticated: false})
		return
	}

	userID, err := strconv.Atoi(subject)
	if err != nil {
		writeJSON(w, http.StatusOK, CheckResponse{IsAuthenticated: false})
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusOK, CheckResponse{IsAuthenticated: false})
		return
	}

	writeJSON(w, http.StatusOK, CheckResponse{IsAuthenticated: true, User: &user})
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Success bool       `json:"success"`
	User    types.User `json:"user"`
}

type CheckResponse struct {
	IsAuthenticated bool        `json:"isAuthenticated"`
	User            *types.User `json:"user,omitempty"`
}

func (h *AuthHandler) sessionCookie(token string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *AuthHandler) issueToken(userID int) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.sessionTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.secret)
}

// sessionSubject extracts and verifies the session token, preferring the
// cookie and falling back to a Bearer header.
func (h *AuthHandler) sessionSubject(r *http.Request) (string, error) {
	tokenString := ""
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		tokenString = cookie.Value
	}
	if tokenString == "" {
		tokenString = bearerToken(r)
	}
	if tokenString == "" {
		return "", errors.New("missing session")
	}

	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return h.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
