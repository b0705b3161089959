package handlers

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/securenotes/apiserver/config"
	"github.com/securenotes/apiserver/internal/mailer"
	"github.com/securenotes/apiserver/internal/services"
	"github.com/securenotes/apiserver/internal/storage"
	"github.com/securenotes/apiserver/internal/store"
	"github.com/securenotes/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	resetTokenBytes   = 32
	maxPhotoBytes     = 5 << 20
	maxPhotoMemory    = 8 << 20
	formFieldPhoto    = "photo"

	// forgotMessage is returned whether or not the email exists, so the
	// endpoint cannot be used to enumerate accounts.
	forgotMessage = "If that email exists, a reset link will be sent"
)

// AuthHandler provides registration, login and password-reset endpoints.
// Sessions are JWTs carried in an http-only cookie.
type AuthHandler struct {
	userService    *services.UserService
	photos         *storage.Storage
	mail           mailer.Mailer
	logger         *slog.Logger
	session        config.SessionConfig
	resetTokenTTL  time.Duration
	frontendOrigin string
}

// AuthHandlerDeps bundles the collaborators of an AuthHandler.
type AuthHandlerDeps struct {
	UserService    *services.UserService
	Photos         *storage.Storage
	Mail           mailer.Mailer
	Logger         *slog.Logger
	Session        config.SessionConfig
	ResetTokenTTL  time.Duration
	FrontendOrigin string
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(deps AuthHandlerDeps) *AuthHandler {
	return &AuthHandler{
		userService:    deps.UserService,
		photos:         deps.Photos,
		mail:           deps.Mail,
		logger:         deps.Logger,
		session:        deps.Session,
		resetTokenTTL:  deps.ResetTokenTTL,
		frontendOrigin: deps.FrontendOrigin,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/logout", handler.Logout)
	r.Post("/forgot", handler.Forgot)
	r.Post("/reset/{token}", handler.Reset)
	r.With(handler.RequireAuth).Get("/profile", handler.Profile)
	r.With(handler.RequireAuth).Put("/profile/photo", handler.UploadPhoto)
	r.With(handler.RequireAuth).Get("/profile/photo", handler.Photo)
}

// RequireAuth enforces session authentication and injects the subject into
// the request context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return requireAuth(h.session)(next)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(session config.SessionConfig) func(http.Handler) http.Handler {
	return requireAuth(session)
}

func requireAuth(session config.SessionConfig) func(http.Handler) http.Handler {
	secret := []byte(session.JWTSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := sessionToken(r, session.CookieName)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			subject, err := parseTokenSubject(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextSubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Register creates a new user account and issues a session cookie.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "a valid email address is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters long")
		return
	}

	if _, err := h.userService.GetByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to check user")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	user, err := h.userService.Create(r.Context(), types.User{
		Email:        req.Email,
		PasswordHash: string(hashed),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	if err := h.issueSession(w, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, SessionResponse{ID: user.ID, Email: user.Email})
}

// Login verifies credentials and issues a session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := h.issueSession(w, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{ID: user.ID, Email: user.Email})
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.session.CookieSecure,
	})
	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// Forgot generates a password-reset token and emails a reset link. The
// response is identical whether or not the account exists.
func (h *AuthHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req ForgotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, MessageResponse{Message: forgotMessage})
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to process request")
		return
	}

	token, err := newResetToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process request")
		return
	}

	expiresAt := time.Now().Add(h.resetTokenTTL)
	if err := h.userService.SetResetToken(r.Context(), user.ID, token, expiresAt); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process request")
		return
	}

	resetURL := fmt.Sprintf("%s/reset/%s", strings.TrimRight(h.frontendOrigin, "/"), token)
	body := fmt.Sprintf(`<p>Click to reset password: <a href="%s">%s</a></p>`, resetURL, resetURL)
	if err := h.mail.Send(r.Context(), user.Email, "Password reset", body); err != nil {
		// Mail failure must not reveal anything to the caller.
		h.logger.Error("failed to send reset mail", "error", err)
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: forgotMessage})
}

// Reset consumes a reset token and sets a new password. Unknown and expired
// tokens produce the same error.
func (h *AuthHandler) Reset(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(chi.URLParam(r, "token"))

	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters long")
		return
	}

	user, err := h.userService.GetByResetToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "invalid or expired token")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}

	if user.ResetTokenExpiresAt == nil || time.Now().After(*user.ResetTokenExpiresAt) {
		writeError(w, http.StatusBadRequest, "invalid or expired token")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}

	// UpdatePassword also clears the token, making it single use.
	if err := h.userService.UpdatePassword(r.Context(), user.ID, string(hashed)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}

	if err := h.issueSession(w, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "password reset successful"})
}

// Profile returns the authenticated caller's identity.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	resp := ProfileResponse{ID: user.ID, Email: user.Email}
	if user.PhotoKey != "" {
		resp.PhotoURL = "/auth/profile/photo"
	}
	writeJSON(w, http.StatusOK, resp)
}

// UploadPhoto stores a profile photo in object storage and records its key
// on the user.
func (h *AuthHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	if h.photos == nil {
		writeError(w, http.StatusServiceUnavailable, "photo uploads are not enabled")
		return
	}

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxPhotoMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	files := r.MultipartForm.File[formFieldPhoto]
	if len(files) != 1 {
		writeError(w, http.StatusBadRequest, "exactly one photo file is required")
		return
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read photo")
		return
	}
	data, err := readFileLimited(file, maxPhotoBytes)
	_ = file.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	key := fmt.Sprintf("avatars/%d/%s", user.ID, uuid.NewString())
	if err := h.photos.Put(r.Context(), key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store photo")
		return
	}

	if err := h.userService.SetPhotoKey(r.Context(), user.ID, key); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store photo")
		return
	}

	if user.PhotoKey != "" {
		if err := h.photos.Delete(r.Context(), user.PhotoKey); err != nil {
			h.logger.Warn("failed to delete previous photo", "key", user.PhotoKey, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, ProfileResponse{ID: user.ID, Email: user.Email, PhotoURL: "/auth/profile/photo"})
}

// Photo streams the caller's profile photo from object storage.
func (h *AuthHandler) Photo(w http.ResponseWriter, r *http.Request) {
	if h.photos == nil {
		writeError(w, http.StatusServiceUnavailable, "photo uploads are not enabled")
		return
	}

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if user.PhotoKey == "" {
		writeError(w, http.StatusNotFound, "no profile photo")
		return
	}

	object, err := h.photos.Get(r.Context(), user.PhotoKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load photo")
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, object)
}

func (h *AuthHandler) currentUser(w http.ResponseWriter, r *http.Request) (types.User, bool) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.User{}, false
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return types.User{}, false
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return types.User{}, false
	}
	return user, true
}

func (h *AuthHandler) issueSession(w http.ResponseWriter, userID int) error {
	token, err := issueToken(userID, []byte(h.session.JWTSecret), h.session.TokenTTL)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.session.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.session.TokenTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.session.CookieSecure,
	})
	return nil
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ForgotRequest struct {
	Email string `json:"email"`
}

type ResetRequest struct {
	Password string `json:"password"`
}

type SessionResponse struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
}

type ProfileResponse struct {
	ID       int    `json:"id"`
	Email    string `json:"email"`
	PhotoURL string `json:"photo_url,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func issueToken(userID int, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseTokenSubject(tokenString string, secret []byte) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
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

// sessionToken extracts the session JWT from the auth cookie, falling back
// to a bearer Authorization header for non-browser clients.
func sessionToken(r *http.Request, cookieName string) (string, error) {
	if cookie, err := r.Cookie(cookieName); err == nil {
		if token := strings.TrimSpace(cookie.Value); token != "" {
			return token, nil
		}
	}

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing session")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

func newResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
