package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/riteshshukladev/wrapper/internal/auth"
	"github.com/riteshshukladev/wrapper/internal/service"
	apperrors "github.com/riteshshukladev/wrapper/pkg/errors"
	"github.com/riteshshukladev/wrapper/pkg/httputil"
	"github.com/riteshshukladev/wrapper/pkg/middleware"
	"github.com/riteshshukladev/wrapper/pkg/validator"
)

// AuthHandler handles HTTP requests for the /api/auth endpoints.
type AuthHandler struct {
	service *service.SessionService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.SessionService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// SignupRequest is the JSON request body for user registration.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,password,maxbytes=72"`
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenRequest is the JSON request body for refresh and logout. A missing
// token is reported by the service as MISSING_TOKEN.
type TokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// --- Response types ---

// TokenResponse carries a freshly issued pair.
type TokenResponse struct {
	Message      string `json:"message,omitempty"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// UserResponse wraps the authenticated user's profile.
type UserResponse struct {
	User any `json:"user"`
}

func tokenResponse(message string, pair *auth.Pair) TokenResponse {
	return TokenResponse{
		Message:      message,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}
}

// --- Handlers ---

// Signup handles POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	pair, err := h.service.Signup(r.Context(), service.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, tokenResponse("User registered successfully", pair))
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	pair, err := h.service.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, tokenResponse("Logged in successfully", pair))
}

// RefreshToken handles POST /api/auth/refresh-token
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeToken(w, r)
	if !ok {
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, tokenResponse("", pair))
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeToken(w, r)
	if !ok {
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.MessageResponse{Message: "Logged out successfully"})
}

// UserData handles GET /api/auth/user/data
func (h *AuthHandler) UserData(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	profile, err := h.service.GetUserData(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, UserResponse{User: profile})
}

// decodeToken reads a TokenRequest. An empty body decodes to an empty token.
func (h *AuthHandler) decodeToken(w http.ResponseWriter, r *http.Request) (TokenRequest, bool) {
	var req TokenRequest
	if err := validator.Decode(r, &req); err != nil && !errors.Is(err, validator.ErrEmptyBody) {
		httputil.WriteValidationError(w, r, err)
		return req, false
	}
	return req, true
}

// tokenValidator adapts the access token codec to the Auth middleware.
func tokenValidator(svc *service.SessionService) middleware.TokenValidator {
	return func(token string) (*middleware.Principal, error) {
		claims, err := svc.VerifyAccessToken(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Principal{UserID: claims.UserID, Name: claims.Name}, nil
	}
}
