package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/visuluxe/visuluxe/internal/api/dto"
	"github.com/visuluxe/visuluxe/internal/api/middleware"
	"github.com/visuluxe/visuluxe/internal/auth"
)

type AuthHandler struct {
	authService *auth.Service
	otpService  *auth.OTPService
}

func NewAuthHandler(authService *auth.Service, otpService *auth.OTPService) *AuthHandler {
	return &AuthHandler{authService: authService, otpService: otpService}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	resp, err := h.authService.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})

	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "User already exists"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Registration failed"})
		}
		return
	}

	setSessionCookie(w, resp.Token)
	writeJSON(w, http.StatusCreated, dto.AuthResponse{
		Token: resp.Token,
		User: dto.UserDTO{
			ID:    resp.User.ID.String(),
			Email: resp.User.Email,
			Name:  resp.User.Name,
			Role:  resp.User.Role,
		},
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	resp, err := h.authService.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})

	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid credentials"})
		case errors.Is(err, auth.ErrInactiveUser):
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Account is inactive"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Login failed"})
		}
		return
	}

	setSessionCookie(w, resp.Token)
	writeJSON(w, http.StatusOK, dto.AuthResponse{
		Token: resp.Token,
		User: dto.UserDTO{
			ID:    resp.User.ID.String(),
			Email: resp.User.Email,
			Name:  resp.User.Name,
			Role:  resp.User.Role,
		},
	})
}

// RequestOTP issues an email login code. Always returns 200 so the
// endpoint cannot be used to enumerate accounts.
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req dto.OTPRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	if err := h.otpService.Request(r.Context(), req.Email); err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to issue login code"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Success: true, Message: "If the account exists, a login code has been sent"})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req dto.OTPVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	resp, err := h.otpService.Verify(r.Context(), req.Email, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrOTPInvalid):
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid or expired code"})
		case errors.Is(err, auth.ErrInactiveUser):
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Account is inactive"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Login failed"})
		}
		return
	}

	setSessionCookie(w, resp.Token)
	writeJSON(w, http.StatusOK, dto.AuthResponse{
		Token: resp.Token,
		User: dto.UserDTO{
			ID:    resp.User.ID.String(),
			Email: resp.User.Email,
			Name:  resp.User.Name,
			Role:  resp.User.Role,
		},
	})
}

// Me returns the authenticated user's own record.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.GetUserByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return
	}

	writeJSON(w, http.StatusOK, dto.UserDTO{
		ID:    user.ID.String(),
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Success: true, Message: "Logged out"})
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   false, // Set to true in production with HTTPS
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400, // 24 hours
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
