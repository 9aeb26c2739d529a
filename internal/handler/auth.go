package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"wbtrack-rest-api/internal/model"
	"wbtrack-rest-api/internal/service"
	"wbtrack-rest-api/pkg/apierror"
	"wbtrack-rest-api/pkg/response"
)

// AuthHandler handles authentication-related HTTP requests.
type AuthHandler struct {
	auth     *service.AuthService
	validate *validator.Validate
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		validate: newValidator(),
	}
}

// RegisterRequest represents the request body for registration.
type RegisterRequest struct {
	UserID        *int64  `json:"user_id" validate:"omitempty,gt=0"`
	Username      string  `json:"username" validate:"required,min=3,max=64"`
	Password      string  `json:"password" validate:"required,min=8,max=128"`
	FirstName     *string `json:"first_name" validate:"omitempty,max=255"`
	LastName      *string `json:"last_name" validate:"omitempty,max=255"`
	Language      *string `json:"language" validate:"omitempty,max=16"`
	IsBot         bool    `json:"is_bot"`
	PremiumStatus *string `json:"premium_status" validate:"omitempty,max=32"`
}

// MessageResponse carries a human-readable outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(req); err != nil {
		if details, ok := validationDetails(err); ok {
			response.Error(w, apierror.ValidationError("Validation failed", details...))
			return
		}
		response.Error(w, apierror.BadRequest(err.Error()))
		return
	}

	in := model.NewUser{
		Username:      req.Username,
		Password:      req.Password,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Language:      req.Language,
		IsBot:         req.IsBot,
		PremiumStatus: req.PremiumStatus,
	}
	if req.UserID != nil {
		in.ID = *req.UserID
	}

	user, err := h.auth.Register(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Created(w, user)
}

// LoginByUsername handles POST /auth/auth-by-username
// Credentials arrive as an OAuth2 password form.
func (h *AuthHandler) LoginByUsername(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		response.Error(w, apierror.BadRequest("invalid form body"))
		return
	}

	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if details := requireFields("username", username, "password", password); details != nil {
		response.Error(w, apierror.ValidationError("Validation failed", details...))
		return
	}

	pair, err := h.auth.LoginByUsername(r.Context(), username, password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.OK(w, pair)
}

// LoginByUserID handles POST /auth/auth-by-user-id?user_id=&password=
func (h *AuthHandler) LoginByUserID(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawID := q.Get("user_id")
	password := q.Get("password")
	if details := requireFields("user_id", rawID, "password", password); details != nil {
		response.Error(w, apierror.ValidationError("Validation failed", details...))
		return
	}

	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		response.Error(w, apierror.ValidationError("Validation failed",
			apierror.FieldError{Field: "user_id", Message: "must be an integer"}))
		return
	}

	pair, err := h.auth.LoginByUserID(r.Context(), userID, password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.OK(w, pair)
}

// ChangePassword handles POST /auth/change-password?old_password=&new_password=
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	oldPassword := q.Get("old_password")
	newPassword := q.Get("new_password")
	if details := requireFields("old_password", oldPassword, "new_password", newPassword); details != nil {
		response.Error(w, apierror.ValidationError("Validation failed", details...))
		return
	}

	if err := h.auth.ChangePassword(r.Context(), user, oldPassword, newPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.OK(w, MessageResponse{Message: "Password changed successfully"})
}

// UserInfo handles GET /auth/user-info
func (h *AuthHandler) UserInfo(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	info, err := h.auth.UserInfo(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.OK(w, info)
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.auth.Logout(r.Context(), user); err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.OK(w, MessageResponse{Message: fmt.Sprintf("User %s logged out", user.Username)})
}

// requireFields takes name, value pairs and reports every empty value.
func requireFields(pairs ...string) []apierror.FieldError {
	var details []apierror.FieldError
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			details = append(details, apierror.FieldError{Field: pairs[i], Message: "is required"})
		}
	}
	return details
}
