package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/warden/internal/lifecycle"
	"github.com/charlesng35/warden/internal/middleware"
	"github.com/charlesng35/warden/internal/models"
	"github.com/charlesng35/warden/internal/store"
	apperrors "github.com/charlesng35/warden/pkg/errors"
	"github.com/charlesng35/warden/pkg/response"
	"github.com/charlesng35/warden/pkg/validator"
)

// SessionsHandler exposes the authentication lifecycle over HTTP. Handlers
// stay thin: every decision lives in the driver and the lifecycle services.
type SessionsHandler struct {
	identities  store.Identities
	confirmable *lifecycle.Confirmable
	recoverable *lifecycle.Recoverable
	lockable    *lifecycle.Lockable
}

// NewSessionsHandler wires the handler. The lifecycle services may be nil
// when the matching feature is disabled.
func NewSessionsHandler(identities store.Identities, confirmable *lifecycle.Confirmable, recoverable *lifecycle.Recoverable, lockable *lifecycle.Lockable) (*SessionsHandler, error) {
	if identities == nil {
		return nil, errors.New("sessions handler: identity store is required")
	}
	return &SessionsHandler{
		identities:  identities,
		confirmable: confirmable,
		recoverable: recoverable,
		lockable:    lockable,
	}, nil
}

// Register mounts the session routes on the group.
func (h *SessionsHandler) Register(r *gin.RouterGroup) {
	r.POST("/signup", h.SignUp)
	r.POST("/login", h.Login)
	r.POST("/logout", middleware.RequireAuth(), h.Logout)
	r.GET("/me", middleware.RequireAuth(), h.Me)

	r.POST("/confirm", h.Confirm)
	r.POST("/confirm/resend", h.ResendConfirmation)
	r.POST("/password/forgot", h.ForgotPassword)
	r.POST("/password/reset", h.ResetPassword)
	r.POST("/unlock", h.Unlock)
}

type signUpRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignUp creates an account. When confirmation is enabled the account starts
// unconfirmed and the instructions go out immediately.
func (h *SessionsHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}
	if err := validator.ValidateStruct(req); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}

	user := &models.User{
		Username:    req.Username,
		Email:       req.Email,
		IsConfirmed: h.confirmable == nil,
	}
	if err := lifecycle.SetPassword(user, req.Password); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.identities.Save(c.Request.Context(), user); err != nil {
		response.Error(c, err)
		return
	}

	if h.confirmable != nil {
		if _, err := h.confirmable.SendInstructions(c.Request.Context(), user); err != nil {
			response.Error(c, err)
			return
		}
	}

	response.Success(c, http.StatusCreated, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
	Remember   bool   `json:"remember"`
}

// Login authenticates the identifier/password pair. A failed pair gets a
// generic 401; locked and unconfirmed accounts get their specific errors.
func (h *SessionsHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}
	if err := validator.ValidateStruct(req); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}

	driver, ok := middleware.DriverFrom(c)
	if !ok {
		response.Error(c, apperrors.ErrInternalServer)
		return
	}

	authed, err := driver.Authenticate(c.Request.Context(), req.Identifier, req.Password, req.Remember)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !authed {
		response.Error(c, apperrors.ErrInvalidCredentials)
		return
	}

	user := driver.CurrentUser(c.Request.Context())
	response.Success(c, http.StatusOK, gin.H{
		"id":       user.ID,
		"username": user.Username,
	})
}

type logoutRequest struct {
	Destroy bool `json:"destroy"`
}

// Logout revokes the caller's tokens. Without destroy the session survives
// with a fresh id; with it the whole session goes.
func (h *SessionsHandler) Logout(c *gin.Context) {
	var req logoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
			return
		}
	}

	driver, ok := middleware.DriverFrom(c)
	if !ok {
		response.Error(c, apperrors.ErrInternalServer)
		return
	}

	if err := driver.Logout(c.Request.Context(), req.Destroy); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, nil)
}

// Me returns the authenticated user.
func (h *SessionsHandler) Me(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roles = append(roles, role.Name)
	}

	response.Success(c, http.StatusOK, gin.H{
		"id":                 user.ID,
		"username":           user.Username,
		"email":              user.Email,
		"roles":              roles,
		"sign_in_count":      user.SignInCount,
		"current_sign_in_at": user.CurrentSignInAt,
		"last_sign_in_at":    user.LastSignInAt,
	})
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// Confirm redeems a confirmation token.
func (h *SessionsHandler) Confirm(c *gin.Context) {
	if h.confirmable == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}
	if err := validator.ValidateStruct(req); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}

	user, err := h.confirmable.Confirm(c.Request.Context(), req.Token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"username": user.Username})
}

type identifierRequest struct {
	Identifier string `json:"identifier" validate:"required"`
}

// ResendConfirmation re-issues confirmation instructions. Unknown
// identifiers are acknowledged identically so the endpoint cannot be used
// to probe for accounts.
func (h *SessionsHandler) ResendConfirmation(c *gin.Context) {
	if h.confirmable == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	var req identifierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}
	if err := validator.ValidateStruct(req); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}

	user, err := h.identities.FindByUsernameOrEmail(c.Request.Context(), req.Identifier)
	if err == nil && !user.IsConfirmed {
		if _, err := h.confirmable.SendInstructions(c.Request.Context(), user); err != nil {
			response.Error(c, err)
			return
		}
	}
	response.Success(c, http.StatusOK, nil)
}

// ForgotPassword issues reset instructions, acknowledging unknown
// identifiers identically.
func (h *SessionsHandler) ForgotPassword(c *gin.Context) {
	if h.recoverable == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	var req identifierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}
	if err := validator.ValidateStruct(req); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}

	if user, err := h.identities.FindByUsernameOrEmail(c.Request.Context(), req.Identifier); err == nil {
		if _, err := h.recoverable.SendInstructions(c.Request.Context(), user); err != nil {
			response.Error(c, err)
			return
		}
	}
	response.Success(c, http.StatusOK, nil)
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ResetPassword redeems a reset token and applies the new password.
func (h *SessionsHandler) ResetPassword(c *gin.Context) {
	if h.recoverable == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}
	if err := validator.ValidateStruct(req); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}

	user, err := h.recoverable.ResetByToken(c.Request.Context(), req.Token, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"username": user.Username})
}

// Unlock redeems an emailed unlock token.
func (h *SessionsHandler) Unlock(c *gin.Context) {
	if h.lockable == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}
	if err := validator.ValidateStruct(req); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithInternal(err))
		return
	}

	user, err := h.lockable.UnlockByToken(c.Request.Context(), req.Token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"username": user.Username})
}
