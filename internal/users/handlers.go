package users

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/paygate/internal/idgen"
	"github.com/mbd888/paygate/internal/logging"
	"github.com/mbd888/paygate/internal/validation"
)

// Handler exposes the user directory over HTTP.
type Handler struct {
	store Store
}

// NewHandler creates a new user handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers user routes on the given router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/users", h.CreateUser)
	r.GET("/users", h.ListUsers)
	r.GET("/users/:id", h.GetUser)
	r.PUT("/users/:id", h.UpdateUser)
}

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

// CreateUser handles POST /users
func (h *Handler) CreateUser(c *gin.Context) {
	ctx := c.Request.Context()

	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	req.Username = validation.SanitizeString(req.Username, 50)
	req.Email = validation.SanitizeString(req.Email, 200)
	req.FullName = validation.SanitizeString(req.FullName, 200)

	if errs := validation.Validate(
		validation.Required("username", req.Username),
		validation.Required("email", req.Email),
		validEmail("email", req.Email),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	now := time.Now().UTC()
	user := &User{
		ID:        idgen.WithPrefix("usr_"),
		Username:  req.Username,
		Email:     req.Email,
		FullName:  req.FullName,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "username_taken",
				"message": "A user with this username already exists",
			})
			return
		}
		logging.L(ctx).Error("failed to create user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to create user",
		})
		return
	}

	logging.L(ctx).Info("user created", "userId", user.ID, "username", user.Username)
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// GetUser handles GET /users/:id
func (h *Handler) GetUser(c *gin.Context) {
	ctx := c.Request.Context()

	user, err := h.store.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "User not found",
			})
			return
		}
		logging.L(ctx).Error("failed to get user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get user",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"fullName"`
	Active   *bool   `json:"active"`
}

// UpdateUser handles PUT /users/:id
// Username is immutable; email, full name, and the active flag can change.
func (h *Handler) UpdateUser(c *gin.Context) {
	ctx := c.Request.Context()

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	user, err := h.store.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "User not found",
			})
			return
		}
		logging.L(ctx).Error("failed to get user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get user",
		})
		return
	}

	if req.Email != nil {
		email := validation.SanitizeString(*req.Email, 200)
		if errs := validation.Validate(
			validation.Required("email", email),
			validEmail("email", email),
		); len(errs) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": errs.Error(),
				"details": errs,
			})
			return
		}
		user.Email = email
	}
	if req.FullName != nil {
		user.FullName = validation.SanitizeString(*req.FullName, 200)
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	user.UpdatedAt = time.Now().UTC()

	if err := h.store.Update(ctx, user); err != nil {
		logging.L(ctx).Error("failed to update user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to update user",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// ListUsers handles GET /users
func (h *Handler) ListUsers(c *gin.Context) {
	ctx := c.Request.Context()

	limit := parseIntParam(c.Query("limit"), 50, 200)
	offset := parseIntParam(c.Query("offset"), 0, 1<<30)

	list, err := h.store.List(ctx, limit, offset)
	if err != nil {
		logging.L(ctx).Error("failed to list users", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list users",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users": list,
		"count": len(list),
	})
}

func parseIntParam(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// validEmail is a light sanity check, not full RFC 5322 parsing.
func validEmail(field, value string) func() *validation.ValidationError {
	return func() *validation.ValidationError {
		at := strings.Index(value, "@")
		if at < 1 || at == len(value)-1 || !strings.Contains(value[at+1:], ".") {
			return &validation.ValidationError{Field: field, Message: "must be a valid email address"}
		}
		return nil
	}
}
