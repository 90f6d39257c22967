package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paypertask/taskhub/internal/config"
	"github.com/paypertask/taskhub/internal/domain/user"
	"github.com/paypertask/taskhub/internal/http/middlewares"
)

type UsersStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	List(ctx context.Context, excludeEmail string) ([]user.User, error)
	Delete(ctx context.Context, email string) error
	UpdateRole(ctx context.Context, email string, role user.Role) error
	Stats(ctx context.Context) (user.Stats, error)
}

type UsersHandler struct {
	repo UsersStore
}

func NewUsersHandler(repo UsersStore) *UsersHandler {
	return &UsersHandler{repo: repo}
}

// GetCoins returns a balance; callers may only look up their own.

func (h *UsersHandler) GetCoins(ctx *gin.Context) {
	requester, ok := middlewares.EmailFromContext(ctx)

	if !ok || requester == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	email := ctx.Param("email")

	if email != requester {
		RespondForbidden(ctx, "You can only view your own balance")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.repo.GetByEmail(cctx, email)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not fetch balance")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"coin": u.Coin})
}

// GetRole looks up the role for an email. Only the role leaks; the rest
// of the record stays private.

func (h *UsersHandler) GetRole(ctx *gin.Context) {
	email := ctx.Param("email")

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.repo.GetByEmail(cctx, email)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not fetch role")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"role": u.Role})
}

// Admin surface.

func (h *UsersHandler) ListUsers(ctx *gin.Context) {
	email, _ := middlewares.EmailFromContext(ctx)

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	// the admin does not appear in their own management list
	users, err := h.repo.List(cctx, email)

	if err != nil {
		RespondInternal(ctx, "Could not list users")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": users,
		"count": len(users),
	})
}

func (h *UsersHandler) DeleteUser(ctx *gin.Context) {
	email := ctx.Param("email")

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	err := h.repo.Delete(cctx, email)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		if errors.Is(err, user.ErrHasActivity) {
			RespondConflict(ctx, "user_has_activity", "User has tasks or submissions and cannot be deleted")
			return
		}
		RespondInternal(ctx, "Could not delete user")
		return
	}

	ctx.Status(http.StatusNoContent)
}

type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=buyer worker admin"`
}

func (h *UsersHandler) UpdateUserRole(ctx *gin.Context) {
	email := ctx.Param("email")

	var req UpdateRoleRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	err := h.repo.UpdateRole(cctx, email, user.Role(req.Role))

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}
		RespondInternal(ctx, "Could not update role")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"email": email,
		"role":  req.Role,
	})
}

func (h *UsersHandler) GetStats(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	stats, err := h.repo.Stats(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not fetch stats")
		return
	}

	ctx.JSON(http.StatusOK, stats)
}
