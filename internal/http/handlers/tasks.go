package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paypertask/taskhub/internal/cache"
	"github.com/paypertask/taskhub/internal/config"
	"github.com/paypertask/taskhub/internal/domain/task"
	"github.com/paypertask/taskhub/internal/domain/user"
	"github.com/paypertask/taskhub/internal/http/middlewares"
)

type TasksStore interface {
	Create(ctx context.Context, req task.CreateTaskRequest) (task.Task, error)
	Delete(ctx context.Context, id, requesterEmail string, requesterRole user.Role) (refund int64, err error)
	GetByID(ctx context.Context, id string) (task.Task, error)
	ListAvailable(ctx context.Context, limit int) ([]task.Task, error)
	ListByBuyer(ctx context.Context, buyerEmail string) ([]task.Task, error)
	Update(ctx context.Context, id, requesterEmail string, req task.UpdateTaskRequest) (task.Task, error)
}

type TasksHandler struct {
	repo      TasksStore
	listCache *cache.Cache
	wake      func() // nudges the job worker after mutations that enqueue work
}

func NewTasksHandler(repo TasksStore, listCache *cache.Cache, wake func()) *TasksHandler {
	return &TasksHandler{repo: repo, listCache: listCache, wake: wake}
}

const openTasksCacheKey = "tasks:open"

func (h *TasksHandler) CreateTask(ctx *gin.Context) {
	email, ok := middlewares.EmailFromContext(ctx)

	if !ok || email == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	var req task.CreateTaskRequest

	if !BindJSON(ctx, &req) {
		return
	}

	req.BuyerEmail = email

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	t, err := h.repo.Create(cctx, req)

	if err != nil {
		if errors.Is(err, user.ErrInsufficientCoins) {
			RespondUnprocessable(ctx, "insufficient_coins", "Not enough coins to fund this task.")
			return
		}

		RespondInternal(ctx, "Could not create task")
		return
	}

	h.invalidateListCache()

	ctx.JSON(http.StatusCreated, t)
}

func (h *TasksHandler) ListAvailableTasks(ctx *gin.Context) {
	limit := 0

	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			RespondBadRequest(ctx, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}

	// cache only the default page; parameterized queries go to the DB
	if limit == 0 && h.listCache != nil {
		if v, ok := h.listCache.Get(openTasksCacheKey); ok {
			if tasks, ok := v.([]task.Task); ok {
				ctx.JSON(http.StatusOK, gin.H{"items": tasks, "count": len(tasks)})
				return
			}
		}
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tasks, err := h.repo.ListAvailable(cctx, limit)

	if err != nil {
		RespondInternal(ctx, "Could not list tasks")
		return
	}

	if limit == 0 && h.listCache != nil {
		h.listCache.Set(openTasksCacheKey, tasks)
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": tasks,
		"count": len(tasks),
	})
}

func (h *TasksHandler) ListMyTasks(ctx *gin.Context) {
	email, ok := middlewares.EmailFromContext(ctx)

	if !ok || email == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tasks, err := h.repo.ListByBuyer(cctx, email)

	if err != nil {
		RespondInternal(ctx, "Could not list tasks")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": tasks,
		"count": len(tasks),
	})
}

func (h *TasksHandler) GetTaskById(ctx *gin.Context) {
	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	t, err := h.repo.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			RespondNotFound(ctx, "Task not found")
			return
		}
		RespondInternal(ctx, "Could not fetch task")
		return
	}

	ctx.JSON(http.StatusOK, t)
}

func (h *TasksHandler) UpdateTask(ctx *gin.Context) {
	email, ok := middlewares.EmailFromContext(ctx)

	if !ok || email == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	id := ctx.Param("id")

	var req task.UpdateTaskRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	t, err := h.repo.Update(cctx, id, email, req)

	if err != nil {
		switch {
		case errors.Is(err, task.ErrNotFound):
			RespondNotFound(ctx, "Task not found")
		case errors.Is(err, task.ErrForbidden):
			RespondForbidden(ctx, "Only the task owner can update it")
		default:
			RespondInternal(ctx, "Could not update task")
		}
		return
	}

	h.invalidateListCache()

	ctx.JSON(http.StatusOK, t)
}

// DeleteTask refunds unconsumed escrow and voids pending submissions.

func (h *TasksHandler) DeleteTask(ctx *gin.Context) {
	email, ok := middlewares.EmailFromContext(ctx)

	if !ok || email == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	role, _ := middlewares.RoleFromContext(ctx)

	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	refund, err := h.repo.Delete(cctx, id, email, role)

	if err != nil {
		switch {
		case errors.Is(err, task.ErrNotFound):
			RespondNotFound(ctx, "Task not found")
		case errors.Is(err, task.ErrForbidden):
			RespondForbidden(ctx, "Only the task owner or an admin can delete it")
		default:
			RespondInternal(ctx, "Could not delete task")
		}
		return
	}

	h.invalidateListCache()

	if h.wake != nil {
		h.wake()
	}

	ctx.JSON(http.StatusOK, gin.H{
		"deleted":       true,
		"refundedCoins": refund,
	})
}

func (h *TasksHandler) invalidateListCache() {
	if h.listCache != nil {
		h.listCache.Delete(openTasksCacheKey)
	}
}
