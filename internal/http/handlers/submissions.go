package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paypertask/taskhub/internal/config"
	"github.com/paypertask/taskhub/internal/domain/submission"
	"github.com/paypertask/taskhub/internal/domain/task"
	"github.com/paypertask/taskhub/internal/http/middlewares"
)

type SubmissionsStore interface {
	Claim(ctx context.Context, req submission.ClaimRequest) (submission.Submission, error)
	Approve(ctx context.Context, id, requesterEmail string) (submission.Submission, error)
	Reject(ctx context.Context, id, requesterEmail string) (submission.Submission, error)
	ListForWorker(ctx context.Context, workerEmail string) ([]submission.Submission, error)
	ListForBuyer(ctx context.Context, buyerEmail string, status *submission.Status) ([]submission.Submission, error)
}

type SubmissionsHandler struct {
	repo SubmissionsStore
	wake func()
}

func NewSubmissionsHandler(repo SubmissionsStore, wake func()) *SubmissionsHandler {
	return &SubmissionsHandler{repo: repo, wake: wake}
}

// ClaimTask takes one slot on an open task and records a pending submission.

func (h *SubmissionsHandler) ClaimTask(ctx *gin.Context) {
	email, ok := middlewares.EmailFromContext(ctx)

	if !ok || email == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	var req submission.ClaimRequest

	// details are optional; an empty body claims without them
	if ctx.Request.ContentLength > 0 {
		if !BindJSON(ctx, &req) {
			return
		}
	}

	req.TaskID = ctx.Param("id")
	req.WorkerEmail = email

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	sub, err := h.repo.Claim(cctx, req)

	if err != nil {
		switch {
		case errors.Is(err, task.ErrNotFound):
			RespondNotFound(ctx, "Task not found")
		case errors.Is(err, submission.ErrAlreadyClaimed):
			RespondConflict(ctx, "already_claimed", "You already claimed this task.")
		case errors.Is(err, submission.ErrNoSlotsAvailable):
			RespondConflict(ctx, "no_slots", "This task has no open slots left.")
		default:
			RespondInternal(ctx, "Could not claim task")
		}
		return
	}

	ctx.JSON(http.StatusCreated, sub)
}

func (h *SubmissionsHandler) ApproveSubmission(ctx *gin.Context) {
	h.review(ctx, true)
}

func (h *SubmissionsHandler) RejectSubmission(ctx *gin.Context) {
	h.review(ctx, false)
}

func (h *SubmissionsHandler) review(ctx *gin.Context, approve bool) {
	email, ok := middlewares.EmailFromContext(ctx)

	if !ok || email == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	var (
		sub submission.Submission
		err error
	)

	if approve {
		sub, err = h.repo.Approve(cctx, id, email)
	} else {
		sub, err = h.repo.Reject(cctx, id, email)
	}

	if err != nil {
		switch {
		case errors.Is(err, submission.ErrNotFound):
			RespondNotFound(ctx, "Submission not found")
		case errors.Is(err, submission.ErrForbidden):
			RespondForbidden(ctx, "Only the task buyer can review this submission")
		case errors.Is(err, submission.ErrNotPending):
			RespondConflict(ctx, "already_reviewed", "This submission was already reviewed.")
		default:
			RespondInternal(ctx, "Could not review submission")
		}
		return
	}

	if h.wake != nil {
		h.wake()
	}

	ctx.JSON(http.StatusOK, sub)
}

func (h *SubmissionsHandler) ListMySubmissions(ctx *gin.Context) {
	email, ok := middlewares.EmailFromContext(ctx)

	if !ok || email == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	subs, err := h.repo.ListForWorker(cctx, email)

	if err != nil {
		RespondInternal(ctx, "Could not list submissions")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": subs,
		"count": len(subs),
	})
}

// ListReceivedSubmissions returns submissions against the buyer's tasks,
// optionally filtered by ?status=pending|approved|rejected.

func (h *SubmissionsHandler) ListReceivedSubmissions(ctx *gin.Context) {
	email, ok := middlewares.EmailFromContext(ctx)

	if !ok || email == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	var status *submission.Status

	if raw := ctx.Query("status"); raw != "" {
		s := submission.Status(raw)
		if !s.IsValid() {
			RespondBadRequest(ctx, "status must be one of pending, approved, rejected", nil)
			return
		}
		status = &s
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	subs, err := h.repo.ListForBuyer(cctx, email, status)

	if err != nil {
		RespondInternal(ctx, "Could not list submissions")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": subs,
		"count": len(subs),
	})
}
