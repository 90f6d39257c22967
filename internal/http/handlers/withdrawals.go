package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paypertask/taskhub/internal/config"
	"github.com/paypertask/taskhub/internal/domain/withdrawal"
	"github.com/paypertask/taskhub/internal/http/middlewares"
)

type WithdrawalsStore interface {
	Request(ctx context.Context, workerEmail string, coins int64) (withdrawal.Withdrawal, error)
	Approve(ctx context.Context, id string) (withdrawal.Withdrawal, error)
	Reject(ctx context.Context, id string) (withdrawal.Withdrawal, error)
	ListForWorker(ctx context.Context, workerEmail string) ([]withdrawal.Withdrawal, error)
	ListPending(ctx context.Context) ([]withdrawal.Withdrawal, error)
}

type WithdrawalsHandler struct {
	repo WithdrawalsStore
	wake func()
}

func NewWithdrawalsHandler(repo WithdrawalsStore, wake func()) *WithdrawalsHandler {
	return &WithdrawalsHandler{repo: repo, wake: wake}
}

func (h *WithdrawalsHandler) RequestWithdrawal(ctx *gin.Context) {
	email, ok := middlewares.EmailFromContext(ctx)

	if !ok || email == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	var req withdrawal.RequestWithdrawalRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	w, err := h.repo.Request(cctx, email, req.Coins)

	if err != nil {
		switch {
		case errors.Is(err, withdrawal.ErrBelowMinimum):
			RespondUnprocessable(ctx, "below_minimum", "Withdrawals require at least 20 coins.")
		case errors.Is(err, withdrawal.ErrInsufficientCoins):
			RespondUnprocessable(ctx, "insufficient_coins", "Not enough coins for this withdrawal.")
		default:
			RespondInternal(ctx, "Could not request withdrawal")
		}
		return
	}

	ctx.JSON(http.StatusCreated, w)
}

func (h *WithdrawalsHandler) ListMyWithdrawals(ctx *gin.Context) {
	email, ok := middlewares.EmailFromContext(ctx)

	if !ok || email == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	items, err := h.repo.ListForWorker(cctx, email)

	if err != nil {
		RespondInternal(ctx, "Could not list withdrawals")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

// Admin surface.

func (h *WithdrawalsHandler) ListPendingWithdrawals(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	items, err := h.repo.ListPending(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not list withdrawals")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

func (h *WithdrawalsHandler) ApproveWithdrawal(ctx *gin.Context) {
	h.finalize(ctx, true)
}

func (h *WithdrawalsHandler) RejectWithdrawal(ctx *gin.Context) {
	h.finalize(ctx, false)
}

func (h *WithdrawalsHandler) finalize(ctx *gin.Context, approve bool) {
	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	var (
		w   withdrawal.Withdrawal
		err error
	)

	if approve {
		w, err = h.repo.Approve(cctx, id)
	} else {
		w, err = h.repo.Reject(cctx, id)
	}

	if err != nil {
		switch {
		case errors.Is(err, withdrawal.ErrNotFound):
			RespondNotFound(ctx, "Withdrawal not found")
		case errors.Is(err, withdrawal.ErrAlreadyFinal):
			RespondConflict(ctx, "already_final", "This withdrawal was already decided.")
		case errors.Is(err, withdrawal.ErrInsufficientCoins):
			// balance dropped between request and approval
			RespondUnprocessable(ctx, "insufficient_coins", "Worker no longer has enough coins.")
		default:
			RespondInternal(ctx, "Could not finalize withdrawal")
		}
		return
	}

	if h.wake != nil {
		h.wake()
	}

	ctx.JSON(http.StatusOK, w)
}
