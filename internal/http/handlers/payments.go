package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paypertask/taskhub/internal/config"
	"github.com/paypertask/taskhub/internal/http/middlewares"
	"github.com/paypertask/taskhub/internal/payments"
)

// CoinCrediter is the ledger append used after a confirmed purchase.
type CoinCrediter interface {
	AdjustCoins(ctx context.Context, email string, delta int64, reason string) (balance int64, err error)
}

type PaymentsHandler struct {
	provider payments.Provider
	ledger   CoinCrediter
}

func NewPaymentsHandler(provider payments.Provider, ledger CoinCrediter) *PaymentsHandler {
	return &PaymentsHandler{provider: provider, ledger: ledger}
}

func (h *PaymentsHandler) ListPacks(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"items": payments.Packs,
		"count": len(payments.Packs),
	})
}

type CreateIntentRequest struct {
	Coins int64 `json:"coins" binding:"required,min=1"`
}

// CreateIntent starts a purchase: looks the pack up and asks the provider
// for a charge token the client completes out of band.

func (h *PaymentsHandler) CreateIntent(ctx *gin.Context) {
	email, ok := middlewares.EmailFromContext(ctx)

	if !ok || email == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	var req CreateIntentRequest

	if !BindJSON(ctx, &req) {
		return
	}

	pack, err := payments.PackByCoins(req.Coins)

	if err != nil {
		RespondBadRequest(ctx, "No such coin pack", gin.H{"coins": req.Coins})
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	charge, err := h.provider.CreateCharge(cctx, payments.CreateChargeInput{
		AmountMinorUnits: pack.MinorUnits(),
		Currency:         "usd",
		BuyerEmail:       email,
	})

	if err != nil {
		RespondError(ctx, http.StatusBadGateway, "provider_error", "Payment provider unavailable", nil)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"clientSecret": charge.ClientSecret,
		"coins":        pack.Coins,
		"priceUsd":     pack.PriceUSD,
	})
}

type ConfirmPurchaseRequest struct {
	Coins     int64  `json:"coins" binding:"required,min=1"`
	PaymentID string `json:"paymentId" binding:"required"`
}

// ConfirmPurchase credits the pack once the client reports a completed
// charge. The ledger write carries the provider's payment id as the
// journal reason suffix for reconciliation.

func (h *PaymentsHandler) ConfirmPurchase(ctx *gin.Context) {
	email, ok := middlewares.EmailFromContext(ctx)

	if !ok || email == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	var req ConfirmPurchaseRequest

	if !BindJSON(ctx, &req) {
		return
	}

	pack, err := payments.PackByCoins(req.Coins)

	if err != nil {
		if errors.Is(err, payments.ErrUnknownPack) {
			RespondBadRequest(ctx, "No such coin pack", gin.H{"coins": req.Coins})
			return
		}
		RespondInternal(ctx, "Could not confirm purchase")
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	balance, err := h.ledger.AdjustCoins(cctx, email, pack.Coins, "coin_purchase:"+req.PaymentID)

	if err != nil {
		RespondInternal(ctx, "Could not credit coins")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"coins":   pack.Coins,
		"balance": balance,
	})
}
