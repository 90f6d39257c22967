package withdrawal

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// CoinsPerDollar is the marketplace conversion rate for payouts.
const CoinsPerDollar = 20

// MinimumCoins is the smallest cash-out a worker may request.
const MinimumCoins = CoinsPerDollar

type Withdrawal struct {
	ID          string          `json:"id"`
	WorkerEmail string          `json:"workerEmail"`
	Coins       int64           `json:"coins"`
	PayoutUSD   decimal.Decimal `json:"payoutUsd"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

var (
	ErrNotFound = errors.New("withdrawal request not found")
	// approve/reject on a request that already reached a terminal state
	ErrAlreadyFinal = errors.New("withdrawal request already finalized")
	// the worker does not hold enough coins
	ErrInsufficientCoins = errors.New("insufficient coin balance for withdrawal")
	ErrBelowMinimum      = errors.New("withdrawal below the minimum amount")
)

// PayoutUSD converts a coin amount to dollars at the fixed rate.
func PayoutUSD(coins int64) decimal.Decimal {
	return decimal.NewFromInt(coins).Div(decimal.NewFromInt(CoinsPerDollar)).Round(2)
}

func New(workerEmail string, coins int64) Withdrawal {
	now := time.Now().UTC()

	return Withdrawal{
		ID:          uuid.NewString(),
		WorkerEmail: workerEmail,
		Coins:       coins,
		PayoutUSD:   PayoutUSD(coins),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

type RequestWithdrawalRequest struct {
	WorkerEmail string `json:"-"`
	Coins       int64  `json:"coins" binding:"required,min=1"`
}
