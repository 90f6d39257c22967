package payments

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// CoinPack is a purchasable bundle of coins.
type CoinPack struct {
	Coins    int64 `json:"coins"`
	PriceUSD int64 `json:"priceUsd"` // whole dollars
}

// Packs are the fixed storefront options.
var Packs = []CoinPack{
	{Coins: 10, PriceUSD: 1},
	{Coins: 150, PriceUSD: 10},
	{Coins: 500, PriceUSD: 20},
	{Coins: 1000, PriceUSD: 35},
}

var ErrUnknownPack = errors.New("unknown coin pack")

// PackByCoins looks a pack up by its coin size.
func PackByCoins(coins int64) (CoinPack, error) {
	for _, p := range Packs {
		if p.Coins == coins {
			return p, nil
		}
	}
	return CoinPack{}, ErrUnknownPack
}

// MinorUnits converts the pack price to cents for the charge call.
func (p CoinPack) MinorUnits() int64 {
	return decimal.NewFromInt(p.PriceUSD).Mul(decimal.NewFromInt(100)).IntPart()
}

type CreateChargeInput struct {
	AmountMinorUnits int64
	Currency         string
	BuyerEmail       string
}

type Charge struct {
	ClientSecret string
}

// Provider is the external payment collaborator. The core only needs a
// charge token; confirmation credits coins back through the ledger.
type Provider interface {
	CreateCharge(ctx context.Context, input CreateChargeInput) (Charge, error)
}
