package payments

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
)

// LogProvider stands in for the real payment collaborator in dev and tests.
type LogProvider struct{}

func NewLogProvider() *LogProvider { return &LogProvider{} }

func (p *LogProvider) CreateCharge(ctx context.Context, input CreateChargeInput) (Charge, error) {
	// Optional: simulate provider outage
	if os.Getenv("PAYMENTS_FAIL") == "1" {
		return Charge{}, fmt.Errorf("provider down (simulated)")
	}

	secret := "cs_test_" + uuid.NewString()

	log.Printf("payments.create_charge buyer=%s amount_minor=%d currency=%s",
		input.BuyerEmail, input.AmountMinorUnits, input.Currency,
	)
	return Charge{ClientSecret: secret}, nil
}
