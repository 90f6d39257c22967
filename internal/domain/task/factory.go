package task

import (
	"time"

	"github.com/google/uuid"
)

// A factory to build a Task from the incoming DTO

func NewFromCreateRequest(req CreateTaskRequest) Task {
	now := time.Now().UTC()

	return Task{
		ID:             uuid.NewString(),
		BuyerEmail:     req.BuyerEmail,
		Title:          req.Title,
		Description:    req.Description,
		Amount:         req.Amount,
		TotalSlots:     req.Slots,
		RemainingSlots: req.Slots,
		Deadline:       req.Deadline,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
