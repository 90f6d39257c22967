package task

import (
	"errors"
	"time"
)

type Task struct {
	ID             string     `json:"id"`
	BuyerEmail     string     `json:"buyerEmail"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Amount         int64      `json:"amount"`   // coins paid per approved worker
	TotalSlots     int        `json:"totalSlots"`
	RemainingSlots int        `json:"remainingSlots"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// TotalCost is the escrow debited from the buyer at creation.
func (t Task) TotalCost() int64 {
	return t.Amount * int64(t.TotalSlots)
}

var ErrNotFound = errors.New("task not found")

// requester is neither the owning buyer nor an admin
var ErrForbidden = errors.New("not allowed to manage this task")

type CreateTaskRequest struct {
	BuyerEmail  string     `json:"-"`
	Title       string     `json:"title" binding:"required,min=3,max=120"`
	Description string     `json:"description" binding:"omitempty,max=2000"`
	Amount      int64      `json:"amount" binding:"required,min=1,max=100000"`
	Slots       int        `json:"slots" binding:"required,min=1,max=1000"`
	Deadline    *time.Time `json:"deadline" binding:"omitempty"`
}

// Only presentation fields are patchable; amount and slots are frozen once the
// escrow is funded so the held coins can never desynchronize from the task.
type UpdateTaskRequest struct {
	Title       string     `json:"title" binding:"required,min=3,max=120"`
	Description string     `json:"description" binding:"omitempty,max=2000"`
	Deadline    *time.Time `json:"deadline" binding:"omitempty"`
}
