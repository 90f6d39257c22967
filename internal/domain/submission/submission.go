package submission

import (
	"errors"
	"time"

	"github.com/google/uuid"
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

// Pending is the only mutable state; approved and rejected are terminal.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Amount and BuyerEmail are snapshots taken from the task at claim time, so a
// later task edit can never change what an already-claimed slot pays out.
type Submission struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"taskId"`
	WorkerEmail string    `json:"workerEmail"`
	BuyerEmail  string    `json:"buyerEmail"`
	Amount      int64     `json:"amount"`
	Details     string    `json:"details,omitempty"`
	Status      Status    `json:"status"`
	Voided      bool      `json:"voided,omitempty"` // rejected by task deletion, not by the buyer
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

var (
	ErrNotFound = errors.New("submission not found")
	// the worker already holds a submission for this task
	ErrAlreadyClaimed = errors.New("submission already exists for this task")
	// the task has no open slots left
	ErrNoSlotsAvailable = errors.New("no slots available")
	// approve/reject on a submission that is no longer pending
	ErrNotPending = errors.New("submission is not pending")
	// requester is not the submission's buyer
	ErrForbidden = errors.New("not allowed to review this submission")
)

type ClaimRequest struct {
	TaskID      string `json:"-"`
	WorkerEmail string `json:"-"`
	Details     string `json:"details" binding:"omitempty,max=5000"`
}

func NewFromClaim(req ClaimRequest, buyerEmail string, amount int64) Submission {
	now := time.Now().UTC()

	return Submission{
		ID:          uuid.NewString(),
		TaskID:      req.TaskID,
		WorkerEmail: req.WorkerEmail,
		BuyerEmail:  buyerEmail,
		Amount:      amount,
		Details:     req.Details,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
