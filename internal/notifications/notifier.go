package notifications

import "context"

type SubmissionResultInput struct {
	Email        string
	TaskID       string
	SubmissionID string
	Amount       int64
	Approved     bool
}

type WithdrawalResultInput struct {
	Email        string
	WithdrawalID string
	Coins        int64
	Approved     bool
}

type TaskVoidedInput struct {
	Email  string
	TaskID string
	Title  string
}

type Notifier interface {
	SendSubmissionResult(ctx context.Context, input SubmissionResultInput) error
	SendWithdrawalResult(ctx context.Context, input WithdrawalResultInput) error
	SendTaskVoided(ctx context.Context, input TaskVoidedInput) error
}
