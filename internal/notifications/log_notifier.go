package notifications

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) simulate(ctx context.Context) error {
	// Optional: simulate slow provider
	if msStr := os.Getenv("NOTIFIER_SLEEP_MS"); msStr != "" {
		ms, _ := strconv.Atoi(msStr)
		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	// Optional: simulate provider outage
	if os.Getenv("NOTIFIER_FAIL") == "1" {
		return fmt.Errorf("provider down (simulated)")
	}
	return nil
}

func (n *LogNotifier) SendSubmissionResult(ctx context.Context, in SubmissionResultInput) error {
	if err := n.simulate(ctx); err != nil {
		return err
	}

	log.Printf("notification.submission_result email=%s task=%s submission=%s amount=%d approved=%t",
		in.Email, in.TaskID, in.SubmissionID, in.Amount, in.Approved,
	)
	return nil
}

func (n *LogNotifier) SendWithdrawalResult(ctx context.Context, in WithdrawalResultInput) error {
	if err := n.simulate(ctx); err != nil {
		return err
	}

	log.Printf("notification.withdrawal_result email=%s withdrawal=%s coins=%d approved=%t",
		in.Email, in.WithdrawalID, in.Coins, in.Approved,
	)
	return nil
}

func (n *LogNotifier) SendTaskVoided(ctx context.Context, in TaskVoidedInput) error {
	if err := n.simulate(ctx); err != nil {
		return err
	}

	log.Printf("notification.task_voided email=%s task=%s title=%q", in.Email, in.TaskID, in.Title)
	return nil
}
