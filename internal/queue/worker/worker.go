package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/paypertask/taskhub/internal/jobs"
	"github.com/paypertask/taskhub/internal/notifications"
	"github.com/paypertask/taskhub/internal/observability"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (jobs.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id string, runAt time.Time, errMsg string) error
}

// Waker delivers out-of-band nudges that new jobs were committed; the loop
// still polls so a missed signal only costs one interval.
type Waker interface {
	Channel() <-chan struct{}
}

type Config struct {
	PollInterval time.Duration
	WorkerID     string
}

type Worker struct {
	cfg      Config
	repo     JobsRepository
	notifier notifications.Notifier
	waker    Waker
	prom     *observability.Prom
	log      *slog.Logger
}

func New(cfg Config, repo JobsRepository, notifier notifications.Notifier, waker Waker, prom *observability.Prom, log *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	return &Worker{
		cfg:      cfg,
		repo:     repo,
		notifier: notifier,
		waker:    waker,
		prom:     prom,
		log:      log,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var wake <-chan struct{}
	if w.waker != nil {
		wake = w.waker.Channel()
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker received shutdown signal")
			return nil

		case _, ok := <-wake:
			if !ok {
				// wake source closed; fall back to pure polling
				wake = nil
				continue
			}
			w.drain(ctx)

		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain processes claimable jobs until the queue is empty.
func (w *Worker) drain(ctx context.Context) {
	for {
		processed, err := w.ProcessOne(ctx)

		if err != nil {
			w.log.Error("job processing error", "err", err)
			return
		}
		if !processed {
			return
		}
	}
}

func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)

	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			return false, nil
		}

		return false, err
	}

	start := time.Now()
	err = w.execute(ctx, j)

	if err != nil {
		w.observe(j, "retry", start)
		w.handleFailure(ctx, j, err)
		return true, nil
	}

	err = w.repo.MarkDone(ctx, j.ID)

	if err != nil {
		return true, err
	}

	w.observe(j, "done", start)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, j jobs.Job) error {
	payload, err := jobs.DecodePayload(j)
	if err != nil {
		return err
	}

	if err := jobs.ValidatePayload(j.Type, payload); err != nil {
		return err
	}

	switch p := payload.(type) {
	case jobs.SubmissionResultPayload:
		return w.notifier.SendSubmissionResult(ctx, notifications.SubmissionResultInput{
			Email:        p.WorkerEmail,
			TaskID:       p.TaskID,
			SubmissionID: p.SubmissionID,
			Amount:       p.Amount,
			Approved:     p.Approved,
		})

	case jobs.WithdrawalResultPayload:
		return w.notifier.SendWithdrawalResult(ctx, notifications.WithdrawalResultInput{
			Email:        p.WorkerEmail,
			WithdrawalID: p.WithdrawalID,
			Coins:        p.Coins,
			Approved:     p.Approved,
		})

	case jobs.TaskVoidedPayload:
		return w.notifier.SendTaskVoided(ctx, notifications.TaskVoidedInput{
			Email:  p.WorkerEmail,
			TaskID: p.TaskID,
			Title:  p.Title,
		})

	default:
		return jobs.ErrInvalidJobType
	}
}

func (w *Worker) handleFailure(ctx context.Context, j jobs.Job, cause error) {
	runAt := time.Now().UTC().Add(ExponentialBackoff(j.Attempts))

	if err := w.repo.MarkRetry(ctx, j.ID, runAt, cause.Error()); err != nil {
		w.log.Error("mark retry failed", "job_id", j.ID, "err", err)
	}
}

func (w *Worker) observe(j jobs.Job, result string, start time.Time) {
	if w.prom == nil {
		return
	}
	w.prom.JobResults.WithLabelValues(string(j.Type), result).Inc()
	w.prom.JobDuration.WithLabelValues(string(j.Type), result).Observe(time.Since(start).Seconds())
}
