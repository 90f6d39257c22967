package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/paypertask/taskhub/internal/jobs"
	"github.com/paypertask/taskhub/internal/notifications"
)

type fakeJobsRepo struct {
	claimFn func(ctx context.Context, workerID string) (jobs.Job, error)
	done    []string
	retries []string
}

func (f *fakeJobsRepo) ClaimNext(ctx context.Context, workerID string) (jobs.Job, error) {
	if f.claimFn != nil {
		return f.claimFn(ctx, workerID)
	}
	return jobs.Job{}, jobs.ErrJobNotFound
}

func (f *fakeJobsRepo) MarkDone(ctx context.Context, id string) error {
	f.done = append(f.done, id)
	return nil
}

func (f *fakeJobsRepo) MarkRetry(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	f.retries = append(f.retries, id)
	return nil
}

type fakeNotifier struct {
	submissionCalls int
	withdrawalCalls int
	voidedCalls     int
	err             error
}

func (f *fakeNotifier) SendSubmissionResult(ctx context.Context, input notifications.SubmissionResultInput) error {
	f.submissionCalls++
	return f.err
}

func (f *fakeNotifier) SendWithdrawalResult(ctx context.Context, input notifications.WithdrawalResultInput) error {
	f.withdrawalCalls++
	return f.err
}

func (f *fakeNotifier) SendTaskVoided(ctx context.Context, input notifications.TaskVoidedInput) error {
	f.voidedCalls++
	return f.err
}

func mustJob(t *testing.T, jt jobs.JobType, payload any) jobs.Job {
	t.Helper()

	b, err := jobs.EncodePayload(jt, payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}

	j, err := jobs.NewJob(jt, b, time.Time{})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return j
}

func newTestWorker(repo JobsRepository, n notifications.Notifier) *Worker {
	return New(Config{WorkerID: "test-worker"}, repo, n, nil, nil, slog.Default())
}

func TestProcessOne_Success(t *testing.T) {
	j := mustJob(t, jobs.JobNotifySubmissionResult, jobs.SubmissionResultPayload{
		SubmissionID: "sub-1",
		TaskID:       "task-1",
		WorkerEmail:  "w@x.com",
		Amount:       10,
		Approved:     true,
	})

	repo := &fakeJobsRepo{
		claimFn: func(ctx context.Context, workerID string) (jobs.Job, error) {
			return j, nil
		},
	}
	notifier := &fakeNotifier{}

	w := newTestWorker(repo, notifier)

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !processed {
		t.Fatal("expected a job to be processed")
	}

	if notifier.submissionCalls != 1 {
		t.Fatalf("notifier calls = %d, want 1", notifier.submissionCalls)
	}
	if len(repo.done) != 1 || repo.done[0] != j.ID {
		t.Fatalf("done = %v, want [%s]", repo.done, j.ID)
	}
}

func TestProcessOne_EmptyQueue(t *testing.T) {
	w := newTestWorker(&fakeJobsRepo{}, &fakeNotifier{})

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if processed {
		t.Fatal("expected no job on an empty queue")
	}
}

func TestProcessOne_NotifierFailureSchedulesRetry(t *testing.T) {
	j := mustJob(t, jobs.JobNotifyWithdrawalResult, jobs.WithdrawalResultPayload{
		WithdrawalID: "wd-1",
		WorkerEmail:  "w@x.com",
		Coins:        40,
		Approved:     false,
	})

	repo := &fakeJobsRepo{
		claimFn: func(ctx context.Context, workerID string) (jobs.Job, error) {
			return j, nil
		},
	}
	notifier := &fakeNotifier{err: errors.New("smtp down")}

	w := newTestWorker(repo, notifier)

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !processed {
		t.Fatal("a failed job still counts as processed")
	}

	if len(repo.retries) != 1 || repo.retries[0] != j.ID {
		t.Fatalf("retries = %v, want [%s]", repo.retries, j.ID)
	}
	if len(repo.done) != 0 {
		t.Fatalf("done = %v, want none", repo.done)
	}
}

func TestProcessOne_CorruptPayloadRetries(t *testing.T) {
	j, err := jobs.NewJob(jobs.JobNotifyTaskVoided, []byte(`{not json`), time.Time{})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	repo := &fakeJobsRepo{
		claimFn: func(ctx context.Context, workerID string) (jobs.Job, error) {
			return j, nil
		},
	}
	notifier := &fakeNotifier{}

	w := newTestWorker(repo, notifier)

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}

	if notifier.voidedCalls != 0 {
		t.Fatal("notifier must not run on a corrupt payload")
	}
	if len(repo.retries) != 1 {
		t.Fatalf("retries = %v, want one entry", repo.retries)
	}
}

func TestExponentialBackoff_Grows(t *testing.T) {
	prev := time.Duration(0)

	for attempt := 1; attempt <= 5; attempt++ {
		d := ExponentialBackoff(attempt)
		if d <= prev {
			t.Fatalf("backoff(%d) = %s, want > %s", attempt, d, prev)
		}
		prev = d
	}
}
