package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paypertask/taskhub/internal/jobs"
	"github.com/paypertask/taskhub/internal/observability"
)

// JobsRepo stores notification jobs. Marketplace transactions enqueue with
// EnqueueTx so the job commits or rolls back together with the state change.
type JobsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewJobsRepo(pool *pgxpool.Pool, prom *observability.Prom) *JobsRepo {
	return &JobsRepo{pool: pool, prom: prom}
}

func (r *JobsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *JobsRepo) EnqueueTx(ctx context.Context, tx pgx.Tx, t jobs.JobType, payload any) (jobs.Job, error) {
	raw, err := jobs.EncodePayload(t, payload)
	if err != nil {
		return jobs.Job{}, err
	}

	j, err := jobs.NewJob(t, raw, time.Time{})
	if err != nil {
		return jobs.Job{}, err
	}

	err = r.observe("jobs.enqueue_tx", func() error {
		_, e := tx.Exec(ctx, `
			INSERT INTO jobs (id, type, payload, status, attempts, max_tries, run_at, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, j.ID, j.Type, j.Payload, string(j.Status), j.Attempts, j.MaxTries, j.RunAt, j.CreatedAt, j.UpdatedAt)
		return e
	})

	if err != nil {
		return jobs.Job{}, err
	}
	return j, nil
}

// ClaimNext locks and returns the oldest runnable pending job.
func (r *JobsRepo) ClaimNext(ctx context.Context, workerID string) (j jobs.Job, err error) {
	err = r.observe("jobs.claim_next", func() error {
		return r.pool.QueryRow(ctx, `
			UPDATE jobs
			SET status = 'processing',
			    attempts = attempts + 1,
			    locked_by = $1,
			    locked_at = NOW(),
			    updated_at = NOW()
			WHERE id = (
				SELECT id FROM jobs
				WHERE status = 'pending' AND run_at <= NOW()
				ORDER BY run_at ASC
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, type, payload, status, attempts, max_tries, run_at, last_error, created_at, updated_at
		`, workerID).Scan(&j.ID, &j.Type, &j.Payload, &j.Status, &j.Attempts, &j.MaxTries, &j.RunAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = jobs.ErrJobNotFound
		}
		return jobs.Job{}, err
	}
	return j, nil
}

func (r *JobsRepo) MarkDone(ctx context.Context, id string) error {
	var tag pgconn.CommandTag
	var err error

	err = r.observe("jobs.mark_done", func() error {
		tag, err = r.pool.Exec(ctx, `
			UPDATE jobs
			SET status = 'succeeded',
			    locked_at = NULL,
			    locked_by = NULL,
			    last_error = NULL,
			    updated_at = NOW()
			WHERE id = $1
		`, id)
		return err
	})

	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return jobs.ErrJobNotFound
	}
	return nil
}

// MarkRetry reschedules a failed attempt, or fails the job permanently once
// attempts reach max_tries.
func (r *JobsRepo) MarkRetry(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	var tag pgconn.CommandTag
	var err error

	err = r.observe("jobs.mark_retry", func() error {
		tag, err = r.pool.Exec(ctx, `
			UPDATE jobs
			SET status = CASE WHEN attempts >= max_tries THEN 'failed' ELSE 'pending' END,
			    run_at = $2,
			    locked_at = NULL,
			    locked_by = NULL,
			    last_error = $3,
			    updated_at = NOW()
			WHERE id = $1
		`, id, runAt, errMsg)
		return err
	})

	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return jobs.ErrJobNotFound
	}
	return nil
}
