package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paypertask/taskhub/internal/domain/submission"
	"github.com/paypertask/taskhub/internal/domain/task"
	"github.com/paypertask/taskhub/internal/jobs"
	"github.com/paypertask/taskhub/internal/observability"
)

// SubmissionsRepo owns submission status transitions. Claims consume task
// slots under a row lock; approvals pay the worker through the ledger.
type SubmissionsRepo struct {
	pool   *pgxpool.Pool
	ledger *UsersRepo
	jobs   *JobsRepo
	prom   *observability.Prom
}

func NewSubmissionsRepo(pool *pgxpool.Pool, ledger *UsersRepo, jobsRepo *JobsRepo, prom *observability.Prom) *SubmissionsRepo {
	return &SubmissionsRepo{pool: pool, ledger: ledger, jobs: jobsRepo, prom: prom}
}

func (repo *SubmissionsRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

const submissionColumns = `id, task_id, worker_email, buyer_email, amount, details, status, voided, created_at, updated_at`

func scanSubmission(row pgx.Row) (submission.Submission, error) {
	var s submission.Submission
	err := row.Scan(&s.ID, &s.TaskID, &s.WorkerEmail, &s.BuyerEmail, &s.Amount, &s.Details, &s.Status, &s.Voided, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// Claim consumes one slot and records a pending submission atomically.
func (repo *SubmissionsRepo) Claim(ctx context.Context, req submission.ClaimRequest) (sub submission.Submission, err error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// at most one submission per (task, worker)
	var exists bool

	err = repo.observe("submissions.claim.duplicate_check", func() error {
		return tx.QueryRow(ctx, `SELECT EXISTS(
			SELECT 1 FROM submissions
			WHERE task_id = $1 AND worker_email = $2
		)`, req.TaskID, req.WorkerEmail).Scan(&exists)
	})

	if err != nil {
		return
	}

	if exists {
		err = submission.ErrAlreadyClaimed
		return
	}

	// lock the task row, then consume a slot
	var buyerEmail string
	var amount int64
	var remaining int

	err = repo.observe("submissions.claim.slot_lock", func() error {
		return tx.QueryRow(ctx, `
			SELECT buyer_email, amount, remaining_slots
			FROM tasks
			WHERE id = $1
			FOR UPDATE
		`, req.TaskID).Scan(&buyerEmail, &amount, &remaining)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = task.ErrNotFound
		}
		return
	}

	if remaining <= 0 {
		err = submission.ErrNoSlotsAvailable
		return
	}

	err = repo.observe("submissions.claim.decrement", func() error {
		_, e := tx.Exec(ctx, `
			UPDATE tasks
			SET remaining_slots = remaining_slots - 1, updated_at = $2
			WHERE id = $1
		`, req.TaskID, time.Now().UTC())
		return e
	})

	if err != nil {
		return
	}

	sub = submission.NewFromClaim(req, buyerEmail, amount)

	err = repo.observe("submissions.claim.insert", func() error {
		_, e := tx.Exec(ctx, `
			INSERT INTO submissions (`+submissionColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, sub.ID, sub.TaskID, sub.WorkerEmail, sub.BuyerEmail, sub.Amount, sub.Details, sub.Status, sub.Voided, sub.CreatedAt, sub.UpdatedAt)
		return e
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "submissions_task_worker_uniq" {
			err = submission.ErrAlreadyClaimed
		}
		return
	}

	err = tx.Commit(ctx)

	if err != nil {
		return
	}

	return sub, nil
}

// Approve pays the worker and flips the submission to approved in one
// transaction. Only the submission's buyer may approve, and only once.
func (repo *SubmissionsRepo) Approve(ctx context.Context, id, requesterEmail string) (sub submission.Submission, err error) {
	return repo.review(ctx, id, requesterEmail, true)
}

// Reject flips the submission to rejected and reopens the slot; the escrow
// stays with the buyer since the worker was never paid.
func (repo *SubmissionsRepo) Reject(ctx context.Context, id, requesterEmail string) (sub submission.Submission, err error) {
	return repo.review(ctx, id, requesterEmail, false)
}

func (repo *SubmissionsRepo) review(ctx context.Context, id, requesterEmail string, approve bool) (sub submission.Submission, err error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = repo.observe("submissions.review.lock", func() error {
		var e error
		sub, e = scanSubmission(tx.QueryRow(ctx,
			`SELECT `+submissionColumns+` FROM submissions WHERE id = $1 FOR UPDATE`, id))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = submission.ErrNotFound
		}
		return submission.Submission{}, err
	}

	if sub.BuyerEmail != requesterEmail {
		return submission.Submission{}, submission.ErrForbidden
	}

	if sub.Status != submission.StatusPending {
		return submission.Submission{}, submission.ErrNotPending
	}

	now := time.Now().UTC()

	if approve {
		sub.Status = submission.StatusApproved

		// the only path that releases escrowed coins to a worker
		_, err = repo.ledger.AdjustCoinsTx(ctx, tx, sub.WorkerEmail, sub.Amount, "submission_payout")

		if err != nil {
			return submission.Submission{}, err
		}
	} else {
		sub.Status = submission.StatusRejected

		// the slot goes back to the pool; lock order is task before user,
		// and reject touches no user row at all
		err = repo.observe("submissions.review.reopen_slot", func() error {
			_, e := tx.Exec(ctx, `
				UPDATE tasks
				SET remaining_slots = remaining_slots + 1, updated_at = $2
				WHERE id = $1
			`, sub.TaskID, now)
			return e
		})

		if err != nil {
			return submission.Submission{}, err
		}
	}

	sub.UpdatedAt = now

	err = repo.observe("submissions.review.flip", func() error {
		_, e := tx.Exec(ctx, `
			UPDATE submissions SET status = $2, updated_at = $3 WHERE id = $1
		`, id, sub.Status, now)
		return e
	})

	if err != nil {
		return submission.Submission{}, err
	}

	_, err = repo.jobs.EnqueueTx(ctx, tx, jobs.JobNotifySubmissionResult, jobs.SubmissionResultPayload{
		SubmissionID: sub.ID,
		TaskID:       sub.TaskID,
		WorkerEmail:  sub.WorkerEmail,
		Amount:       sub.Amount,
		Approved:     approve,
	})

	if err != nil {
		return submission.Submission{}, err
	}

	err = tx.Commit(ctx)

	if err != nil {
		return submission.Submission{}, err
	}

	return sub, nil
}

func (repo *SubmissionsRepo) ListForWorker(ctx context.Context, workerEmail string) ([]submission.Submission, error) {
	return repo.list(ctx, "submissions.list_for_worker", `
		SELECT `+submissionColumns+` FROM submissions
		WHERE worker_email = $1
		ORDER BY created_at DESC, id DESC
	`, workerEmail)
}

func (repo *SubmissionsRepo) ListForBuyer(ctx context.Context, buyerEmail string, status *submission.Status) ([]submission.Submission, error) {
	if status != nil {
		return repo.list(ctx, "submissions.list_for_buyer", `
			SELECT `+submissionColumns+` FROM submissions
			WHERE buyer_email = $1 AND status = $2
			ORDER BY created_at DESC, id DESC
		`, buyerEmail, *status)
	}

	return repo.list(ctx, "submissions.list_for_buyer", `
		SELECT `+submissionColumns+` FROM submissions
		WHERE buyer_email = $1
		ORDER BY created_at DESC, id DESC
	`, buyerEmail)
}

func (repo *SubmissionsRepo) list(ctx context.Context, op, query string, args ...any) (out []submission.Submission, err error) {
	var rows pgx.Rows

	err = repo.observe(op, func() error {
		rows, err = repo.pool.Query(ctx, query, args...)
		return err
	})

	if err != nil {
		return
	}

	defer rows.Close()

	out = make([]submission.Submission, 0)

	for rows.Next() {
		s, e := scanSubmission(rows)
		if e != nil {
			err = e
			return
		}
		out = append(out, s)
	}

	err = rows.Err()
	return
}
