package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paypertask/taskhub/internal/domain/user"
	"github.com/paypertask/taskhub/internal/domain/withdrawal"
	"github.com/paypertask/taskhub/internal/jobs"
	"github.com/paypertask/taskhub/internal/observability"
)

// WithdrawalsRepo owns withdrawal requests. The balance check at request time
// is advisory; the debit happens under a row lock at approval, which is when
// the balance is re-validated.
type WithdrawalsRepo struct {
	pool   *pgxpool.Pool
	ledger *UsersRepo
	jobs   *JobsRepo
	prom   *observability.Prom
}

func NewWithdrawalsRepo(pool *pgxpool.Pool, ledger *UsersRepo, jobsRepo *JobsRepo, prom *observability.Prom) *WithdrawalsRepo {
	return &WithdrawalsRepo{pool: pool, ledger: ledger, jobs: jobsRepo, prom: prom}
}

func (repo *WithdrawalsRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

const withdrawalColumns = `id, worker_email, coins, payout_usd, status, created_at, updated_at`

func scanWithdrawal(row pgx.Row) (withdrawal.Withdrawal, error) {
	var w withdrawal.Withdrawal
	err := row.Scan(&w.ID, &w.WorkerEmail, &w.Coins, &w.PayoutUSD, &w.Status, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (repo *WithdrawalsRepo) Request(ctx context.Context, workerEmail string, coins int64) (w withdrawal.Withdrawal, err error) {
	if coins < withdrawal.MinimumCoins {
		return withdrawal.Withdrawal{}, withdrawal.ErrBelowMinimum
	}

	// advisory only; the authoritative check runs at approval
	var balance int64

	err = repo.observe("withdrawals.request.balance_check", func() error {
		return repo.pool.QueryRow(ctx, `SELECT coin FROM users WHERE email = $1`, workerEmail).Scan(&balance)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = user.ErrNotFound
		}
		return withdrawal.Withdrawal{}, err
	}

	if balance < coins {
		return withdrawal.Withdrawal{}, withdrawal.ErrInsufficientCoins
	}

	w = withdrawal.New(workerEmail, coins)

	err = repo.observe("withdrawals.request.insert", func() error {
		_, e := repo.pool.Exec(ctx, `
			INSERT INTO withdrawals (`+withdrawalColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, w.ID, w.WorkerEmail, w.Coins, w.PayoutUSD, w.Status, w.CreatedAt, w.UpdatedAt)
		return e
	})

	if err != nil {
		return withdrawal.Withdrawal{}, err
	}

	return w, nil
}

// Approve debits the worker and flips the request to approved in one
// transaction. A second approve fails on the status check.
func (repo *WithdrawalsRepo) Approve(ctx context.Context, id string) (withdrawal.Withdrawal, error) {
	return repo.finalize(ctx, id, true)
}

// Reject is terminal and moves no coin.
func (repo *WithdrawalsRepo) Reject(ctx context.Context, id string) (withdrawal.Withdrawal, error) {
	return repo.finalize(ctx, id, false)
}

func (repo *WithdrawalsRepo) finalize(ctx context.Context, id string, approve bool) (w withdrawal.Withdrawal, err error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = repo.observe("withdrawals.finalize.lock", func() error {
		var e error
		w, e = scanWithdrawal(tx.QueryRow(ctx,
			`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = withdrawal.ErrNotFound
		}
		return withdrawal.Withdrawal{}, err
	}

	if w.Status != withdrawal.StatusPending {
		return withdrawal.Withdrawal{}, withdrawal.ErrAlreadyFinal
	}

	if approve {
		w.Status = withdrawal.StatusApproved

		// re-validate under the user row lock; the advisory check at request
		// time may have been overtaken by other spending
		_, err = repo.ledger.AdjustCoinsTx(ctx, tx, w.WorkerEmail, -w.Coins, "withdrawal_payout")

		if err != nil {
			if errors.Is(err, user.ErrInsufficientCoins) {
				err = withdrawal.ErrInsufficientCoins
			}
			return withdrawal.Withdrawal{}, err
		}
	} else {
		w.Status = withdrawal.StatusRejected
	}

	err = repo.observe("withdrawals.finalize.flip", func() error {
		_, e := tx.Exec(ctx, `
			UPDATE withdrawals SET status = $2, updated_at = NOW() WHERE id = $1
		`, id, w.Status)
		return e
	})

	if err != nil {
		return withdrawal.Withdrawal{}, err
	}

	_, err = repo.jobs.EnqueueTx(ctx, tx, jobs.JobNotifyWithdrawalResult, jobs.WithdrawalResultPayload{
		WithdrawalID: w.ID,
		WorkerEmail:  w.WorkerEmail,
		Coins:        w.Coins,
		Approved:     approve,
	})

	if err != nil {
		return withdrawal.Withdrawal{}, err
	}

	err = tx.Commit(ctx)

	if err != nil {
		return withdrawal.Withdrawal{}, err
	}

	return w, nil
}

func (repo *WithdrawalsRepo) ListForWorker(ctx context.Context, workerEmail string) ([]withdrawal.Withdrawal, error) {
	return repo.list(ctx, "withdrawals.list_for_worker", `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE worker_email = $1
		ORDER BY created_at DESC, id DESC
	`, workerEmail)
}

// ListPending feeds the admin approval queue, oldest first.
func (repo *WithdrawalsRepo) ListPending(ctx context.Context) ([]withdrawal.Withdrawal, error) {
	return repo.list(ctx, "withdrawals.list_pending", `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
	`)
}

func (repo *WithdrawalsRepo) list(ctx context.Context, op, query string, args ...any) (out []withdrawal.Withdrawal, err error) {
	var rows pgx.Rows

	err = repo.observe(op, func() error {
		rows, err = repo.pool.Query(ctx, query, args...)
		return err
	})

	if err != nil {
		return
	}

	defer rows.Close()

	out = make([]withdrawal.Withdrawal, 0)

	for rows.Next() {
		w, e := scanWithdrawal(rows)
		if e != nil {
			err = e
			return
		}
		out = append(out, w)
	}

	err = rows.Err()
	return
}
