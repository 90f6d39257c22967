package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paypertask/taskhub/internal/domain/task"
	"github.com/paypertask/taskhub/internal/domain/user"
	"github.com/paypertask/taskhub/internal/jobs"
	"github.com/paypertask/taskhub/internal/observability"
)

// TasksRepo owns task existence and remaining_slots. Escrow moves through the
// users repo ledger inside the same transaction, locking task before user.
type TasksRepo struct {
	pool   *pgxpool.Pool
	ledger *UsersRepo
	jobs   *JobsRepo
	prom   *observability.Prom
}

func NewTasksRepo(pool *pgxpool.Pool, ledger *UsersRepo, jobsRepo *JobsRepo, prom *observability.Prom) *TasksRepo {
	return &TasksRepo{pool: pool, ledger: ledger, jobs: jobsRepo, prom: prom}
}

func (repo *TasksRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

const taskColumns = `id, buyer_email, title, description, amount, total_slots, remaining_slots, deadline, created_at, updated_at`

func scanTask(row pgx.Row) (task.Task, error) {
	var t task.Task
	err := row.Scan(&t.ID, &t.BuyerEmail, &t.Title, &t.Description, &t.Amount, &t.TotalSlots, &t.RemainingSlots, &t.Deadline, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// Create inserts the task and debits the buyer's escrow in one transaction.
// An insufficient balance rolls back the insert.
func (repo *TasksRepo) Create(ctx context.Context, req task.CreateTaskRequest) (t task.Task, err error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	t = task.NewFromCreateRequest(req)

	err = repo.observe("tasks.create.insert", func() error {
		_, e := tx.Exec(ctx, `
			INSERT INTO tasks (`+taskColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, t.ID, t.BuyerEmail, t.Title, t.Description, t.Amount, t.TotalSlots, t.RemainingSlots, t.Deadline, t.CreatedAt, t.UpdatedAt)
		return e
	})

	if err != nil {
		return task.Task{}, err
	}

	_, err = repo.ledger.AdjustCoinsTx(ctx, tx, t.BuyerEmail, -t.TotalCost(), "task_escrow")

	if err != nil {
		return task.Task{}, err
	}

	err = tx.Commit(ctx)

	if err != nil {
		return task.Task{}, err
	}

	return t, nil
}

// Delete voids pending submissions, refunds the buyer for every slot that was
// never paid out, and removes the task, all in one transaction. Requires the
// owning buyer or an admin.
func (repo *TasksRepo) Delete(ctx context.Context, id, requesterEmail string, requesterRole user.Role) (refund int64, err error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var t task.Task

	err = repo.observe("tasks.delete.lock", func() error {
		var e error
		t, e = scanTask(tx.QueryRow(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = task.ErrNotFound
		}
		return 0, err
	}

	if t.BuyerEmail != requesterEmail && requesterRole != user.RoleAdmin {
		return 0, task.ErrForbidden
	}

	// void pending submissions; they were never paid, so no coin moves
	var voidedWorkers []string

	err = repo.observe("tasks.delete.void_pending", func() error {
		rows, e := tx.Query(ctx, `
			UPDATE submissions
			SET status = 'rejected', voided = TRUE, updated_at = $2
			WHERE task_id = $1 AND status = 'pending'
			RETURNING worker_email
		`, id, time.Now().UTC())
		if e != nil {
			return e
		}
		defer rows.Close()

		for rows.Next() {
			var w string
			if e := rows.Scan(&w); e != nil {
				return e
			}
			voidedWorkers = append(voidedWorkers, w)
		}
		return rows.Err()
	})

	if err != nil {
		return 0, err
	}

	// refund every slot that never reached an approved worker
	refund = (int64(t.RemainingSlots) + int64(len(voidedWorkers))) * t.Amount

	if refund > 0 {
		_, err = repo.ledger.AdjustCoinsTx(ctx, tx, t.BuyerEmail, refund, "task_refund")

		if err != nil {
			return 0, err
		}
	}

	err = repo.observe("tasks.delete.remove", func() error {
		_, e := tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
		return e
	})

	if err != nil {
		return 0, err
	}

	for _, w := range voidedWorkers {
		_, err = repo.jobs.EnqueueTx(ctx, tx, jobs.JobNotifyTaskVoided, jobs.TaskVoidedPayload{
			TaskID:      t.ID,
			Title:       t.Title,
			WorkerEmail: w,
		})
		if err != nil {
			return 0, err
		}
	}

	err = tx.Commit(ctx)

	if err != nil {
		return 0, err
	}

	return refund, nil
}

func (repo *TasksRepo) GetByID(ctx context.Context, id string) (t task.Task, err error) {
	err = repo.observe("tasks.get_by_id", func() error {
		var e error
		t, e = scanTask(repo.pool.QueryRow(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = task.ErrNotFound
		}
		return task.Task{}, err
	}
	return t, nil
}

// ListAvailable returns open tasks, newest first.
func (repo *TasksRepo) ListAvailable(ctx context.Context, limit int) ([]task.Task, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	return repo.listTasks(ctx, "tasks.list_available", `
		SELECT `+taskColumns+` FROM tasks
		WHERE remaining_slots > 0
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
}

func (repo *TasksRepo) ListByBuyer(ctx context.Context, buyerEmail string) ([]task.Task, error) {
	return repo.listTasks(ctx, "tasks.list_by_buyer", `
		SELECT `+taskColumns+` FROM tasks
		WHERE buyer_email = $1
		ORDER BY created_at DESC, id DESC
	`, buyerEmail)
}

func (repo *TasksRepo) listTasks(ctx context.Context, op, query string, args ...any) (out []task.Task, err error) {
	var rows pgx.Rows

	err = repo.observe(op, func() error {
		rows, err = repo.pool.Query(ctx, query, args...)
		return err
	})

	if err != nil {
		return
	}

	defer rows.Close()

	out = make([]task.Task, 0)

	for rows.Next() {
		t, e := scanTask(rows)
		if e != nil {
			err = e
			return
		}
		out = append(out, t)
	}

	err = rows.Err()
	return
}

// Update patches presentation fields only; buyer ownership is enforced here so
// the check and the write cannot be split by a concurrent delete.
func (repo *TasksRepo) Update(ctx context.Context, id, requesterEmail string, req task.UpdateTaskRequest) (t task.Task, err error) {
	err = repo.observe("tasks.update", func() error {
		var e error
		t, e = scanTask(repo.pool.QueryRow(ctx, `
			UPDATE tasks
			SET title = $3, description = $4, deadline = $5, updated_at = $6
			WHERE id = $1 AND buyer_email = $2
			RETURNING `+taskColumns+`
		`, id, requesterEmail, req.Title, req.Description, req.Deadline, time.Now().UTC()))
		return e
	})

	if err == nil {
		return t, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return task.Task{}, err
	}

	// distinguish a missing task from someone else's task
	var dummy string
	checkErr := repo.observe("tasks.update.exists", func() error {
		return repo.pool.QueryRow(ctx, `SELECT id FROM tasks WHERE id = $1`, id).Scan(&dummy)
	})

	if errors.Is(checkErr, pgx.ErrNoRows) {
		return task.Task{}, task.ErrNotFound
	}
	if checkErr != nil {
		return task.Task{}, checkErr
	}
	return task.Task{}, task.ErrForbidden
}
