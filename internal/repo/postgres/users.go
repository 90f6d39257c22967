package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paypertask/taskhub/internal/domain/user"
	"github.com/paypertask/taskhub/internal/observability"
)

var ErrEmailAlreadyUsed = errors.New("email already in use")

// UsersRepo is also the coin ledger: AdjustCoinsTx is the only code that
// writes users.coin, and every composite operation calls it inside its own
// transaction.
type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const userColumns = `id, email, password_hash, name, role, coin, created_at, updated_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.Coin, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *UsersRepo) Create(ctx context.Context, email, passwordHash, name string, role user.Role, startingCoins int64) (u user.User, err error) {
	now := time.Now().UTC()

	u = user.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
		Coin:         startingCoins,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = r.observe("users.create", func() error {
		_, e := r.pool.Exec(ctx,
			`INSERT INTO users (`+userColumns+`)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.Coin, u.CreatedAt, u.UpdatedAt,
		)
		return e
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			err = ErrEmailAlreadyUsed
		}
		return user.User{}, err
	}

	if startingCoins != 0 {
		// sign-up grant shows up in the journal like any other movement
		_ = r.observe("users.create.journal", func() error {
			_, e := r.pool.Exec(ctx,
				`INSERT INTO coin_transactions (id, user_email, delta, reason, created_at)
				 VALUES ($1,$2,$3,$4,$5)`,
				uuid.NewString(), u.Email, startingCoins, "signup_grant", now,
			)
			return e
		})
	}

	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User
	err := r.observe("users.get_by_email", func() error {
		var e error
		u, e = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

// List returns every user except the requesting admin.
func (r *UsersRepo) List(ctx context.Context, excludeEmail string) (users []user.User, err error) {
	var rows pgx.Rows

	err = r.observe("users.list", func() error {
		rows, err = r.pool.Query(ctx,
			`SELECT `+userColumns+` FROM users WHERE email <> $1 ORDER BY created_at ASC`,
			excludeEmail,
		)
		return err
	})

	if err != nil {
		return
	}

	defer rows.Close()

	users = make([]user.User, 0)

	for rows.Next() {
		u, e := scanUser(rows)
		if e != nil {
			err = e
			return
		}
		users = append(users, u)
	}

	err = rows.Err()
	return
}

func (r *UsersRepo) Delete(ctx context.Context, email string) (err error) {
	var tag pgconn.CommandTag

	err = r.observe("users.delete", func() error {
		var e error
		tag, e = r.pool.Exec(ctx, `DELETE FROM users WHERE email = $1`, email)
		return e
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			err = user.ErrHasActivity
		}
		return
	}

	if tag.RowsAffected() == 0 {
		err = user.ErrNotFound
	}
	return
}

func (r *UsersRepo) UpdateRole(ctx context.Context, email string, role user.Role) (err error) {
	var tag pgconn.CommandTag

	err = r.observe("users.update_role", func() error {
		var e error
		tag, e = r.pool.Exec(ctx,
			`UPDATE users SET role = $2, updated_at = $3 WHERE email = $1`,
			email, role, time.Now().UTC(),
		)
		return e
	})

	if err != nil {
		return
	}

	if tag.RowsAffected() == 0 {
		err = user.ErrNotFound
	}
	return
}

// AdjustCoinsTx applies a coin delta to a user inside the caller's
// transaction and journals the movement. The coin >= 0 constraint turns an
// over-debit into user.ErrInsufficientCoins.
func (r *UsersRepo) AdjustCoinsTx(ctx context.Context, tx pgx.Tx, email string, delta int64, reason string) (balance int64, err error) {
	err = r.observe("users.adjust_coins", func() error {
		return tx.QueryRow(ctx,
			`UPDATE users SET coin = coin + $2, updated_at = $3 WHERE email = $1 RETURNING coin`,
			email, delta, time.Now().UTC(),
		).Scan(&balance)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, user.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return 0, user.ErrInsufficientCoins
		}
		return 0, err
	}

	err = r.observe("users.adjust_coins.journal", func() error {
		_, e := tx.Exec(ctx,
			`INSERT INTO coin_transactions (id, user_email, delta, reason, created_at)
			 VALUES ($1,$2,$3,$4,$5)`,
			uuid.NewString(), email, delta, reason, time.Now().UTC(),
		)
		return e
	})

	if err != nil {
		return 0, err
	}

	if r.prom != nil {
		r.prom.ObserveCoins(reason, delta)
	}

	return balance, nil
}

// AdjustCoins is the single-record variant for callers with no surrounding
// transaction (coin purchase confirmation).
func (r *UsersRepo) AdjustCoins(ctx context.Context, email string, delta int64, reason string) (balance int64, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	balance, err = r.AdjustCoinsTx(ctx, tx, email, delta, reason)

	if err != nil {
		return 0, err
	}

	err = tx.Commit(ctx)

	if err != nil {
		return 0, err
	}

	return balance, nil
}

func (r *UsersRepo) Stats(ctx context.Context) (s user.Stats, err error) {
	err = r.observe("users.stats", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT
				COUNT(*) FILTER (WHERE role = 'worker'),
				COUNT(*) FILTER (WHERE role = 'buyer'),
				COALESCE(SUM(coin), 0)
			FROM users
		`).Scan(&s.Workers, &s.Buyers, &s.TotalCoins)
	})
	return
}
