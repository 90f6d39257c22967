package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/paypertask/taskhub/internal/domain/submission"
	"github.com/paypertask/taskhub/internal/domain/task"
	"github.com/paypertask/taskhub/internal/domain/user"
	"github.com/paypertask/taskhub/internal/domain/withdrawal"
)

// Marketplace keeps the whole ledger in memory. Without a transactional
// store, every composite operation runs under one exclusive lock, which is
// the serialization fallback the postgres repos get from row locks.
type Marketplace struct {
	mu          sync.Mutex
	users       map[string]user.User // keyed by email
	tasks       map[string]task.Task
	submissions map[string]submission.Submission
	withdrawals map[string]withdrawal.Withdrawal
}

func NewMarketplace() *Marketplace {
	return &Marketplace{
		users:       make(map[string]user.User),
		tasks:       make(map[string]task.Task),
		submissions: make(map[string]submission.Submission),
		withdrawals: make(map[string]withdrawal.Withdrawal),
	}
}

func (m *Marketplace) PutUser(u user.User) {
	m.mu.Lock()
	m.users[u.Email] = u
	m.mu.Unlock()
}

func (m *Marketplace) GetUser(email string) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[email]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

// adjustCoins is the only writer of coin balances. Callers hold m.mu.
func (m *Marketplace) adjustCoins(email string, delta int64) (int64, error) {
	u, ok := m.users[email]
	if !ok {
		return 0, user.ErrNotFound
	}

	next := u.Coin + delta
	if next < 0 {
		return 0, user.ErrInsufficientCoins
	}

	u.Coin = next
	u.UpdatedAt = time.Now().UTC()
	m.users[email] = u
	return next, nil
}

func (m *Marketplace) CreateTask(req task.CreateTaskRequest) (task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := task.NewFromCreateRequest(req)

	if _, err := m.adjustCoins(t.BuyerEmail, -t.TotalCost()); err != nil {
		return task.Task{}, err
	}

	m.tasks[t.ID] = t
	return t, nil
}

func (m *Marketplace) DeleteTask(id, requesterEmail string, requesterRole user.Role) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return 0, task.ErrNotFound
	}

	if t.BuyerEmail != requesterEmail && requesterRole != user.RoleAdmin {
		return 0, task.ErrForbidden
	}

	voided := 0
	now := time.Now().UTC()

	for sid, s := range m.submissions {
		if s.TaskID == id && s.Status == submission.StatusPending {
			s.Status = submission.StatusRejected
			s.Voided = true
			s.UpdatedAt = now
			m.submissions[sid] = s
			voided++
		}
	}

	refund := (int64(t.RemainingSlots) + int64(voided)) * t.Amount

	if refund > 0 {
		if _, err := m.adjustCoins(t.BuyerEmail, refund); err != nil {
			return 0, err
		}
	}

	delete(m.tasks, id)
	return refund, nil
}

func (m *Marketplace) GetTask(id string) (task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return task.Task{}, task.ErrNotFound
	}
	return t, nil
}

func (m *Marketplace) ListAvailable(limit int) []task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	out := make([]task.Task, 0)
	for _, t := range m.tasks {
		if t.RemainingSlots > 0 {
			out = append(out, t)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *Marketplace) UpdateTask(id, requesterEmail string, req task.UpdateTaskRequest) (task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return task.Task{}, task.ErrNotFound
	}

	if t.BuyerEmail != requesterEmail {
		return task.Task{}, task.ErrForbidden
	}

	t.Title = req.Title
	t.Description = req.Description
	t.Deadline = req.Deadline
	t.UpdatedAt = time.Now().UTC()
	m.tasks[id] = t
	return t, nil
}

func (m *Marketplace) Claim(req submission.ClaimRequest) (submission.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.submissions {
		if s.TaskID == req.TaskID && s.WorkerEmail == req.WorkerEmail {
			return submission.Submission{}, submission.ErrAlreadyClaimed
		}
	}

	t, ok := m.tasks[req.TaskID]
	if !ok {
		return submission.Submission{}, task.ErrNotFound
	}

	if t.RemainingSlots <= 0 {
		return submission.Submission{}, submission.ErrNoSlotsAvailable
	}

	t.RemainingSlots--
	t.UpdatedAt = time.Now().UTC()
	m.tasks[t.ID] = t

	s := submission.NewFromClaim(req, t.BuyerEmail, t.Amount)
	m.submissions[s.ID] = s
	return s, nil
}

func (m *Marketplace) Approve(id, requesterEmail string) (submission.Submission, error) {
	return m.review(id, requesterEmail, true)
}

func (m *Marketplace) Reject(id, requesterEmail string) (submission.Submission, error) {
	return m.review(id, requesterEmail, false)
}

func (m *Marketplace) review(id, requesterEmail string, approve bool) (submission.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.submissions[id]
	if !ok {
		return submission.Submission{}, submission.ErrNotFound
	}

	if s.BuyerEmail != requesterEmail {
		return submission.Submission{}, submission.ErrForbidden
	}

	if s.Status != submission.StatusPending {
		return submission.Submission{}, submission.ErrNotPending
	}

	if approve {
		if _, err := m.adjustCoins(s.WorkerEmail, s.Amount); err != nil {
			return submission.Submission{}, err
		}
		s.Status = submission.StatusApproved
	} else {
		s.Status = submission.StatusRejected

		if t, ok := m.tasks[s.TaskID]; ok {
			t.RemainingSlots++
			m.tasks[t.ID] = t
		}
	}

	s.UpdatedAt = time.Now().UTC()
	m.submissions[id] = s
	return s, nil
}

func (m *Marketplace) ListForWorker(workerEmail string) []submission.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]submission.Submission, 0)
	for _, s := range m.submissions {
		if s.WorkerEmail == workerEmail {
			out = append(out, s)
		}
	}
	sortSubmissions(out)
	return out
}

func (m *Marketplace) ListForBuyer(buyerEmail string, status *submission.Status) []submission.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]submission.Submission, 0)
	for _, s := range m.submissions {
		if s.BuyerEmail != buyerEmail {
			continue
		}
		if status != nil && s.Status != *status {
			continue
		}
		out = append(out, s)
	}
	sortSubmissions(out)
	return out
}

func sortSubmissions(subs []submission.Submission) {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].ID > subs[j].ID
		}
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})
}

func (m *Marketplace) RequestWithdrawal(workerEmail string, coins int64) (withdrawal.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if coins < withdrawal.MinimumCoins {
		return withdrawal.Withdrawal{}, withdrawal.ErrBelowMinimum
	}

	u, ok := m.users[workerEmail]
	if !ok {
		return withdrawal.Withdrawal{}, user.ErrNotFound
	}

	if u.Coin < coins {
		return withdrawal.Withdrawal{}, withdrawal.ErrInsufficientCoins
	}

	w := withdrawal.New(workerEmail, coins)
	m.withdrawals[w.ID] = w
	return w, nil
}

func (m *Marketplace) ApproveWithdrawal(id string) (withdrawal.Withdrawal, error) {
	return m.finalizeWithdrawal(id, true)
}

func (m *Marketplace) RejectWithdrawal(id string) (withdrawal.Withdrawal, error) {
	return m.finalizeWithdrawal(id, false)
}

func (m *Marketplace) finalizeWithdrawal(id string, approve bool) (withdrawal.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.withdrawals[id]
	if !ok {
		return withdrawal.Withdrawal{}, withdrawal.ErrNotFound
	}

	if w.Status != withdrawal.StatusPending {
		return withdrawal.Withdrawal{}, withdrawal.ErrAlreadyFinal
	}

	if approve {
		if _, err := m.adjustCoins(w.WorkerEmail, -w.Coins); err != nil {
			if err == user.ErrInsufficientCoins {
				err = withdrawal.ErrInsufficientCoins
			}
			return withdrawal.Withdrawal{}, err
		}
		w.Status = withdrawal.StatusApproved
	} else {
		w.Status = withdrawal.StatusRejected
	}

	w.UpdatedAt = time.Now().UTC()
	m.withdrawals[id] = w
	return w, nil
}

func (m *Marketplace) ListPendingWithdrawals() []withdrawal.Withdrawal {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]withdrawal.Withdrawal, 0)
	for _, w := range m.withdrawals {
		if w.Status == withdrawal.StatusPending {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
