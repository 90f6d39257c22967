package memory_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/paypertask/taskhub/internal/domain/submission"
	"github.com/paypertask/taskhub/internal/domain/task"
	"github.com/paypertask/taskhub/internal/domain/user"
	"github.com/paypertask/taskhub/internal/domain/withdrawal"
	"github.com/paypertask/taskhub/internal/repo/memory"
)

func newMarketplace(t *testing.T) *memory.Marketplace {
	t.Helper()
	return memory.NewMarketplace()
}

func seedUser(m *memory.Marketplace, email string, role user.Role, coins int64) {
	m.PutUser(user.User{
		ID:    email,
		Email: email,
		Name:  email,
		Role:  role,
		Coin:  coins,
	})
}

func mustCreateTask(t *testing.T, m *memory.Marketplace, buyer string, amount int64, slots int) task.Task {
	t.Helper()

	created, err := m.CreateTask(task.CreateTaskRequest{
		BuyerEmail:  buyer,
		Title:       "label 500 images",
		Description: "bounding boxes only",
		Amount:      amount,
		Slots:       slots,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	return created
}

func balance(t *testing.T, m *memory.Marketplace, email string) int64 {
	t.Helper()

	u, err := m.GetUser(email)
	if err != nil {
		t.Fatalf("get user %s: %v", email, err)
	}

	return u.Coin
}

// Walks the full escrow cycle: fund, claim, approve one, reject one,
// delete the task. The buyer ends up charged only for the approved slot.

func TestEscrowLifecycle(t *testing.T) {
	m := newMarketplace(t)

	seedUser(m, "buyer@x.com", user.RoleBuyer, 100)
	seedUser(m, "w1@x.com", user.RoleWorker, 0)
	seedUser(m, "w2@x.com", user.RoleWorker, 0)

	created := mustCreateTask(t, m, "buyer@x.com", 10, 3)

	if got := balance(t, m, "buyer@x.com"); got != 70 {
		t.Fatalf("after funding: buyer balance = %d, want 70", got)
	}

	s1, err := m.Claim(submission.ClaimRequest{TaskID: created.ID, WorkerEmail: "w1@x.com"})
	if err != nil {
		t.Fatalf("claim w1: %v", err)
	}

	s2, err := m.Claim(submission.ClaimRequest{TaskID: created.ID, WorkerEmail: "w2@x.com"})
	if err != nil {
		t.Fatalf("claim w2: %v", err)
	}

	if _, err := m.Approve(s1.ID, "buyer@x.com"); err != nil {
		t.Fatalf("approve s1: %v", err)
	}

	if got := balance(t, m, "w1@x.com"); got != 10 {
		t.Fatalf("after approval: w1 balance = %d, want 10", got)
	}

	if _, err := m.Reject(s2.ID, "buyer@x.com"); err != nil {
		t.Fatalf("reject s2: %v", err)
	}

	// rejection reopens exactly one slot
	got, err := m.GetTask(created.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.RemainingSlots != 2 {
		t.Fatalf("after reject: remaining slots = %d, want 2", got.RemainingSlots)
	}

	refund, err := m.DeleteTask(created.ID, "buyer@x.com", user.RoleBuyer)
	if err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if refund != 20 {
		t.Fatalf("refund = %d, want 20", refund)
	}

	// only the approved slot's coins left the buyer for good
	if got := balance(t, m, "buyer@x.com"); got != 90 {
		t.Fatalf("final buyer balance = %d, want 90", got)
	}
}

func TestCreateTaskInsufficientCoins(t *testing.T) {
	m := newMarketplace(t)

	seedUser(m, "buyer@x.com", user.RoleBuyer, 25)

	_, err := m.CreateTask(task.CreateTaskRequest{
		BuyerEmail: "buyer@x.com",
		Title:      "too rich for us",
		Amount:     10,
		Slots:      3,
	})

	if !errors.Is(err, user.ErrInsufficientCoins) {
		t.Fatalf("err = %v, want ErrInsufficientCoins", err)
	}

	// a failed funding charges nothing
	if got := balance(t, m, "buyer@x.com"); got != 25 {
		t.Fatalf("buyer balance = %d, want 25", got)
	}
}

func TestClaimTwiceSameWorker(t *testing.T) {
	m := newMarketplace(t)

	seedUser(m, "buyer@x.com", user.RoleBuyer, 100)
	seedUser(m, "w1@x.com", user.RoleWorker, 0)

	created := mustCreateTask(t, m, "buyer@x.com", 5, 4)

	if _, err := m.Claim(submission.ClaimRequest{TaskID: created.ID, WorkerEmail: "w1@x.com"}); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	_, err := m.Claim(submission.ClaimRequest{TaskID: created.ID, WorkerEmail: "w1@x.com"})
	if !errors.Is(err, submission.ErrAlreadyClaimed) {
		t.Fatalf("second claim err = %v, want ErrAlreadyClaimed", err)
	}

	got, _ := m.GetTask(created.ID)
	if got.RemainingSlots != 3 {
		t.Fatalf("remaining slots = %d, want 3", got.RemainingSlots)
	}
}

// Slot conservation under contention: more workers than slots, every
// slot filled exactly once, the rest turned away.

func TestConcurrentClaimsNeverOversell(t *testing.T) {
	m := newMarketplace(t)

	const slots = 5
	const workers = 20

	seedUser(m, "buyer@x.com", user.RoleBuyer, 1000)

	for i := 0; i < workers; i++ {
		seedUser(m, fmt.Sprintf("w%d@x.com", i), user.RoleWorker, 0)
	}

	created := mustCreateTask(t, m, "buyer@x.com", 10, slots)

	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Claim(submission.ClaimRequest{
				TaskID:      created.ID,
				WorkerEmail: fmt.Sprintf("w%d@x.com", i),
			})
			results <- err
		}(i)
	}

	wg.Wait()
	close(results)

	claimed, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			claimed++
		case errors.Is(err, submission.ErrNoSlotsAvailable):
			rejected++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}

	if claimed != slots {
		t.Fatalf("claimed = %d, want %d", claimed, slots)
	}
	if rejected != workers-slots {
		t.Fatalf("rejected = %d, want %d", rejected, workers-slots)
	}

	got, _ := m.GetTask(created.ID)
	if got.RemainingSlots != 0 {
		t.Fatalf("remaining slots = %d, want 0", got.RemainingSlots)
	}
}

// Approval pays exactly once even when the buyer double-clicks.

func TestApproveIsNotRepeatable(t *testing.T) {
	m := newMarketplace(t)

	seedUser(m, "buyer@x.com", user.RoleBuyer, 100)
	seedUser(m, "w1@x.com", user.RoleWorker, 0)

	created := mustCreateTask(t, m, "buyer@x.com", 10, 1)

	sub, err := m.Claim(submission.ClaimRequest{TaskID: created.ID, WorkerEmail: "w1@x.com"})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Approve(sub.ID, "buyer@x.com")
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	okCount, notPending := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, submission.ErrNotPending):
			notPending++
		default:
			t.Fatalf("unexpected approve error: %v", err)
		}
	}

	if okCount != 1 || notPending != 1 {
		t.Fatalf("ok=%d notPending=%d, want exactly one of each", okCount, notPending)
	}

	if got := balance(t, m, "w1@x.com"); got != 10 {
		t.Fatalf("worker balance = %d, want 10 (single payout)", got)
	}
}

func TestReviewForbiddenForNonOwner(t *testing.T) {
	m := newMarketplace(t)

	seedUser(m, "buyer@x.com", user.RoleBuyer, 100)
	seedUser(m, "other@x.com", user.RoleBuyer, 100)
	seedUser(m, "w1@x.com", user.RoleWorker, 0)

	created := mustCreateTask(t, m, "buyer@x.com", 10, 1)

	sub, err := m.Claim(submission.ClaimRequest{TaskID: created.ID, WorkerEmail: "w1@x.com"})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	if _, err := m.Approve(sub.ID, "other@x.com"); !errors.Is(err, submission.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

// Deleting a task voids its pending submissions; the voided slots are
// refunded and a later review of the voided submission fails.

func TestDeleteTaskVoidsPendingSubmissions(t *testing.T) {
	m := newMarketplace(t)

	seedUser(m, "buyer@x.com", user.RoleBuyer, 100)
	seedUser(m, "w1@x.com", user.RoleWorker, 0)

	created := mustCreateTask(t, m, "buyer@x.com", 10, 2)

	sub, err := m.Claim(submission.ClaimRequest{TaskID: created.ID, WorkerEmail: "w1@x.com"})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	refund, err := m.DeleteTask(created.ID, "buyer@x.com", user.RoleBuyer)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	// one open slot plus one voided pending slot
	if refund != 20 {
		t.Fatalf("refund = %d, want 20", refund)
	}

	if _, err := m.Approve(sub.ID, "buyer@x.com"); !errors.Is(err, submission.ErrNotPending) {
		t.Fatalf("approve after void err = %v, want ErrNotPending", err)
	}

	subs := m.ListForWorker("w1@x.com")
	if len(subs) != 1 {
		t.Fatalf("worker submissions = %d, want 1", len(subs))
	}
	if subs[0].Status != submission.StatusRejected || !subs[0].Voided {
		t.Fatalf("submission = %+v, want rejected+voided", subs[0])
	}
}

func TestWithdrawalLifecycle(t *testing.T) {
	m := newMarketplace(t)

	seedUser(m, "w1@x.com", user.RoleWorker, 45)

	if _, err := m.RequestWithdrawal("w1@x.com", 10); !errors.Is(err, withdrawal.ErrBelowMinimum) {
		t.Fatalf("below-minimum err = %v, want ErrBelowMinimum", err)
	}

	if _, err := m.RequestWithdrawal("w1@x.com", 60); !errors.Is(err, withdrawal.ErrInsufficientCoins) {
		t.Fatalf("over-balance err = %v, want ErrInsufficientCoins", err)
	}

	w, err := m.RequestWithdrawal("w1@x.com", 40)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// requesting holds nothing; coins move at approval
	if got := balance(t, m, "w1@x.com"); got != 45 {
		t.Fatalf("balance after request = %d, want 45", got)
	}

	approved, err := m.ApproveWithdrawal(w.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != withdrawal.StatusApproved {
		t.Fatalf("status = %s, want approved", approved.Status)
	}
	if !approved.PayoutUSD.Equal(withdrawal.PayoutUSD(40)) {
		t.Fatalf("payout = %s, want %s", approved.PayoutUSD, withdrawal.PayoutUSD(40))
	}

	if got := balance(t, m, "w1@x.com"); got != 5 {
		t.Fatalf("balance after approve = %d, want 5", got)
	}

	if _, err := m.ApproveWithdrawal(w.ID); !errors.Is(err, withdrawal.ErrAlreadyFinal) {
		t.Fatalf("second approve err = %v, want ErrAlreadyFinal", err)
	}
	if _, err := m.RejectWithdrawal(w.ID); !errors.Is(err, withdrawal.ErrAlreadyFinal) {
		t.Fatalf("reject after approve err = %v, want ErrAlreadyFinal", err)
	}
}

// The balance is re-checked at approval time, not just at request time.

func TestWithdrawalApproveAfterBalanceDropped(t *testing.T) {
	m := newMarketplace(t)

	seedUser(m, "w1@x.com", user.RoleWorker, 40)

	w1, err := m.RequestWithdrawal("w1@x.com", 40)
	if err != nil {
		t.Fatalf("request 1: %v", err)
	}

	w2, err := m.RequestWithdrawal("w1@x.com", 40)
	if err != nil {
		t.Fatalf("request 2: %v", err)
	}

	if _, err := m.ApproveWithdrawal(w1.ID); err != nil {
		t.Fatalf("approve 1: %v", err)
	}

	if _, err := m.ApproveWithdrawal(w2.ID); !errors.Is(err, withdrawal.ErrInsufficientCoins) {
		t.Fatalf("approve 2 err = %v, want ErrInsufficientCoins", err)
	}

	if got := balance(t, m, "w1@x.com"); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}
}

func TestRejectWithdrawalLeavesBalance(t *testing.T) {
	m := newMarketplace(t)

	seedUser(m, "w1@x.com", user.RoleWorker, 30)

	w, err := m.RequestWithdrawal("w1@x.com", 20)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	rejected, err := m.RejectWithdrawal(w.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != withdrawal.StatusRejected {
		t.Fatalf("status = %s, want rejected", rejected.Status)
	}

	if got := balance(t, m, "w1@x.com"); got != 30 {
		t.Fatalf("balance = %d, want 30", got)
	}
}
