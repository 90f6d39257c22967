package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/paypertask/taskhub/internal/domain/submission"
	"github.com/paypertask/taskhub/internal/domain/task"
	"github.com/paypertask/taskhub/internal/domain/user"
	"github.com/paypertask/taskhub/internal/http/handlers"
)

type fakeSubmissionsRepo struct {
	claimFn         func(ctx context.Context, req submission.ClaimRequest) (submission.Submission, error)
	approveFn       func(ctx context.Context, id, requesterEmail string) (submission.Submission, error)
	rejectFn        func(ctx context.Context, id, requesterEmail string) (submission.Submission, error)
	listForWorkerFn func(ctx context.Context, workerEmail string) ([]submission.Submission, error)
	listForBuyerFn  func(ctx context.Context, buyerEmail string, status *submission.Status) ([]submission.Submission, error)
}

func (f *fakeSubmissionsRepo) Claim(ctx context.Context, req submission.ClaimRequest) (submission.Submission, error) {
	if f.claimFn != nil {
		return f.claimFn(ctx, req)
	}
	return submission.Submission{}, nil
}

func (f *fakeSubmissionsRepo) Approve(ctx context.Context, id, requesterEmail string) (submission.Submission, error) {
	if f.approveFn != nil {
		return f.approveFn(ctx, id, requesterEmail)
	}
	return submission.Submission{}, nil
}

func (f *fakeSubmissionsRepo) Reject(ctx context.Context, id, requesterEmail string) (submission.Submission, error) {
	if f.rejectFn != nil {
		return f.rejectFn(ctx, id, requesterEmail)
	}
	return submission.Submission{}, nil
}

func (f *fakeSubmissionsRepo) ListForWorker(ctx context.Context, workerEmail string) ([]submission.Submission, error) {
	if f.listForWorkerFn != nil {
		return f.listForWorkerFn(ctx, workerEmail)
	}
	return []submission.Submission{}, nil
}

func (f *fakeSubmissionsRepo) ListForBuyer(ctx context.Context, buyerEmail string, status *submission.Status) ([]submission.Submission, error) {
	if f.listForBuyerFn != nil {
		return f.listForBuyerFn(ctx, buyerEmail, status)
	}
	return []submission.Submission{}, nil
}

func TestClaimTaskHandler(t *testing.T) {
	taskID := newUUID()

	tests := []struct {
		name           string
		body           string
		repoSetUp      func(*fakeSubmissionsRepo)
		wantStatusCode int
	}{
		{
			name: "success",
			body: `{"details": "I will do this today"}`,
			repoSetUp: func(f *fakeSubmissionsRepo) {
				f.claimFn = func(ctx context.Context, req submission.ClaimRequest) (submission.Submission, error) {
					if req.TaskID != taskID {
						t.Fatalf("task id not taken from the path, got %q", req.TaskID)
					}
					if req.WorkerEmail != "worker@x.com" {
						t.Fatalf("worker email not stamped from identity, got %q", req.WorkerEmail)
					}
					return submission.NewFromClaim(req, "buyer@x.com", 10), nil
				}
			},
			wantStatusCode: http.StatusCreated,
		},
		{
			name: "already_claimed",
			body: `{}`,
			repoSetUp: func(f *fakeSubmissionsRepo) {
				f.claimFn = func(ctx context.Context, req submission.ClaimRequest) (submission.Submission, error) {
					return submission.Submission{}, submission.ErrAlreadyClaimed
				}
			},
			wantStatusCode: http.StatusConflict,
		},
		{
			name: "no_slots",
			body: `{}`,
			repoSetUp: func(f *fakeSubmissionsRepo) {
				f.claimFn = func(ctx context.Context, req submission.ClaimRequest) (submission.Submission, error) {
					return submission.Submission{}, submission.ErrNoSlotsAvailable
				}
			},
			wantStatusCode: http.StatusConflict,
		},
		{
			name: "task_not_found",
			body: `{}`,
			repoSetUp: func(f *fakeSubmissionsRepo) {
				f.claimFn = func(ctx context.Context, req submission.ClaimRequest) (submission.Submission, error) {
					return submission.Submission{}, task.ErrNotFound
				}
			},
			wantStatusCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeSubmissionsRepo{}

			if tt.repoSetUp != nil {
				tt.repoSetUp(repo)
			}

			h := handlers.NewSubmissionsHandler(repo, nil)

			r := setupRouter(http.MethodPost, "/tasks/:id/claim", "worker@x.com", user.RoleWorker, h.ClaimTask)

			w := doJSON(r, http.MethodPost, "/tasks/"+taskID+"/claim", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestApproveSubmissionHandler(t *testing.T) {
	subID := newUUID()

	tests := []struct {
		name           string
		repoSetUp      func(*fakeSubmissionsRepo)
		wantStatusCode int
		wantWake       bool
	}{
		{
			name: "success",
			repoSetUp: func(f *fakeSubmissionsRepo) {
				f.approveFn = func(ctx context.Context, id, requesterEmail string) (submission.Submission, error) {
					return submission.Submission{ID: id, Status: submission.StatusApproved}, nil
				}
			},
			wantStatusCode: http.StatusOK,
			wantWake:       true,
		},
		{
			name: "already_reviewed",
			repoSetUp: func(f *fakeSubmissionsRepo) {
				f.approveFn = func(ctx context.Context, id, requesterEmail string) (submission.Submission, error) {
					return submission.Submission{}, submission.ErrNotPending
				}
			},
			wantStatusCode: http.StatusConflict,
		},
		{
			name: "not_the_buyer",
			repoSetUp: func(f *fakeSubmissionsRepo) {
				f.approveFn = func(ctx context.Context, id, requesterEmail string) (submission.Submission, error) {
					return submission.Submission{}, submission.ErrForbidden
				}
			},
			wantStatusCode: http.StatusForbidden,
		},
		{
			name: "not_found",
			repoSetUp: func(f *fakeSubmissionsRepo) {
				f.approveFn = func(ctx context.Context, id, requesterEmail string) (submission.Submission, error) {
					return submission.Submission{}, submission.ErrNotFound
				}
			},
			wantStatusCode: http.StatusNotFound,
		},
		{
			name: "repo_error",
			repoSetUp: func(f *fakeSubmissionsRepo) {
				f.approveFn = func(ctx context.Context, id, requesterEmail string) (submission.Submission, error) {
					return submission.Submission{}, errors.New("db error")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeSubmissionsRepo{}
			tt.repoSetUp(repo)

			woke := false
			h := handlers.NewSubmissionsHandler(repo, func() { woke = true })

			r := setupRouter(http.MethodPost, "/submissions/:id/approve", "buyer@x.com", user.RoleBuyer, h.ApproveSubmission)

			w := doJSON(r, http.MethodPost, "/submissions/"+subID+"/approve", "")

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if woke != tt.wantWake {
				t.Fatalf("wake fired = %v, want %v", woke, tt.wantWake)
			}
		})
	}
}

func TestListReceivedSubmissionsHandler_StatusFilter(t *testing.T) {
	var gotStatus *submission.Status

	repo := &fakeSubmissionsRepo{
		listForBuyerFn: func(ctx context.Context, buyerEmail string, status *submission.Status) ([]submission.Submission, error) {
			gotStatus = status
			return []submission.Submission{}, nil
		},
	}

	h := handlers.NewSubmissionsHandler(repo, nil)

	r := setupRouter(http.MethodGet, "/submissions/received", "buyer@x.com", user.RoleBuyer, h.ListReceivedSubmissions)

	w := doJSON(r, http.MethodGet, "/submissions/received?status=pending", "")
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}
	if gotStatus == nil || *gotStatus != submission.StatusPending {
		t.Fatalf("status filter = %v, want pending", gotStatus)
	}

	w = doJSON(r, http.MethodGet, "/submissions/received?status=bogus", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bogus status: got %d, want 400", w.Code)
	}
}
