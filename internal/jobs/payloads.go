package jobs

// SubmissionResultPayload tells a worker their submission was reviewed.
// Keep payloads minimal and ID-based; the worker loads details from DB.
type SubmissionResultPayload struct {
	SubmissionID string `json:"submissionId"`
	TaskID       string `json:"taskId"`
	WorkerEmail  string `json:"workerEmail"`
	Amount       int64  `json:"amount"`
	Approved     bool   `json:"approved"`
	RequestID    string `json:"requestId,omitempty"` // optional: correlation
}

// WithdrawalResultPayload tells a worker their cash-out was decided.
type WithdrawalResultPayload struct {
	WithdrawalID string `json:"withdrawalId"`
	WorkerEmail  string `json:"workerEmail"`
	Coins        int64  `json:"coins"`
	Approved     bool   `json:"approved"`
}

// TaskVoidedPayload tells a worker their pending submission was voided
// because the buyer deleted the task.
type TaskVoidedPayload struct {
	TaskID      string `json:"taskId"`
	Title       string `json:"title"`
	WorkerEmail string `json:"workerEmail"`
}
