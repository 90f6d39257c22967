package jobs

type JobType string

const (
	JobNotifySubmissionResult JobType = "notify_submission_result"
	JobNotifyWithdrawalResult JobType = "notify_withdrawal_result"
	JobNotifyTaskVoided       JobType = "notify_task_voided"
)

// check to see if the job type is a known constant

func (t JobType) IsValid() bool {
	switch t {
	case JobNotifySubmissionResult, JobNotifyWithdrawalResult, JobNotifyTaskVoided:
		return true
	default:
		return false
	}
}
