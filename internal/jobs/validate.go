package jobs

import "strings"

// ValidatePayload performs minimal validation on decoded payloads.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	trim := func(s string) string { return strings.TrimSpace(s) }

	switch t {
	case JobNotifySubmissionResult:
		var p SubmissionResultPayload
		switch v := payload.(type) {
		case SubmissionResultPayload:
			p = v
		case *SubmissionResultPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.SubmissionID) == "" || trim(p.WorkerEmail) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	case JobNotifyWithdrawalResult:
		var p WithdrawalResultPayload
		switch v := payload.(type) {
		case WithdrawalResultPayload:
			p = v
		case *WithdrawalResultPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.WithdrawalID) == "" || trim(p.WorkerEmail) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	case JobNotifyTaskVoided:
		var p TaskVoidedPayload
		switch v := payload.(type) {
		case TaskVoidedPayload:
			p = v
		case *TaskVoidedPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.TaskID) == "" || trim(p.WorkerEmail) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	default:
		return ErrInvalidJobType
	}
}
