package jobs

import (
	"encoding/json"
	"fmt"
)

func EncodePayload(t JobType, payload any) ([]byte, error) {
	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}

	switch t {
	case JobNotifySubmissionResult:
		if _, ok := payload.(SubmissionResultPayload); !ok {
			if _, ok2 := payload.(*SubmissionResultPayload); !ok2 {
				return nil, ErrPayloadTypeMismatch
			}
		}

	case JobNotifyWithdrawalResult:
		if _, ok := payload.(WithdrawalResultPayload); !ok {
			if _, ok2 := payload.(*WithdrawalResultPayload); !ok2 {
				return nil, ErrPayloadTypeMismatch
			}
		}

	case JobNotifyTaskVoided:
		if _, ok := payload.(TaskVoidedPayload); !ok {
			if _, ok2 := payload.(*TaskVoidedPayload); !ok2 {
				return nil, ErrPayloadTypeMismatch
			}
		}
	}

	b, err := json.Marshal(payload)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	return b, nil
}

// DecodePayload unmarshals job.Payload into the correct typed payload struct.
func DecodePayload(j Job) (any, error) {
	if !j.Type.IsValid() {
		return nil, ErrInvalidJobType
	}
	if len(j.Payload) == 0 {
		return nil, ErrInvalidJobPayload
	}

	switch j.Type {
	case JobNotifySubmissionResult:
		var p SubmissionResultPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		return p, nil

	case JobNotifyWithdrawalResult:
		var p WithdrawalResultPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		return p, nil

	case JobNotifyTaskVoided:
		var p TaskVoidedPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		return p, nil

	default:
		return nil, ErrInvalidJobType
	}
}
