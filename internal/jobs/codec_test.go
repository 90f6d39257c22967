package jobs

import (
	"testing"
	"time"
)

func TestEncodeDecode_SubmissionResult(t *testing.T) {
	payload := SubmissionResultPayload{
		SubmissionID: "sub-123",
		TaskID:       "task-456",
		WorkerEmail:  "w@x.com",
		Amount:       10,
		Approved:     true,
	}

	b, err := EncodePayload(JobNotifySubmissionResult, payload)
	if err != nil {
		t.Fatalf("EncodePayload error: %v", err)
	}

	j, err := NewJob(JobNotifySubmissionResult, b, time.Time{})
	if err != nil {
		t.Fatalf("NewJob error: %v", err)
	}

	decoded, err := DecodePayload(j)
	if err != nil {
		t.Fatalf("DecodePayload error: %v", err)
	}

	p, ok := decoded.(SubmissionResultPayload)
	if !ok {
		t.Fatalf("expected SubmissionResultPayload, got %T", decoded)
	}

	if p.SubmissionID != payload.SubmissionID {
		t.Fatalf("expected submissionId %s, got %s", payload.SubmissionID, p.SubmissionID)
	}
	if !p.Approved {
		t.Fatalf("expected approved to survive the round trip")
	}
}

func TestEncodePayload_TypeMismatch(t *testing.T) {
	_, err := EncodePayload(JobNotifySubmissionResult, WithdrawalResultPayload{
		WithdrawalID: "wd1",
		WorkerEmail:  "w@x.com",
		Coins:        40,
	})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if err != ErrPayloadTypeMismatch {
		t.Fatalf("expected ErrPayloadTypeMismatch, got %v", err)
	}
}

func TestValidatePayload_RequiredIDs(t *testing.T) {
	err := ValidatePayload(JobNotifySubmissionResult, SubmissionResultPayload{SubmissionID: ""})
	if err == nil {
		t.Fatalf("expected error")
	}

	err = ValidatePayload(JobNotifyWithdrawalResult, WithdrawalResultPayload{WithdrawalID: "wd1"})
	if err == nil {
		t.Fatalf("expected error for missing worker email")
	}
}

func TestNewJob_InvalidType(t *testing.T) {
	_, err := NewJob(JobType("bogus"), []byte(`{}`), time.Time{})
	if err != ErrInvalidJobType {
		t.Fatalf("expected ErrInvalidJobType, got %v", err)
	}
}
