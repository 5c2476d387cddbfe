// internal/model/task.go
package model

import (
	"encoding/json"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/vendor-outreach/internal/errors"
)

type TaskType string

const (
	TaskGenerate TaskType = "GENERATE"
	TaskSend     TaskType = "SEND"
	TaskFollowUp TaskType = "FOLLOW_UP"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRetry     TaskStatus = "RETRY"
	TaskClaimed   TaskStatus = "CLAIMED"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
	TaskCancelled TaskStatus = "CANCELLED"
	// TaskDeferred marks an accepted SMS delivery that was never transmitted.
	TaskDeferred TaskStatus = "DEFERRED"
)

// Terminal reports whether the dispatcher must never pick the task up again.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled, TaskDeferred:
		return true
	}
	return false
}

// Schedulable reports whether FetchDue may return a task in this status.
func (s TaskStatus) Schedulable() bool {
	return s == TaskPending || s == TaskRetry
}

type QueueTask struct {
	ID             string      `db:"id" json:"id"`
	SubjectID      string      `db:"subject_id" json:"subject_id"`
	Type           TaskType    `db:"type" json:"type"`
	Status         TaskStatus  `db:"status" json:"status"`
	ScheduledAt    time.Time   `db:"scheduled_at" json:"scheduled_at"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
	RetryCount     int         `db:"retry_count" json:"retry_count"`
	Error          string      `db:"error" json:"error,omitempty"`
	Payload        TaskPayload `db:"payload" json:"payload"`
	DedupeKey      string      `db:"dedupe_key" json:"dedupe_key,omitempty"`
	ClaimedBy      string      `db:"claimed_by" json:"claimed_by,omitempty"`
	LeaseExpiresAt *time.Time  `db:"lease_expires_at" json:"lease_expires_at,omitempty"`
}

// NewTask is what callers hand to the store. The task type comes from the payload.
type NewTask struct {
	SubjectID   string
	ScheduledAt time.Time
	Payload     TaskPayload
	DedupeKey   string
}

func (t NewTask) Type() TaskType {
	if t.Payload == nil {
		return ""
	}
	return t.Payload.TaskType()
}

// TaskUpdate carries the optional fields of a partial status update.
type TaskUpdate struct {
	RetryCount  *int
	ScheduledAt *time.Time
	Error       *string
}

// TaskPayload is implemented by GeneratePayload, SendPayload and FollowUpPayload only.
type TaskPayload interface {
	TaskType() TaskType
}

type GeneratePayload struct {
	Profile ProfileSnapshot `json:"profile"`
	Channel Channel         `json:"channel"`
}

func (GeneratePayload) TaskType() TaskType { return TaskGenerate }

type SendPayload struct {
	Content GeneratedContent `json:"content"`
	Urgency Urgency          `json:"urgency"`
}

func (SendPayload) TaskType() TaskType { return TaskSend }

type FollowUpPayload struct {
	Sequence int             `json:"sequence"`
	Language string          `json:"language"`
	Contact  ContactSnapshot `json:"contact"`
}

func (FollowUpPayload) TaskType() TaskType { return TaskFollowUp }

// EncodePayload serializes a payload for storage.
func EncodePayload(p TaskPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("encode payload: %w", appErrors.ErrUnknownTaskType)
	}
	return json.Marshal(p)
}

// DecodePayload restores the payload struct that matches the stored task type.
func DecodePayload(t TaskType, raw []byte) (TaskPayload, error) {
	switch t {
	case TaskGenerate:
		var p GeneratePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return p, nil
	case TaskSend:
		var p SendPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return p, nil
	case TaskFollowUp:
		var p FollowUpPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("decode payload %q: %w", t, appErrors.ErrUnknownTaskType)
}

