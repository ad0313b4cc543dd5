// Package jobstore records the lifecycle of calculations: created,
// executing, then complete, failed or aborted.
package jobstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobExists         = errors.New("job already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Status is the lifecycle state of a job
type Status string

const (
	StatusCreated   Status = "created"
	StatusExecuting Status = "executing"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Terminal reports whether no further transition is allowed
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusAborted
}

// CanTransition reports whether a job may move from s to next
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusCreated:
		return next == StatusExecuting || next == StatusFailed || next == StatusAborted
	case StatusExecuting:
		return next.Terminal()
	default:
		return false
	}
}

// Job is the record of one calculation
type Job struct {
	ID              string    `json:"id"`
	Description     string    `json:"description"`
	Mode            string    `json:"mode"`
	Status          Status    `json:"status"`
	NumTasks        int       `json:"num_tasks"`
	NumRealizations int       `json:"num_realizations"`
	Digest          string    `json:"digest,omitempty"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewJob returns a created job with a fresh id
func NewJob(description, mode string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:          uuid.NewString(),
		Description: description,
		Mode:        mode,
		Status:      StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Update is a status change; Error is kept for failed and aborted jobs
type Update struct {
	Status Status
	Error  string
	Digest string
}

func transitionError(id string, from, to Status) error {
	return fmt.Errorf("%w: job %s from %s to %s", ErrInvalidTransition, id, from, to)
}
