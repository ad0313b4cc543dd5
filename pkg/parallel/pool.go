// Package parallel provides the worker pools tasks are dispatched to. Every
// pool satisfies Pool, so the coordinator is the same whether work runs in
// goroutines of this process or on remote workers.
package parallel

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrPoolClosed    = errors.New("pool is closed")
	ErrPoolCancelled = errors.New("pool was cancelled")
)

// Job is one attempt of a task
type Job struct {
	ID      uint64 `json:"id"`
	Attempt int    `json:"attempt"`
	Payload []byte `json:"payload"`
}

// Outcome is the result of one job attempt
type Outcome struct {
	JobID    uint64
	Attempt  int
	Payload  []byte
	Err      error
	Elapsed  time.Duration
	PeakHeap uint64 // largest process heap sampled while the attempt ran
}

// Handler runs a job payload and returns the result payload
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Pool is the capability a coordinator needs from a set of workers:
// submit without waiting for completion, fan in results, cancel.
type Pool interface {
	// Submit queues a job. It blocks only when more than Capacity jobs
	// are outstanding.
	Submit(ctx context.Context, job Job) error
	// Results delivers one Outcome per submitted job, in completion order
	Results() <-chan Outcome
	// Cancel aborts queued and running jobs
	Cancel()
	// Capacity is the number of outstanding jobs the pool accepts without
	// blocking Submit or its own workers
	Capacity() int
	// Close waits for running jobs and releases the pool
	Close() error
}

// PanicError is the outcome error of a handler that panicked
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// RemoteError is the outcome error reported by a remote worker
type RemoteError struct {
	Worker  string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Worker == "" {
		return "remote worker: " + e.Message
	}
	return fmt.Sprintf("remote worker %s: %s", e.Worker, e.Message)
}
