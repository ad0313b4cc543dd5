package jobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store defines the interface for job persistence
type Store interface {
	Create(ctx context.Context, job *Job) error
	UpdateStatus(ctx context.Context, id string, update Update) error
	SetCounts(ctx context.Context, id string, numTasks, numRealizations int) error
	Get(ctx context.Context, id string) (*Job, error)
	// List returns the jobs, most recent first
	List(ctx context.Context) ([]*Job, error)
	Ping(ctx context.Context) error
	Close() error
}

// MemoryStore keeps jobs in process memory
type MemoryStore struct {
	jobs map[string]*Job
	mu   sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Create stores a new job
func (s *MemoryStore) Create(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

// UpdateStatus moves a job to a new status
func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, update Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if !job.Status.CanTransition(update.Status) {
		return transitionError(id, job.Status, update.Status)
	}
	job.Status = update.Status
	job.Error = update.Error
	if update.Digest != "" {
		job.Digest = update.Digest
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// SetCounts records the number of tasks and realizations of a job
func (s *MemoryStore) SetCounts(ctx context.Context, id string, numTasks, numRealizations int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	job.NumTasks = numTasks
	job.NumRealizations = numRealizations
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// Get retrieves a job by ID
func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	cp := *job
	return &cp, nil
}

// List returns every job, most recent first
func (s *MemoryStore) List(ctx context.Context) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		cp := *job
		jobs = append(jobs, &cp)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs, nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
