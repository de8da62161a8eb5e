package greenlight

import (
	"context"
)

// ResumeJob schedules a resume attempt for a paused execution.
type ResumeJob struct {
	ExecutionID string    `json:"execution_id"`
	Decision    *Decision `json:"decision"`
	Attempts    int       `json:"attempts,omitempty"`

	// receipt identifies the delivery for Ack/Nack in queue implementations
	// that need one
	receipt int64
}

// ResumeQueue is a durable job queue for resume attempts with at-least-once
// delivery. Because delivery can repeat, the resume entry point is
// idempotent.
type ResumeQueue interface {
	// Enqueue adds a resume job
	Enqueue(ctx context.Context, job *ResumeJob) error

	// Dequeue blocks until a job is available or the context is canceled
	Dequeue(ctx context.Context) (*ResumeJob, error)

	// Ack marks a delivered job as handled
	Ack(ctx context.Context, job *ResumeJob) error

	// Nack returns a delivered job to the queue for redelivery
	Nack(ctx context.Context, job *ResumeJob) error
}

// MemoryResumeQueue is an in-process ResumeQueue backed by a channel. Jobs
// survive until acked within the process; durability across restarts requires
// the Postgres queue.
type MemoryResumeQueue struct {
	jobs chan *ResumeJob
}

// NewMemoryResumeQueue creates a memory queue with the given buffer size.
func NewMemoryResumeQueue(size int) *MemoryResumeQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryResumeQueue{jobs: make(chan *ResumeJob, size)}
}

func (q *MemoryResumeQueue) Enqueue(ctx context.Context, job *ResumeJob) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryResumeQueue) Dequeue(ctx context.Context) (*ResumeJob, error) {
	select {
	case job := <-q.jobs:
		job.Attempts++
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryResumeQueue) Ack(ctx context.Context, job *ResumeJob) error {
	return nil
}

func (q *MemoryResumeQueue) Nack(ctx context.Context, job *ResumeJob) error {
	return q.Enqueue(ctx, job)
}
