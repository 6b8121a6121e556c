// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package replay

import (
	"context"
	"sync"

	"github.com/debdevops/servicehub/internal/metrics"
	"github.com/debdevops/servicehub/internal/rules"
)

// jobQueue is the unbounded FIFO feeding the replay workers. The rule
// engine pushes from monitor workers; replay workers pop.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []rules.ReplayJob
	signal chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{signal: make(chan struct{}, 1)}
}

func (q *jobQueue) push(job rules.ReplayJob) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	depth := len(q.jobs)
	q.mu.Unlock()

	metrics.ReplayQueueDepth.Set(float64(depth))
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop blocks until a job is available or the context is canceled.
func (q *jobQueue) pop(ctx context.Context) (rules.ReplayJob, bool) {
	for {
		q.mu.Lock()
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs = q.jobs[1:]
			depth := len(q.jobs)
			q.mu.Unlock()

			metrics.ReplayQueueDepth.Set(float64(depth))
			// Wake another worker if jobs remain.
			if depth > 0 {
				select {
				case q.signal <- struct{}{}:
				default:
				}
			}
			return job, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return rules.ReplayJob{}, false
		case <-q.signal:
		}
	}
}

func (q *jobQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
