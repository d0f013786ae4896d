package chat

import "sync"

// userQueue runs jobs for the same user one at a time in the order they were
// enqueued. Jobs for different users run concurrently. The zero value is
// ready to use.
type userQueue struct {
	mu      sync.Mutex
	pending map[string][]func()
	wg      sync.WaitGroup
}

func (q *userQueue) Enqueue(userID string, job func()) {
	q.mu.Lock()
	if q.pending == nil {
		q.pending = make(map[string][]func())
	}
	if jobs, busy := q.pending[userID]; busy {
		q.pending[userID] = append(jobs, job)
		q.mu.Unlock()
		return
	}
	q.pending[userID] = nil
	q.wg.Add(1)
	q.mu.Unlock()

	go q.drain(userID, job)
}

func (q *userQueue) drain(userID string, job func()) {
	defer q.wg.Done()
	for {
		job()

		q.mu.Lock()
		jobs := q.pending[userID]
		if len(jobs) == 0 {
			delete(q.pending, userID)
			q.mu.Unlock()
			return
		}
		job = jobs[0]
		q.pending[userID] = jobs[1:]
		q.mu.Unlock()
	}
}

// Wait blocks until every enqueued job has run.
func (q *userQueue) Wait() {
	q.wg.Wait()
}
