package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codementor-backend/internal/metrics"
	"codementor-backend/internal/models"
	"codementor-backend/internal/repository"
	"codementor-backend/internal/services"
)

type chanQueue struct {
	jobs chan models.EmailJob
}

func newChanQueue() *chanQueue {
	return &chanQueue{jobs: make(chan models.EmailJob, 16)}
}

func (q *chanQueue) Enqueue(_ context.Context, job models.EmailJob) error {
	q.jobs <- job
	return nil
}

func (q *chanQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.EmailJob, error) {
	select {
	case job := <-q.jobs:
		return &job, nil
	case <-time.After(timeout):
		return nil, repository.ErrQueueEmpty
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type scriptedSender struct {
	mu       sync.Mutex
	failures int
	err      error
	attempts []models.EmailJob
	done     chan struct{}
	want     int
}

func (s *scriptedSender) Send(_ context.Context, job models.EmailJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, job)
	if len(s.attempts) == s.want {
		close(s.done)
	}
	if len(s.attempts) <= s.failures {
		return s.err
	}
	return nil
}

func newTestPool(q jobQueue, s emailSender, m *metrics.Metrics) *Pool {
	p := NewPool(q, s, 1, nil, m)
	p.pollTimeout = 10 * time.Millisecond
	p.backoff = func(int) time.Duration { return time.Millisecond }
	return p
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for email attempts")
	}
}

func TestPool_DeliversJob(t *testing.T) {
	q := newChanQueue()
	sender := &scriptedSender{done: make(chan struct{}), want: 1}
	m := metrics.New("auth")
	p := newTestPool(q, sender, m)

	p.Start(context.Background())
	require.NoError(t, q.Enqueue(context.Background(), models.EmailJob{ID: "j1", Type: models.EmailVerification, MaxRetries: 3}))
	waitFor(t, sender.done)
	p.Stop()

	assert.Equal(t, "j1", sender.attempts[0].ID)
	count, err := testutil.GatherAndCount(m.Registry(), "email_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPool_RetriesThenSucceeds(t *testing.T) {
	q := newChanQueue()
	sender := &scriptedSender{failures: 2, err: errors.New("smtp down"), done: make(chan struct{}), want: 3}
	p := newTestPool(q, sender, nil)

	p.Start(context.Background())
	require.NoError(t, q.Enqueue(context.Background(), models.EmailJob{ID: "j2", Type: models.EmailPasswordReset, MaxRetries: 3}))
	waitFor(t, sender.done)
	p.Stop()

	require.Len(t, sender.attempts, 3)
	assert.Equal(t, 0, sender.attempts[0].RetryCount)
	assert.Equal(t, 1, sender.attempts[1].RetryCount)
	assert.Equal(t, 2, sender.attempts[2].RetryCount)
}

func TestPool_GivesUpAfterMaxRetries(t *testing.T) {
	q := newChanQueue()
	sender := &scriptedSender{failures: 10, err: errors.New("smtp down"), done: make(chan struct{}), want: 3}
	p := newTestPool(q, sender, nil)

	p.Start(context.Background())
	require.NoError(t, q.Enqueue(context.Background(), models.EmailJob{ID: "j3", Type: models.EmailPasswordChanged, MaxRetries: 3}))
	waitFor(t, sender.done)

	// No fourth attempt is scheduled.
	time.Sleep(50 * time.Millisecond)
	p.Stop()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Len(t, sender.attempts, 3)
}

func TestPool_UnknownTypeIsNotRetried(t *testing.T) {
	p := newTestPool(newChanQueue(), nil, nil)
	job := &models.EmailJob{ID: "j4", Type: "newsletter", MaxRetries: 3}

	p.handleFailure(p.logger, job, services.ErrUnknownEmailType)

	select {
	case <-p.queue.(*chanQueue).jobs:
		t.Fatal("unknown job type was requeued")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPool_StopIsIdempotent(t *testing.T) {
	p := newTestPool(newChanQueue(), &scriptedSender{}, nil)
	p.Start(context.Background())
	p.Stop()
	p.Stop()
}
