package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"codementor-backend/internal/metrics"
	"codementor-backend/internal/models"
	"codementor-backend/internal/repository"
	"codementor-backend/internal/services"
)

const defaultMaxRetries = 3

type jobQueue interface {
	Enqueue(ctx context.Context, job models.EmailJob) error
	Dequeue(ctx context.Context, timeout time.Duration) (*models.EmailJob, error)
}

type emailSender interface {
	Send(ctx context.Context, job models.EmailJob) error
}

// Pool drains the email queue with a fixed number of goroutines. Failed jobs
// are pushed back after an exponential delay until MaxRetries is reached.
type Pool struct {
	queue       jobQueue
	sender      emailSender
	metrics     *metrics.Metrics
	logger      *zap.Logger
	workerCount int
	pollTimeout time.Duration
	sendTimeout time.Duration
	backoff     func(retry int) time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPool(queue jobQueue, sender emailSender, workerCount int, logger *zap.Logger, m *metrics.Metrics) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		queue:       queue,
		sender:      sender,
		metrics:     m,
		logger:      logger,
		workerCount: workerCount,
		pollTimeout: 30 * time.Second,
		sendTimeout: 30 * time.Second,
		backoff: func(retry int) time.Duration {
			return time.Duration(1<<uint(retry)) * time.Second
		},
		stopChan: make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-p.stopChan
		cancel()
	}()

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("email workers started", zap.Int("workers", p.workerCount))
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.pollTimeout)
		if err != nil {
			if errors.Is(err, repository.ErrQueueEmpty) || ctx.Err() != nil {
				continue
			}
			log.Warn("failed to read email job", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}

		p.process(ctx, log, job)
	}
}

func (p *Pool) process(ctx context.Context, log *zap.Logger, job *models.EmailJob) {
	// Sends are allowed to finish after shutdown starts.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.sendTimeout)
	defer cancel()

	err := p.sender.Send(sendCtx, *job)
	if err == nil {
		p.metrics.EmailJob(job.Type, "sent")
		log.Info("email job completed", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return
	}
	p.handleFailure(log, job, err)
}

func (p *Pool) handleFailure(log *zap.Logger, job *models.EmailJob, err error) {
	job.RetryCount++
	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	if errors.Is(err, services.ErrUnknownEmailType) || job.RetryCount >= maxRetries {
		p.metrics.EmailJob(job.Type, "failed")
		log.Error("email job failed permanently",
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.Int("attempts", job.RetryCount),
			zap.Error(err),
		)
		return
	}

	p.metrics.EmailJob(job.Type, "retried")
	backoff := p.backoff(job.RetryCount)
	log.Warn("email job failed, retrying",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.RetryCount),
		zap.Duration("backoff", backoff),
		zap.Error(err),
	)

	retry := *job
	time.AfterFunc(backoff, func() {
		if err := p.queue.Enqueue(context.Background(), retry); err != nil {
			p.logger.Error("failed to requeue email job", zap.String("job_id", retry.ID), zap.Error(err))
		}
	})
}
