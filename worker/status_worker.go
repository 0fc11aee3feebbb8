package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"paytr-payment-api/database"
	"paytr-payment-api/logger"
	"paytr-payment-api/models"
	"paytr-payment-api/queue"
	"paytr-payment-api/services/payment/paytr"
)

type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	CompleteJob(ctx context.Context, job *queue.Job) error
	FailJob(ctx context.Context, job *queue.Job, err error) error
	Reschedule(ctx context.Context, job *queue.Job, delay time.Duration) error
	EnqueueStatusCheck(ctx context.Context, merchantOID string) (*queue.Job, error)
	ProcessDelayedJobs(ctx context.Context) (int, error)
}

type StatusChecker interface {
	CheckStatus(ctx context.Context, merchantOID string) (*paytr.StatusResult, error)
}

type Journal interface {
	GetAttempt(ctx context.Context, merchantOID string) (*models.AttemptRecord, error)
	RecordTransition(ctx context.Context, rec models.AttemptRecord) error
	PendingAttempts(ctx context.Context, limit int) ([]models.AttemptRecord, error)
}

type Options struct {
	// PollInterval is the wait before asking again about a PENDING payment.
	PollInterval time.Duration
	MaxPolls     int
	// PromoteInterval is how often delayed jobs are moved to the main list.
	PromoteInterval time.Duration
	DequeueTimeout  time.Duration
	JobTimeout      time.Duration
}

func DefaultOptions() Options {
	return Options{
		PollInterval:    30 * time.Second,
		MaxPolls:        20,
		PromoteInterval: 5 * time.Second,
		DequeueTimeout:  5 * time.Second,
		JobTimeout:      30 * time.Second,
	}
}

// StatusWorker resolves SUBMITTED payment attempts by polling the gateway.
type StatusWorker struct {
	queue   JobQueue
	checker StatusChecker
	journal Journal
	opts    Options
	log     *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewStatusWorker builds a worker. journal may be nil when no database is
// configured; outcomes are then only logged.
func NewStatusWorker(q JobQueue, checker StatusChecker, journal Journal, opts Options) *StatusWorker {
	def := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = def.MaxPolls
	}
	if opts.PromoteInterval <= 0 {
		opts.PromoteInterval = def.PromoteInterval
	}
	if opts.DequeueTimeout <= 0 {
		opts.DequeueTimeout = def.DequeueTimeout
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = def.JobTimeout
	}
	return &StatusWorker{
		queue:   q,
		checker: checker,
		journal: journal,
		opts:    opts,
		log:     logger.Named("status_worker"),
		now:     time.Now,
	}
}

// Start launches concurrency consumers plus the delayed-job promoter.
func (w *StatusWorker) Start(concurrency int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	if concurrency < 1 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.processJobs(ctx, i)
	}
	w.wg.Add(1)
	go w.promoteDelayed(ctx)

	w.log.Info("started status workers", zap.Int("concurrency", concurrency))
}

// Stop cancels the consumers and waits for in-flight jobs to return.
func (w *StatusWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.log.Info("stopping status workers")
	w.wg.Wait()
}

// Recover enqueues a status check for every attempt the journal still holds
// in SUBMITTED, e.g. after a restart.
func (w *StatusWorker) Recover(ctx context.Context, limit int) (int, error) {
	if w.journal == nil {
		return 0, nil
	}
	pending, err := w.journal.PendingAttempts(ctx, limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range pending {
		if _, err := w.queue.EnqueueStatusCheck(ctx, rec.MerchantOID); err != nil {
			w.log.Warn("failed to enqueue recovered attempt", zap.String("merchant_oid", rec.MerchantOID), zap.Error(err))
			continue
		}
		n++
	}
	if n > 0 {
		w.log.Info("recovered pending attempts", zap.Int("count", n))
	}
	return n, nil
}

func (w *StatusWorker) processJobs(ctx context.Context, workerID int) {
	defer w.wg.Done()
	log := w.log.With(zap.Int("worker", workerID))

	for {
		if ctx.Err() != nil {
			log.Debug("worker shutting down")
			return
		}

		job, err := w.queue.Dequeue(ctx, w.opts.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("error dequeuing job", zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.handle(ctx, job)
	}
}

// handle runs one job and settles it on the queue. Queue bookkeeping uses a
// context that survives shutdown so jobs are not lost mid-flight.
func (w *StatusWorker) handle(ctx context.Context, job *queue.Job) {
	log := w.log.With(zap.String("job_id", job.ID), zap.String("merchant_oid", job.MerchantOID))

	jobCtx, cancel := context.WithTimeout(ctx, w.opts.JobTimeout)
	outcome, err := w.processJob(jobCtx, job)
	cancel()

	qctx, qcancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer qcancel()

	switch {
	case err != nil:
		log.Warn("status job failed", zap.Error(err))
		if ferr := w.queue.FailJob(qctx, job, err); ferr != nil {
			log.Error("error marking job as failed", zap.Error(ferr))
		}
	case outcome == outcomeRepoll:
		job.Polls++
		if rerr := w.queue.Reschedule(qctx, job, w.opts.PollInterval); rerr != nil {
			log.Error("error rescheduling pending job", zap.Error(rerr))
		}
	default:
		if cerr := w.queue.CompleteJob(qctx, job); cerr != nil {
			log.Error("error marking job as complete", zap.Error(cerr))
		}
	}
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRepoll
)

func (w *StatusWorker) processJob(ctx context.Context, job *queue.Job) (outcome, error) {
	switch job.Type {
	case queue.JobTypeCheckStatus:
		return w.checkStatus(ctx, job)
	default:
		w.log.Error("dropping job of unknown type", zap.String("type", string(job.Type)))
		return outcomeDone, nil
	}
}

func (w *StatusWorker) checkStatus(ctx context.Context, job *queue.Job) (outcome, error) {
	if job.MerchantOID == "" {
		w.log.Error("dropping status job without merchant oid", zap.String("job_id", job.ID))
		return outcomeDone, nil
	}

	res, err := w.checker.CheckStatus(ctx, job.MerchantOID)
	if err != nil {
		switch paytr.KindOf(err) {
		case paytr.KindValidation, paytr.KindSignature:
			w.log.Error("status inquiry cannot succeed, dropping job",
				zap.String("merchant_oid", job.MerchantOID), zap.Error(err))
			return outcomeDone, nil
		}
		return outcomeDone, err
	}

	switch res.Status {
	case paytr.StatusSuccess:
		return outcomeDone, w.resolve(ctx, job.MerchantOID, models.AttemptSucceeded, "")
	case paytr.StatusFailed:
		return outcomeDone, w.resolve(ctx, job.MerchantOID, models.AttemptFailed, string(paytr.KindGateway))
	default:
		if job.Polls+1 >= w.opts.MaxPolls {
			w.log.Warn("payment still pending after max polls",
				zap.String("merchant_oid", job.MerchantOID), zap.Int("polls", job.Polls+1))
			return outcomeDone, nil
		}
		return outcomeRepoll, nil
	}
}

// resolve records a terminal state for a SUBMITTED attempt.
func (w *StatusWorker) resolve(ctx context.Context, oid string, state models.AttemptState, errKind string) error {
	log := w.log.With(zap.String("merchant_oid", oid), zap.Stringer("state", state))
	if w.journal == nil {
		log.Info("payment resolved")
		return nil
	}

	rec, err := w.journal.GetAttempt(ctx, oid)
	if errors.Is(err, database.ErrAttemptNotFound) {
		log.Info("payment resolved for unknown attempt")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading attempt %s: %w", oid, err)
	}
	if rec.State != models.AttemptSubmitted {
		log.Debug("attempt not awaiting resolution", zap.Stringer("stored", rec.State))
		return nil
	}

	rec.State = state
	rec.ErrorKind = errKind
	rec.UpdatedAt = w.now()
	if err := w.journal.RecordTransition(ctx, *rec); err != nil {
		if errors.Is(err, database.ErrStaleTransition) {
			return nil
		}
		return fmt.Errorf("recording attempt %s: %w", oid, err)
	}
	log.Info("payment resolved")
	return nil
}

func (w *StatusWorker) promoteDelayed(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.opts.PromoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.queue.ProcessDelayedJobs(ctx); err != nil && ctx.Err() == nil {
				w.log.Warn("error promoting delayed jobs", zap.Error(err))
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
