package tracing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/tracechain/internal/infrastructure/resilience"
)

// Client delivers one batch of spans to a collector. Implementations wrap
// failures worth retrying in an ExportError with Transient set.
type Client interface {
	Export(ctx context.Context, resource Resource, batch []SpanRecord) error
	Close() error
}

// ExporterOptions controls batching and delivery
type ExporterOptions struct {
	BatchSize     int
	FlushInterval time.Duration
	ExportTimeout time.Duration
	MaxRetries    uint64
	RetryInitial  time.Duration
	RetryMax      time.Duration
	QueueWarnSize int
}

// DefaultExporterOptions returns the options used when nothing is configured
func DefaultExporterOptions() ExporterOptions {
	return ExporterOptions{
		BatchSize:     512,
		FlushInterval: 5 * time.Second,
		ExportTimeout: 10 * time.Second,
		MaxRetries:    5,
		RetryInitial:  100 * time.Millisecond,
		RetryMax:      5 * time.Second,
		QueueWarnSize: 10000,
	}
}

func (o ExporterOptions) withDefaults() ExporterOptions {
	def := DefaultExporterOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = def.FlushInterval
	}
	if o.ExportTimeout <= 0 {
		o.ExportTimeout = def.ExportTimeout
	}
	if o.RetryInitial <= 0 {
		o.RetryInitial = def.RetryInitial
	}
	if o.RetryMax < o.RetryInitial {
		o.RetryMax = o.RetryInitial
	}
	if o.QueueWarnSize <= 0 {
		o.QueueWarnSize = def.QueueWarnSize
	}
	return o
}

// Exporter queues closed spans and delivers them in batches from a single
// background goroutine. Producers never block: Enqueue only appends under a
// short lock.
type Exporter struct {
	client   Client
	resource Resource
	opts     ExporterOptions
	breaker  *resilience.Breaker
	logger   *zap.Logger
	metrics  *Metrics
	warn     *rate.Limiter

	mu      sync.Mutex
	queue   []SpanRecord
	started bool
	stopped bool

	dropped atomic.Int64

	flushCh chan struct{}
	stopCh  chan struct{}
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewExporter creates an exporter delivering to client. Call Start to begin
// flushing and Shutdown to drain.
func NewExporter(client Client, resource Resource, opts ExporterOptions, logger *zap.Logger, metrics *Metrics) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("exporter")
	ctx, cancel := context.WithCancel(context.Background())

	e := &Exporter{
		client:   client,
		resource: resource,
		opts:     opts.withDefaults(),
		logger:   logger,
		metrics:  metrics,
		warn:     rate.NewLimiter(rate.Every(10*time.Second), 1),
		flushCh:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	e.breaker = resilience.New("collector", resilience.Settings{
		FailureThreshold: 5,
		CoolDown:         30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("collector breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
	return e
}

// Start launches the flush loop. Calling it again has no effect.
func (e *Exporter) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.stopped {
		return
	}
	e.started = true
	go e.run()
}

// Enqueue adds a closed span to the queue. It never blocks and returns false
// when the exporter has been shut down.
func (e *Exporter) Enqueue(rec SpanRecord) bool {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		e.drop(dropReasonStopped, 1)
		return false
	}
	e.queue = append(e.queue, rec)
	n := len(e.queue)
	e.mu.Unlock()

	e.metrics.setQueueDepth(n)
	if n >= e.opts.BatchSize {
		select {
		case e.flushCh <- struct{}{}:
		default:
		}
	}
	if n > e.opts.QueueWarnSize && e.warn.Allow() {
		e.logger.Warn("span queue above warning threshold",
			zap.Int("queued", n),
			zap.Int("threshold", e.opts.QueueWarnSize),
		)
	}
	return true
}

// Shutdown stops intake, delivers everything still queued and closes the
// client. When ctx expires first, in-flight delivery is canceled, the rest of
// the queue is dropped and ctx's error is returned. The client is closed only
// after the worker has exited.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrExporterStopped
	}
	e.stopped = true
	started := e.started
	e.mu.Unlock()

	var err error
	if started {
		close(e.stopCh)
		select {
		case <-e.done:
		case <-ctx.Done():
			e.cancel()
			<-e.done
			err = ctx.Err()
			e.logger.Warn("exporter shutdown timed out", zap.Error(err))
		}
	} else {
		stop := context.AfterFunc(ctx, e.cancel)
		e.drain()
		stop()
		err = ctx.Err()
	}
	e.cancel()

	if closeErr := e.client.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	return err
}

// Len returns the number of spans waiting to be delivered
func (e *Exporter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Dropped returns the number of sampled spans that were never delivered
func (e *Exporter) Dropped() int64 {
	return e.dropped.Load()
}

func (e *Exporter) run() {
	defer close(e.done)

	timer := time.NewTimer(e.opts.FlushInterval)
	defer timer.Stop()

	for {
		select {
		case <-e.stopCh:
			e.drain()
			return
		case <-timer.C:
			e.flushAll()
		case <-e.flushCh:
			e.flushFull()
		}
		timer.Reset(e.opts.FlushInterval)
	}
}

// flushFull sends batches of exactly BatchSize while the queue holds that many
func (e *Exporter) flushFull() {
	for {
		batch := e.take(true)
		if batch == nil {
			return
		}
		if !e.send(batch) {
			return
		}
	}
}

// flushAll sends everything queued, the last batch possibly short
func (e *Exporter) flushAll() {
	for {
		batch := e.take(false)
		if batch == nil {
			return
		}
		if !e.send(batch) {
			return
		}
	}
}

func (e *Exporter) drain() {
	e.flushAll()

	e.mu.Lock()
	rest := len(e.queue)
	e.queue = nil
	e.mu.Unlock()

	if rest > 0 {
		e.metrics.setQueueDepth(0)
		e.drop(dropReasonStopped, rest)
		e.logger.Warn("dropping spans left in queue at shutdown", zap.Int("spans", rest))
	}
}

// take removes up to BatchSize records from the head of the queue. With
// full set it only returns a complete batch.
func (e *Exporter) take(full bool) []SpanRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.queue)
	if n == 0 || (full && n < e.opts.BatchSize) {
		return nil
	}
	if n > e.opts.BatchSize {
		n = e.opts.BatchSize
	}
	batch := make([]SpanRecord, n)
	copy(batch, e.queue[:n])
	clear(e.queue[:n])
	e.queue = e.queue[n:]
	e.metrics.setQueueDepth(len(e.queue))
	return batch
}

// requeue puts a batch back at the head of the queue
func (e *Exporter) requeue(batch []SpanRecord) {
	e.mu.Lock()
	e.queue = append(batch, e.queue...)
	n := len(e.queue)
	e.mu.Unlock()
	e.metrics.setQueueDepth(n)
}

// send delivers one batch and reports whether the loop should keep going.
// A batch interrupted by shutdown goes back on the queue.
func (e *Exporter) send(batch []SpanRecord) bool {
	start := time.Now()
	err := e.breaker.Execute(func() error {
		return e.deliver(batch)
	})
	elapsed := time.Since(start).Seconds()

	if err == nil {
		e.metrics.batchExported(len(batch), elapsed)
		e.logger.Debug("span batch exported",
			zap.Int("spans", len(batch)),
			zap.Float64("duration_seconds", elapsed),
		)
		return true
	}

	if e.ctx.Err() != nil {
		e.requeue(batch)
		return false
	}

	reason := dropReasonPermanent
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrProbeInFlight):
		reason = dropReasonBreaker
	case IsTransient(err):
		reason = dropReasonRetries
	}
	e.metrics.batchFailed(elapsed)
	e.drop(reason, len(batch))
	e.logger.Warn("dropping span batch",
		zap.Int("spans", len(batch)),
		zap.String("reason", reason),
		zap.Error(err),
	)
	return true
}

// deliver exports a batch, retrying transient failures with exponential
// backoff up to MaxRetries times
func (e *Exporter) deliver(batch []SpanRecord) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.RetryInitial
	b.MaxInterval = e.opts.RetryMax
	b.MaxElapsedTime = 0

	op := func() error {
		if err := e.ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		ctx, cancel := context.WithTimeout(e.ctx, e.opts.ExportTimeout)
		defer cancel()

		err := e.client.Export(ctx, e.resource, batch)
		if err == nil {
			return nil
		}
		if e.ctx.Err() != nil || !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		e.metrics.exportRetried()
		e.logger.Debug("retrying span export",
			zap.Int("spans", len(batch)),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	return backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, e.opts.MaxRetries), e.ctx), notify)
}

func (e *Exporter) drop(reason string, n int) {
	e.dropped.Add(int64(n))
	e.metrics.spansDropped(reason, n)
}
