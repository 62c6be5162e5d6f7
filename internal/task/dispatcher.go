package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hyperifyio/serpgate/internal/cache"
	"github.com/hyperifyio/serpgate/internal/model"
)

const (
	DefaultWorkers     = 4
	DefaultQueueSize   = 256
	DefaultTaskTimeout = 60 * time.Second
	DefaultRetention   = time.Hour
)

// ErrStopped is returned by Submit once the dispatcher has shut down.
var ErrStopped = errors.New("dispatcher stopped")

// Runner produces the result for one request.
type Runner interface {
	Run(ctx context.Context, req model.SearchRequest) (model.Result, error)
}

// ResultCache is the read-through cache in front of the Runner.
// *cache.Gateway implements it.
type ResultCache interface {
	Get(ctx context.Context, fp string) (model.Result, bool)
	Set(ctx context.Context, fp string, res model.Result)
}

// Observer receives task lifecycle counts.
type Observer interface {
	ObserveTask(status string)
	SetQueueDepth(n int)
}

// Options tunes a Dispatcher. Zero values take the package defaults.
type Options struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
	Retention   time.Duration
	Observer    Observer
}

// Dispatcher accepts requests, answers cache hits immediately and runs misses
// on a fixed pool of workers. Identical requests in flight at the same time
// share one Runner call.
type Dispatcher struct {
	store  *Store
	runner Runner
	cache  ResultCache
	opts   Options
	queue  chan string
	flight singleflight.Group

	// mu orders enqueues against the shutdown drain: Submit holds it shared
	// while it checks closed and enqueues, Run holds it exclusively to close.
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher wires a dispatcher. c may be nil to disable caching.
func NewDispatcher(store *Store, runner Runner, c ResultCache, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	return &Dispatcher{
		store:  store,
		runner: runner,
		cache:  c,
		opts:   opts,
		queue:  make(chan string, opts.QueueSize),
	}
}

// Submit validates req and returns its task. A cache hit yields a task that
// is already completed with Cached set; a miss yields a pending task queued
// for a worker. Submit never waits for the pipeline.
func (d *Dispatcher) Submit(ctx context.Context, req model.SearchRequest) (Task, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return Task{}, err
	}
	if d.isClosed() {
		return Task{}, ErrStopped
	}
	fp := cache.Fingerprint(req)
	if d.cache != nil {
		if res, ok := d.cache.Get(ctx, fp); ok {
			t := d.store.CreateCompleted(req, fp, res)
			d.observe(StatusCompleted)
			log.Debug().Str("task_id", t.ID).Str("fingerprint", fp).Msg("served from cache")
			return t, nil
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return Task{}, ErrStopped
	}
	t := d.store.Create(req, fp)
	select {
	case d.queue <- t.ID:
	default:
		d.store.Delete(t.ID)
		log.Warn().Str("fingerprint", fp).Int("queue_size", d.opts.QueueSize).Msg("task queue full")
		return Task{}, ErrQueueFull
	}
	d.queueDepth()
	log.Debug().Str("task_id", t.ID).Str("fingerprint", fp).Msg("task queued")
	return t, nil
}

// Poll returns the current snapshot of a task without changing it.
func (d *Dispatcher) Poll(id string) (Task, error) {
	return d.store.Get(id)
}

// Run starts the workers and the retention sweeper and blocks until ctx is
// done. In-flight tasks finish; tasks still queued are failed.
func (d *Dispatcher) Run(ctx context.Context) error {
	var g errgroup.Group
	for i := 0; i < d.opts.Workers; i++ {
		g.Go(func() error {
			d.work(ctx)
			return nil
		})
	}
	g.Go(func() error {
		d.sweep(ctx)
		return nil
	})
	err := g.Wait()

	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	for {
		select {
		case id := <-d.queue:
			if _, ferr := d.store.Fail(id, ErrStopped.Error()); ferr == nil {
				d.observe(StatusFailed)
			}
		default:
			d.queueDepth()
			return err
		}
	}
}

func (d *Dispatcher) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-d.queue:
			d.queueDepth()
			d.process(ctx, id)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, id string) {
	t, err := d.store.Claim(id)
	if err != nil {
		log.Warn().Err(err).Str("task_id", id).Msg("claim failed")
		return
	}
	// shutdown lets in-flight work finish within its own deadline
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.TaskTimeout)
	defer cancel()

	start := time.Now()
	res, err := d.execute(tctx, t)
	if err != nil {
		if _, ferr := d.store.Fail(id, err.Error()); ferr != nil {
			log.Error().Err(ferr).Str("task_id", id).Msg("record failure")
			return
		}
		d.observe(StatusFailed)
		log.Warn().Err(err).Str("task_id", id).Str("fingerprint", t.Fingerprint).Dur("elapsed", time.Since(start)).Msg("task failed")
		return
	}
	if _, err := d.store.Complete(id, res); err != nil {
		log.Error().Err(err).Str("task_id", id).Msg("record result")
		return
	}
	d.observe(StatusCompleted)
	log.Info().Str("task_id", id).Str("fingerprint", t.Fingerprint).Int("results", len(res.OrganicResults)).
		Bool("cached", res.Cached).Dur("elapsed", time.Since(start)).Msg("task completed")
}

// execute runs the pipeline once per fingerprint among concurrent callers.
// The cache is checked again first since an identical task may have filled
// it while this one waited in the queue.
func (d *Dispatcher) execute(ctx context.Context, t Task) (model.Result, error) {
	v, err, _ := d.flight.Do(t.Fingerprint, func() (any, error) {
		if d.cache != nil {
			if res, ok := d.cache.Get(ctx, t.Fingerprint); ok {
				return res, nil
			}
		}
		res, err := d.runner.Run(ctx, t.Request)
		if err != nil {
			return nil, err
		}
		if d.cache != nil && len(res.OrganicResults) > 0 {
			d.cache.Set(ctx, t.Fingerprint, res)
		}
		return res, nil
	})
	if err != nil {
		return model.Result{}, err
	}
	return v.(model.Result), nil
}

func (d *Dispatcher) sweep(ctx context.Context) {
	interval := d.opts.Retention / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.store.Sweep(d.opts.Retention); n > 0 {
				log.Debug().Int("removed", n).Int("remaining", d.store.Len()).Msg("swept expired tasks")
			}
		}
	}
}

func (d *Dispatcher) observe(s Status) {
	if d.opts.Observer != nil {
		d.opts.Observer.ObserveTask(string(s))
	}
}

func (d *Dispatcher) queueDepth() {
	if d.opts.Observer != nil {
		d.opts.Observer.SetQueueDepth(len(d.queue))
	}
}
