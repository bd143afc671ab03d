// Package stream schedules chunk generation and decides which chunks stay
// resident around a moving viewer.
package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tileworld.ai/internal/sim/world/terrain/store"
)

// Generator produces the tiles of one chunk. A non-nil error means the
// returned grid is a fallback.
type Generator interface {
	Generate(cx, cy int) ([]uint16, error)
}

type Request struct {
	Key      store.ChunkKey
	Seed     int64
	Enqueued time.Time
}

// GenerationRecord describes one published chunk.
type GenerationRecord struct {
	Key      store.ChunkKey
	Seed     int64
	Source   store.Source
	Duration time.Duration
	Waited   time.Duration
	At       time.Time
}

// Sink receives a record for every chunk a worker publishes. It is called
// from worker goroutines and must not block.
type Sink interface {
	RecordGeneration(GenerationRecord)
}

type Options struct {
	Workers       int
	QueueCapacity int
	PollInterval  time.Duration
	RatePerSec    float64 // <= 0 means unlimited
	Sink          Sink
	Logger        *zap.Logger
}

const (
	DefaultWorkers       = 2
	DefaultQueueCapacity = 1024
	DefaultPollInterval  = 50 * time.Millisecond
)

var ErrStopped = errors.New("stream: coordinator stopped")

type Stats struct {
	Enqueued  uint64 `json:"enqueued"`
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
	Cancelled uint64 `json:"cancelled"`
	Generated uint64 `json:"generated"`
	Restored  uint64 `json:"restored"`
	Fallbacks uint64 `json:"fallbacks"`
	Discarded uint64 `json:"discarded"`
}

// Coordinator owns a bounded FIFO of chunk requests and the workers that
// drain it into a store.
type Coordinator struct {
	store *store.Store
	gen   Generator
	seed  int64

	queue   chan Request
	poll    time.Duration
	limiter *rate.Limiter
	sink    Sink
	log     *zap.Logger
	workers int

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	enqueued  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	cancelled atomic.Uint64
	generated atomic.Uint64
	restored  atomic.Uint64
	fallbacks atomic.Uint64
	discarded atomic.Uint64
}

// Start launches opts.Workers goroutines generating for seed.
func Start(st *store.Store, gen Generator, seed int64, opts Options) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		store:   st,
		gen:     gen,
		seed:    seed,
		queue:   make(chan Request, opts.QueueCapacity),
		poll:    opts.PollInterval,
		sink:    opts.Sink,
		log:     opts.Logger,
		workers: opts.Workers,
		ctx:     ctx,
		cancel:  cancel,
		stop:    make(chan struct{}),
	}
	if opts.RatePerSec > 0 {
		burst := int(opts.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	for i := 0; i < opts.Workers; i++ {
		c.wg.Add(1)
		go func(id int) {
			defer c.wg.Done()
			c.loop(id)
		}(i)
	}
	c.log.Info("generation workers started",
		zap.Int("workers", opts.Workers),
		zap.Int64("seed", seed),
		zap.Int("queue_capacity", opts.QueueCapacity),
	)
	return c
}

func (c *Coordinator) Seed() int64  { return c.seed }
func (c *Coordinator) Workers() int { return c.workers }

func (c *Coordinator) Stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// Enqueue requests generation of k. It returns false when k is already
// resident or pending, when the queue stays full for a poll interval, or
// after Stop.
func (c *Coordinator) Enqueue(k store.ChunkKey) bool {
	if c.Stopped() {
		return false
	}
	if !c.store.TryQueue(k) {
		return false
	}
	req := Request{Key: k, Seed: c.seed, Enqueued: time.Now()}
	select {
	case c.queue <- req:
		c.enqueued.Add(1)
		return true
	default:
	}
	t := time.NewTimer(c.poll)
	defer t.Stop()
	select {
	case c.queue <- req:
		c.enqueued.Add(1)
		return true
	case <-t.C:
		c.log.Debug("generation queue full; dropping request", zap.Int("cx", k.CX), zap.Int("cy", k.CY))
	case <-c.stop:
	}
	c.store.Unqueue(k)
	c.dropped.Add(1)
	return false
}

func (c *Coordinator) loop(id int) {
	for {
		select {
		case <-c.stop:
			return
		case req := <-c.queue:
			c.handle(id, req)
		}
	}
}

func (c *Coordinator) handle(worker int, req Request) {
	k := req.Key
	c.processed.Add(1)
	if c.Stopped() {
		c.store.Unqueue(k)
		c.cancelled.Add(1)
		return
	}
	if req.Seed != c.seed {
		c.store.Unqueue(k)
		c.dropped.Add(1)
		return
	}
	epoch, ok := c.store.BeginGeneration(k)
	if !ok {
		c.dropped.Add(1)
		return
	}

	log := c.log.With(zap.Int("worker", worker), zap.Int("cx", k.CX), zap.Int("cy", k.CY))
	published := false
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		log.Error("chunk request panicked", zap.Any("panic", r), zap.Bool("published", published))
		if published {
			return
		}
		if c.Stopped() {
			c.store.AbandonGeneration(k, epoch)
			return
		}
		c.fallbacks.Add(1)
		c.store.FinishGeneration(k, epoch, c.emptyGrid())
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(c.ctx); err != nil {
			c.store.AbandonGeneration(k, epoch)
			c.cancelled.Add(1)
			return
		}
	}

	start := time.Now()
	tiles, src := c.resolve(k, log)
	if c.Stopped() {
		published = true
		c.store.AbandonGeneration(k, epoch)
		c.discarded.Add(1)
		return
	}
	published = true
	if !c.store.FinishGeneration(k, epoch, tiles) {
		c.discarded.Add(1)
		return
	}
	switch src {
	case store.SourceModified, store.SourceSaved:
		c.restored.Add(1)
	case store.SourceFallback:
		c.fallbacks.Add(1)
	default:
		c.generated.Add(1)
	}
	now := time.Now()
	log.Debug("chunk published", zap.String("source", string(src)), zap.Duration("took", now.Sub(start)))
	if c.sink != nil {
		c.sink.RecordGeneration(GenerationRecord{
			Key:      k,
			Seed:     c.seed,
			Source:   src,
			Duration: now.Sub(start),
			Waited:   start.Sub(req.Enqueued),
			At:       now,
		})
	}
}

// resolve prefers retained grids over fresh generation.
func (c *Coordinator) resolve(k store.ChunkKey, log *zap.Logger) ([]uint16, store.Source) {
	if tiles, src, ok := c.store.Cached(k); ok {
		return tiles, src
	}
	tiles, err := c.gen.Generate(k.CX, k.CY)
	if err != nil {
		log.Warn("terrain generation failed; publishing empty chunk", zap.Error(err))
		return c.emptyGrid(), store.SourceFallback
	}
	if n := c.store.Size(); len(tiles) != n*n {
		log.Warn("generator returned wrong grid size; publishing empty chunk", zap.Int("len", len(tiles)))
		return c.emptyGrid(), store.SourceFallback
	}
	return tiles, store.SourceGenerated
}

func (c *Coordinator) emptyGrid() []uint16 {
	n := c.store.Size()
	out := make([]uint16, n*n)
	air := c.store.Air()
	for i := range out {
		out[i] = air
	}
	return out
}

// Stop signals the workers, discards queued requests and waits up to
// timeout for in-flight work. It reports whether every worker exited.
func (c *Coordinator) Stop(timeout time.Duration) bool {
	c.once.Do(func() {
		close(c.stop)
		c.cancel()
	})
	c.drain()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		c.drain()
		c.log.Info("generation workers stopped", zap.Uint64("cancelled", c.cancelled.Load()))
		return true
	case <-t.C:
		c.log.Warn("generation workers did not stop in time",
			zap.Duration("timeout", timeout),
			zap.Int("in_flight", c.store.InFlight()),
		)
		return false
	}
}

func (c *Coordinator) drain() {
	for {
		select {
		case req := <-c.queue:
			c.store.Unqueue(req.Key)
			c.cancelled.Add(1)
		default:
			return
		}
	}
}

// WaitIdle blocks until nothing is queued or in flight.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	t := time.NewTicker(max(c.poll/5, time.Millisecond))
	defer t.Stop()
	for {
		st := c.store.Stats()
		if st.Queued == 0 && st.InFlight == 0 {
			return nil
		}
		if c.Stopped() {
			return ErrStopped
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Coordinator) QueueLen() int { return len(c.queue) }

func (c *Coordinator) Stats() Stats {
	return Stats{
		Enqueued:  c.enqueued.Load(),
		Processed: c.processed.Load(),
		Dropped:   c.dropped.Load(),
		Cancelled: c.cancelled.Load(),
		Generated: c.generated.Load(),
		Restored:  c.restored.Load(),
		Fallbacks: c.fallbacks.Load(),
		Discarded: c.discarded.Load(),
	}
}
