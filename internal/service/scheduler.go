package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sort"
	"sync/atomic"
	"time"

	"wbtrack-rest-api/internal/metrics"
	"wbtrack-rest-api/internal/model"

	"golang.org/x/sync/errgroup"
)

// SchedulerState is the lifecycle phase of a Scheduler.
type SchedulerState int32

const (
	StateIdle SchedulerState = iota
	StateRunning
	StateSleeping
	StateStopped
)

func (s SchedulerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SnapshotStore is the persistence the scheduler needs.
type SnapshotStore interface {
	ListByMarketplace(ctx context.Context, marketplace string) ([]*model.Product, error)
	AddSnapshot(ctx context.Context, snapshot *model.Snapshot) error
}

// SchedulerConfig holds refresh loop settings.
type SchedulerConfig struct {
	// Interval is the pause between the end of one cycle and the start of the next.
	Interval time.Duration

	// BatchSize is how many products are refreshed concurrently.
	BatchSize int

	// Backoff is the first pause after a failed cycle; it doubles up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// DefaultSchedulerConfig returns the default refresh settings.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:   time.Hour,
		BatchSize:  5,
		Backoff:    30 * time.Second,
		MaxBackoff: 10 * time.Minute,
	}
}

// CycleResult counts the outcome of one refresh cycle.
type CycleResult struct {
	Total     int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

const progressEvery = 10

// Scheduler periodically refreshes snapshots of every tracked product.
//
// Cycles never overlap. Products are refreshed in fixed-size concurrent
// batches; an item failure is counted and logged without affecting its
// siblings. After cancellation no further snapshot is written.
type Scheduler struct {
	store   SnapshotStore
	sources map[string]DetailsFetcher
	cfg     SchedulerConfig
	metrics metrics.MetricsCollector

	state   atomic.Int32
	started atomic.Bool
	done    chan struct{}

	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler creates a scheduler. sources maps a marketplace to its fetcher.
func NewScheduler(store SnapshotStore, sources map[string]DetailsFetcher, cfg SchedulerConfig, m metrics.MetricsCollector) *Scheduler {
	def := DefaultSchedulerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.MaxBackoff < cfg.Backoff {
		cfg.MaxBackoff = cfg.Backoff
	}
	if m == nil {
		m = metrics.Nop{}
	}

	return &Scheduler{
		store:   store,
		sources: sources,
		cfg:     cfg,
		metrics: m,
		done:    make(chan struct{}),
		sleep:   sleepCtx,
	}
}

// State reports the current lifecycle phase.
func (s *Scheduler) State() SchedulerState {
	return SchedulerState(s.state.Load())
}

func (s *Scheduler) setState(state SchedulerState) {
	s.state.Store(int32(state))
}

// Done is closed once Run has returned.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Run executes cycles until ctx is cancelled. It must be called at most once.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		log.Printf("[Scheduler] Run called twice, ignoring")
		return
	}
	defer close(s.done)
	defer s.setState(StateStopped)

	log.Printf("[Scheduler] Started - Interval: %v, BatchSize: %d", s.cfg.Interval, s.cfg.BatchSize)

	var backoff time.Duration
	for ctx.Err() == nil {
		_, err := s.RunOnce(ctx)
		if ctx.Err() != nil {
			break
		}

		wait := s.cfg.Interval
		if err != nil {
			backoff = s.nextBackoff(backoff)
			wait = backoff
			log.Printf("[Scheduler] Cycle failed: %v (retrying in %v)", err, wait)
		} else {
			backoff = 0
		}

		s.setState(StateSleeping)
		if err := s.sleep(ctx, wait); err != nil {
			break
		}
	}

	s.setState(StateIdle)
	log.Printf("[Scheduler] Stopped")
}

func (s *Scheduler) nextBackoff(current time.Duration) time.Duration {
	if current <= 0 {
		return s.cfg.Backoff
	}
	next := current * 2
	if next > s.cfg.MaxBackoff {
		next = s.cfg.MaxBackoff
	}
	return next
}

// RunOnce performs one refresh cycle over every source.
// Item failures are counted in the result; the error is reserved for
// cycle-level failures and cancellation.
func (s *Scheduler) RunOnce(ctx context.Context) (result CycleResult, err error) {
	s.setState(StateRunning)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Scheduler] PANIC in cycle: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("scheduler cycle panicked: %v", r)
		}
		result.Duration = time.Since(start)
		if !errors.Is(err, context.Canceled) {
			s.metrics.RecordCycle(result.Duration, err != nil)
		}
	}()

	marketplaces := make([]string, 0, len(s.sources))
	for m := range s.sources {
		marketplaces = append(marketplaces, m)
	}
	sort.Strings(marketplaces)

	for _, marketplace := range marketplaces {
		products, err := s.store.ListByMarketplace(ctx, marketplace)
		if err != nil {
			return result, fmt.Errorf("failed to list %s products: %w", marketplace, err)
		}

		log.Printf("[Scheduler] Refreshing %d %s products", len(products), marketplace)
		result.Total += len(products)

		if err := s.refreshAll(ctx, s.sources[marketplace], products, &result); err != nil {
			return result, err
		}
	}

	log.Printf("[Scheduler] Cycle finished: total=%d ok=%d failed=%d duration=%v",
		result.Total, result.Succeeded, result.Failed, time.Since(start))
	return result, nil
}

func (s *Scheduler) refreshAll(ctx context.Context, fetcher DetailsFetcher, products []*model.Product, result *CycleResult) error {
	processed := 0
	for i := 0; i < len(products); i += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			log.Printf("[Scheduler] Cancelled after %d/%d products", processed, len(products))
			return err
		}

		end := min(i+s.cfg.BatchSize, len(products))
		ok, failed := s.refreshBatch(ctx, fetcher, products[i:end])
		result.Succeeded += ok
		result.Failed += failed
		s.metrics.RecordItems(ok, failed)

		before := processed
		processed = end
		if processed/progressEvery > before/progressEvery {
			log.Printf("[Scheduler] Progress: %d/%d", processed, len(products))
		}
	}
	return nil
}

// refreshBatch refreshes products concurrently and waits for all of them.
func (s *Scheduler) refreshBatch(ctx context.Context, fetcher DetailsFetcher, batch []*model.Product) (int, int) {
	var ok, failed atomic.Int32
	var g errgroup.Group

	for _, p := range batch {
		g.Go(func() error {
			if err := s.refreshOne(ctx, fetcher, p); err != nil {
				failed.Add(1)
				log.Printf("[Scheduler] Failed to refresh %s/%s: %v", p.Marketplace, p.Artikul, err)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(ok.Load()), int(failed.Load())
}

func (s *Scheduler) refreshOne(ctx context.Context, fetcher DetailsFetcher, p *model.Product) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	details, err := fetcher.FetchDetails(ctx, p.Artikul)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.store.AddSnapshot(ctx, details.Snapshot(p.ID))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
