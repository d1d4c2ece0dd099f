package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cosmossdk.io/log"

	"github.com/Pranav2456/Rutzo/internal/types"
)

// DefaultInterval is the poll cadence when none is configured.
const DefaultInterval = 2 * time.Second

// Fetcher reads one snapshot of a match. *ledger.Client implements it.
type Fetcher interface {
	Snapshot(ctx context.Context, id types.MatchID) (types.Snapshot, error)
}

// Sink consumes snapshots and reports whether the match reached a terminal
// phase, which disarms the poller.
type Sink interface {
	Apply(id types.MatchID, snap types.Snapshot) (terminal bool)
}

// Stats counts poller activity since construction.
type Stats struct {
	Ticks     uint64
	Skipped   uint64 // ticks dropped because a fetch was still running
	Discarded uint64 // results that arrived after disarm or re-arm
	Failures  uint64
}

// run is one armed period.
type run struct {
	id       types.MatchID
	gen      uint64
	cancel   context.CancelFunc
	inFlight atomic.Bool
}

// Poller periodically snapshots the armed match and forwards the result to
// its Sink. It never queues ticks and never backs off.
type Poller struct {
	fetch    Fetcher
	sink     Sink
	interval time.Duration
	logger   log.Logger
	onError  func(types.MatchID, error)

	mu  sync.Mutex
	cur *run
	gen uint64

	ticks, skipped, discarded, failures atomic.Uint64
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithLogger(l log.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// OnError registers a callback for failed fetches.
func OnError(fn func(types.MatchID, error)) Option {
	return func(p *Poller) { p.onError = fn }
}

func New(fetch Fetcher, sink Sink, opts ...Option) *Poller {
	p := &Poller{
		fetch:    fetch,
		sink:     sink,
		interval: DefaultInterval,
		logger:   log.NewNopLogger(),
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = p.logger.With("module", "poller")
	return p
}

// Arm starts polling id, replacing any previous target. The first fetch runs
// immediately.
func (p *Poller) Arm(id types.MatchID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cur != nil {
		p.cur.cancel()
	}
	p.gen++
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{id: id, gen: p.gen, cancel: cancel}
	p.cur = r
	p.logger.Debug("armed", "match_id", int64(id), "gen", r.gen)
	go p.loop(ctx, r)
}

// Disarm stops polling. It is a no-op when already disarmed.
func (p *Poller) Disarm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disarmLocked()
}

func (p *Poller) disarmLocked() {
	if p.cur == nil {
		return
	}
	p.cur.cancel()
	p.logger.Debug("disarmed", "match_id", int64(p.cur.id), "gen", p.cur.gen)
	p.cur = nil
}

// Armed returns the polled match, if any.
func (p *Poller) Armed() (types.MatchID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return types.NoMatch, false
	}
	return p.cur.id, true
}

func (p *Poller) Stats() Stats {
	return Stats{
		Ticks:     p.ticks.Load(),
		Skipped:   p.skipped.Load(),
		Discarded: p.discarded.Load(),
		Failures:  p.failures.Load(),
	}
}

func (p *Poller) current(r *run) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur == r
}

func (p *Poller) loop(ctx context.Context, r *run) {
	p.tick(ctx, r)
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.tick(ctx, r)
		}
	}
}

func (p *Poller) tick(ctx context.Context, r *run) {
	p.ticks.Add(1)
	if !r.inFlight.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		return
	}
	go func() {
		defer r.inFlight.Store(false)

		snap, err := p.fetch.Snapshot(ctx, r.id)
		if !p.current(r) {
			p.discarded.Add(1)
			return
		}
		if err != nil {
			p.failures.Add(1)
			p.logger.Error("poll failed", "match_id", int64(r.id), "err", err)
			if p.onError != nil {
				p.onError(r.id, err)
			}
			return
		}
		if p.sink.Apply(r.id, snap) {
			p.mu.Lock()
			if p.cur == r {
				p.logger.Info("terminal phase reached", "match_id", int64(r.id))
				p.disarmLocked()
			}
			p.mu.Unlock()
		}
	}()
}
