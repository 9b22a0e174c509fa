package dbx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-uuid"
)

// Pool is a bounded collection of live backend sessions. It never hands out
// more than Config.MaxConns handles at once; sessions are opened lazily on
// demand (or pre-warmed via WithPrewarm) and closed when the pool is.
//
// Acquisition comes in two modes sharing one free list and one bound:
// Acquire suspends cooperatively on the caller's context, and
// AcquireTimeout blocks the calling goroutine for a fixed wait. Both fail
// with ErrPoolExhausted when their deadline elapses first.
type Pool struct {
	adapter Adapter
	cfg     Config
	log     hclog.Logger

	mu      sync.Mutex
	closed  bool
	numOpen int

	idle  chan *Handle  // released sessions awaiting reuse
	slots chan struct{} // a token is permission to open one session
}

// NewPool constructs a pool for one injected adapter. cfg is immutable
// afterwards; zero sizing fields take package defaults.
func NewPool(adapter Adapter, cfg Config, opt ...Option) (*Pool, error) {
	if adapter == nil {
		return nil, errors.New("dbx: NewPool: nil adapter")
	}
	cfg = cfg.withDefaults()
	opts := getOpts(opt...)

	p := &Pool{
		adapter: adapter,
		cfg:     cfg,
		log:     opts.logger.Named("pool"),
		idle:    make(chan *Handle, cfg.MaxConns),
		slots:   make(chan struct{}, cfg.MaxConns),
	}
	for i := 0; i < cfg.MaxConns; i++ {
		p.slots <- struct{}{}
	}

	if n := opts.prewarm; n > 0 {
		if n > cfg.MaxConns {
			n = cfg.MaxConns
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.AcquireTimeout)
		defer cancel()
		for i := 0; i < n; i++ {
			<-p.slots
			h, err := p.open(ctx)
			if err != nil {
				cerr := p.Close()
				return nil, multierror.Append(err, cerr).ErrorOrNil()
			}
			h.released.Store(true)
			p.idle <- h
		}
	}

	p.log.Info("pool ready", "backend", adapter.Name(), "max_conns", cfg.MaxConns)
	return p, nil
}

// Adapter returns the injected backend adapter.
func (p *Pool) Adapter() Adapter { return p.adapter }

// Acquire obtains a session handle, suspending cooperatively until one is
// released, a new one may be opened, or ctx is done. A context deadline
// maps to ErrPoolExhausted; plain cancellation propagates as ctx.Err().
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, acquireErr(err)
	}

	// Prefer an idle session over opening a new one.
	select {
	case h, ok := <-p.idle:
		if !ok {
			return nil, ErrPoolClosed
		}
		h.released.Store(false)
		return h, nil
	default:
	}

	select {
	case h, ok := <-p.idle:
		if !ok {
			return nil, ErrPoolClosed
		}
		h.released.Store(false)
		return h, nil
	case <-p.slots:
		h, err := p.open(ctx)
		if err != nil {
			return nil, err
		}
		return h, nil
	case <-ctx.Done():
		return nil, acquireErr(ctx.Err())
	}
}

// AcquireTimeout is the blocking acquisition variant: it waits up to d
// (Config.AcquireTimeout when d <= 0) and then fails with ErrPoolExhausted.
func (p *Pool) AcquireTimeout(d time.Duration) (*Handle, error) {
	if d <= 0 {
		d = p.cfg.AcquireTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return p.Acquire(ctx)
}

// open consumes a slot token held by the caller. On failure the token goes
// back so the capacity is not leaked.
func (p *Pool) open(ctx context.Context) (*Handle, error) {
	sess, err := p.adapter.Open(ctx, p.cfg)
	if err != nil {
		p.slots <- struct{}{}
		return nil, NewConnError("open "+p.adapter.Name()+" session", err)
	}
	id, err := uuid.GenerateUUID()
	if err != nil {
		p.slots <- struct{}{}
		_ = sess.Close()
		return nil, fmt.Errorf("dbx: session id: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = sess.Close()
		return nil, ErrPoolClosed
	}
	p.numOpen++
	p.mu.Unlock()

	p.log.Debug("session opened", "backend", p.adapter.Name(), "session_id", id)
	return &Handle{id: id, sess: sess, pool: p}, nil
}

// put returns a handle to the idle set, or closes its session if the pool
// shut down while the handle was out.
func (p *Pool) put(h *Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.numOpen--
		if err := h.sess.Close(); err != nil {
			p.log.Warn("closing session after pool shutdown", "session_id", h.id, "error", err)
		}
		return
	}
	p.idle <- h
}

// discard closes a broken session and frees its slot; a replacement is
// opened lazily on next demand.
func (p *Pool) discard(h *Handle) {
	p.mu.Lock()
	p.numOpen--
	closed := p.closed
	p.mu.Unlock()

	if err := h.sess.Close(); err != nil {
		p.log.Warn("closing discarded session", "session_id", h.id, "error", err)
	}
	if !closed {
		p.slots <- struct{}{}
	}
	p.log.Debug("session discarded", "backend", p.adapter.Name(), "session_id", h.id)
}

// Close tears the pool down: idle sessions are closed immediately, handles
// still out are closed as they are released, and waiting acquirers fail
// with ErrPoolClosed. Adapters that implement io.Closer are closed too, so
// shared backend handles do not outlive the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	var merr *multierror.Error
	for {
		select {
		case h := <-p.idle:
			p.numOpen--
			if err := h.sess.Close(); err != nil {
				merr = multierror.Append(merr, err)
			}
		default:
			close(p.idle)
			p.mu.Unlock()
			if c, ok := p.adapter.(io.Closer); ok {
				if err := c.Close(); err != nil {
					merr = multierror.Append(merr, err)
				}
			}
			p.log.Info("pool closed", "backend", p.adapter.Name())
			return merr.ErrorOrNil()
		}
	}
}

// PoolStats is a point-in-time view used by health checks and tests.
type PoolStats struct {
	Open int // live sessions, idle or handed out
	Idle int // sessions waiting in the free list
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Open: p.numOpen, Idle: len(p.idle)}
}

func acquireErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrPoolExhausted, err)
	}
	return err
}

// Handle is one checked-out session. Checkout from the pool is the only way
// to obtain one; Release (or Discard) is the only way to give it back.
// A Handle must not be shared across concurrent operations.
type Handle struct {
	id   string
	sess Session
	pool *Pool

	released atomic.Bool
}

// ID is the pool-assigned session id, stable across reuses.
func (h *Handle) ID() string { return h.id }

// Session exposes the underlying backend session.
func (h *Handle) Session() Session { return h.sess }

// Release returns the session to the pool. Releasing twice is a no-op.
func (h *Handle) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	h.pool.put(h)
}

// Discard evicts the session instead of returning it, freeing its slot for
// a lazily opened replacement. Use it when the session is broken.
func (h *Handle) Discard() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	h.pool.discard(h)
}

// Finish releases the handle, discarding it when err reports the session
// itself died. Every execution path through the store funnels here.
func (h *Handle) Finish(err error) {
	if err != nil && errors.Is(err, ErrConnection) {
		h.Discard()
		return
	}
	h.Release()
}
