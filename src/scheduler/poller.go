package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrInvalidPollerConfig = errors.New("invalid poller config")

// Ticker is the part of time.Ticker the poller uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	ticker *time.Ticker
}

func (t *timeTicker) C() <-chan time.Time { return t.ticker.C }

func (t *timeTicker) Stop() { t.ticker.Stop() }

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return &timeTicker{ticker: time.NewTicker(d)}
}

// Poller re-invokes a fetch on a fixed interval. Every invocation runs in its
// own goroutine: a slow fetch never delays the next tick and is never cancelled
// by it.
type Poller struct {
	name      string
	interval  time.Duration
	handler   func(ctx context.Context) error
	logger    *logrus.Logger
	newTicker TickerFactory
	immediate bool
}

type Option func(*Poller)

func WithName(name string) Option {
	return func(p *Poller) {
		p.name = name
	}
}

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.interval = d
	}
}

func WithHandler(h func(ctx context.Context) error) Option {
	return func(p *Poller) {
		p.handler = h
	}
}

func WithLogger(l *logrus.Logger) Option {
	return func(p *Poller) {
		p.logger = l
	}
}

// WithImmediate controls the invocation Start makes before the first tick.
// Callers that already fetched synchronously turn it off.
func WithImmediate(immediate bool) Option {
	return func(p *Poller) {
		p.immediate = immediate
	}
}

func WithTicker(f TickerFactory) Option {
	return func(p *Poller) {
		p.newTicker = f
	}
}

func (p *Poller) IsValid() error {
	switch {
	case p.logger == nil:
		return errors.Wrap(ErrInvalidPollerConfig, "logger cannot be nil")
	case p.interval <= 0:
		return errors.Wrap(ErrInvalidPollerConfig, "interval must be positive")
	case p.handler == nil:
		return errors.Wrap(ErrInvalidPollerConfig, "handler cannot be nil")
	case p.newTicker == nil:
		return errors.Wrap(ErrInvalidPollerConfig, "ticker factory cannot be nil")
	default:
		return nil
	}
}

func NewPoller(opts ...Option) (*Poller, error) {
	p := &Poller{
		logger:    logrus.StandardLogger(),
		newTicker: NewTicker,
		immediate: true,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, p.IsValid()
}

func (p *Poller) Interval() time.Duration {
	return p.interval
}

// PollHandle controls one running poll loop.
type PollHandle struct {
	stopped chan struct{}
	cancel  context.CancelFunc
	once    sync.Once
}

// Stop cancels future invocations and the context handed to the handler.
// It is safe to call from inside the handler and more than once.
func (h *PollHandle) Stop() {
	h.once.Do(func() {
		close(h.stopped)
		h.cancel()
	})
}

func (h *PollHandle) Stopped() bool {
	select {
	case <-h.stopped:
		return true
	default:
		return false
	}
}

// Start invokes the handler right away, unless disabled, and then on every
// tick until the handle is stopped or ctx is done.
func (p *Poller) Start(ctx context.Context) (*PollHandle, error) {
	if err := p.IsValid(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	handle := &PollHandle{stopped: make(chan struct{}), cancel: cancel}
	ticker := p.newTicker(p.interval)

	if p.immediate {
		go p.invoke(ctx, handle)
	}

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-handle.stopped:
				return
			case <-ctx.Done():
				handle.Stop()
				return
			case <-ticker.C():
				if handle.Stopped() {
					return
				}
				go p.invoke(ctx, handle)
			}
		}
	}()

	return handle, nil
}

func (p *Poller) invoke(ctx context.Context, handle *PollHandle) {
	if handle.Stopped() {
		return
	}
	if err := p.handler(ctx); err != nil {
		p.logger.WithFields(logrus.Fields{
			"poller":   p.name,
			"interval": p.interval.String(),
		}).WithError(err).Debug("poll handler error")
	}
}
