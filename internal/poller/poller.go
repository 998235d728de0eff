package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/joshp123/gohome-lyric/lyric"
)

// Fetcher is the read side of lyric.Client.
type Fetcher interface {
	GetLocations(ctx context.Context) ([]lyric.Location, error)
	GetDevices(ctx context.Context, locationID int) ([]lyric.Device, error)
}

// Subscriber receives every successful snapshot.
type Subscriber func(ctx context.Context, locations []lyric.Location)

// Poller refreshes locations and their devices on a cron schedule and keeps
// the last good snapshot.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	logger   *zap.Logger

	subscribers []Subscriber
	observers   []func(error)
	onAuthError func(context.Context)

	mu        sync.RWMutex
	locations []lyric.Location
	polledAt  time.Time
	lastErr   error
}

type Option func(*Poller)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithSubscriber registers fn to run after each successful poll.
func WithSubscriber(fn Subscriber) Option {
	return func(p *Poller) { p.subscribers = append(p.subscribers, fn) }
}

// WithObserver registers fn to receive the outcome of every poll.
func WithObserver(fn func(error)) Option {
	return func(p *Poller) { p.observers = append(p.observers, fn) }
}

// WithAuthFailureHandler runs fn when the API rejects the credentials.
func WithAuthFailureHandler(fn func(context.Context)) Option {
	return func(p *Poller) { p.onAuthError = fn }
}

func New(fetcher Fetcher, interval time.Duration, opts ...Option) (*Poller, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if interval < time.Second {
		return nil, fmt.Errorf("poll interval must be at least 1s, got %s", interval)
	}
	p := &Poller{
		fetcher:  fetcher,
		interval: interval,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run polls once, then on every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	p.tick(ctx)

	c := cron.New(cron.WithLogger(cronLogger{p.logger.Sugar()}))
	if _, err := c.AddJob(fmt.Sprintf("@every %s", p.interval), p.job(ctx)); err != nil {
		return fmt.Errorf("schedule poll: %w", err)
	}
	c.Start()
	p.logger.Info("poller started", zap.Duration("interval", p.interval))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// job skips a tick while the previous poll is still running.
func (p *Poller) job(ctx context.Context) cron.Job {
	skip := cron.SkipIfStillRunning(cronLogger{p.logger.Sugar()})
	return cron.NewChain(skip).Then(cron.FuncJob(func() { p.tick(ctx) }))
}

func (p *Poller) tick(ctx context.Context) {
	if err := p.Poll(ctx); err != nil {
		p.logger.Error("poll failed", zap.Error(err))
	}
}

// Poll fetches every location and then the devices of each one. A location
// whose device fetch fails keeps the devices embedded in the locations payload.
func (p *Poller) Poll(ctx context.Context) (err error) {
	defer func() {
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		for _, observe := range p.observers {
			observe(err)
		}
		if errors.Is(err, lyric.ErrAuthentication) && p.onAuthError != nil {
			p.onAuthError(ctx)
		}
	}()

	locations, err := p.fetcher.GetLocations(ctx)
	if err != nil {
		return fmt.Errorf("get locations: %w", err)
	}

	var errs []error
	for i := range locations {
		devices, err := p.fetcher.GetDevices(ctx, locations[i].LocationID)
		if err != nil {
			errs = append(errs, fmt.Errorf("get devices for location %d: %w", locations[i].LocationID, err))
			continue
		}
		locations[i].Devices = devices
	}

	p.mu.Lock()
	p.locations = locations
	p.polledAt = time.Now()
	p.mu.Unlock()

	p.logger.Debug("poll complete", zap.Int("locations", len(locations)))
	for _, notify := range p.subscribers {
		notify(ctx, cloneLocations(locations))
	}
	return errors.Join(errs...)
}

// Locations returns the last snapshot.
func (p *Poller) Locations() []lyric.Location {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneLocations(p.locations)
}

// PolledAt reports when the last snapshot was stored.
func (p *Poller) PolledAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.polledAt
}

// LastError returns the error of the most recent poll, nil if it succeeded.
func (p *Poller) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// Interval is the configured poll period.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

func cloneLocations(in []lyric.Location) []lyric.Location {
	out := make([]lyric.Location, len(in))
	for i, loc := range in {
		loc.Devices = append([]lyric.Device(nil), loc.Devices...)
		out[i] = loc
	}
	return out
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
