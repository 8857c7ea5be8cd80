package media

import (
	"context"
	"log/slog"
	"sync"

	"github.com/autovisiontech/dealership/internal/observability"
)

// Compensator deletes a request's uploads when the work that should have
// adopted them fails.
type Compensator struct {
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewCompensator builds a Compensator.
func NewCompensator(store Store, logger *slog.Logger, metrics *observability.Metrics) *Compensator {
	return &Compensator{store: store, logger: logger, metrics: metrics}
}

// Pending holds the uploads of one request until they are released or purged.
type Pending struct {
	c    *Compensator
	mu   sync.Mutex
	refs []Reference
	done bool
}

// Begin registers refs as owned by the current request.
func (c *Compensator) Begin(refs ...Reference) *Pending {
	p := &Pending{c: c}
	p.Track(refs...)
	return p
}

// Track adds more uploads to the pending set.
func (p *Pending) Track(refs ...Reference) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.refs = append(p.refs, refs...)
}

// Release hands ownership of the uploads to whatever adopted them.
func (p *Pending) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true
	p.refs = nil
}

// Purge deletes the pending uploads. Failures are logged only. Calling it
// again, or after Release, does nothing.
func (p *Pending) Purge(ctx context.Context) {
	p.mu.Lock()
	refs := p.refs
	already := p.done
	p.done = true
	p.refs = nil
	p.mu.Unlock()

	if already || len(refs) == 0 {
		return
	}
	report := p.c.store.DeleteMany(context.WithoutCancel(ctx), refs)
	observeReport(p.c.metrics, "compensation", report)
	if !report.OK() {
		p.c.logger.Error("upload compensation incomplete",
			slog.Int("deleted", len(report.Deleted)), slog.Int("failed", len(report.Failed)))
		return
	}
	p.c.logger.Info("uploads purged after failure", slog.Int("count", len(report.Deleted)))
}

// Close purges when *errp holds an error and releases otherwise. Use with defer.
func (p *Pending) Close(ctx context.Context, errp *error) {
	if errp != nil && *errp != nil {
		p.Purge(ctx)
		return
	}
	p.Release()
}

// Run executes fn with refs registered. Any error from fn, or a panic, purges
// the uploads; the error is returned unchanged and a panic is re-raised.
func (c *Compensator) Run(ctx context.Context, refs []Reference, fn func(context.Context) error) (err error) {
	p := c.Begin(refs...)
	defer func() {
		if rec := recover(); rec != nil {
			p.Purge(ctx)
			panic(rec)
		}
		p.Close(ctx, &err)
	}()
	return fn(ctx)
}
