package watch

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Reloader is the part of the controller a watcher drives.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Watcher reloads on a cron schedule and calls Render after every tick,
// whether or not the reload succeeded, so urgency is recomputed against the
// current time even while the service is down.
type Watcher struct {
	reloader Reloader
	render   func()
	cron     *cron.Cron
	logger   log.FieldLogger

	mu      sync.Mutex
	running bool
	ctx     context.Context
}

// New creates a watcher for a standard cron spec such as "*/5 * * * *" or
// "@every 30s".
func New(r Reloader, spec string, render func(), logger log.FieldLogger) (*Watcher, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	w := &Watcher{
		reloader: r,
		render:   render,
		cron:     cron.New(),
		logger:   logger,
		ctx:      context.Background(),
	}
	if _, err := w.cron.AddFunc(spec, w.tick); err != nil {
		return nil, fmt.Errorf("invalid schedule '%s': %w", spec, err)
	}
	return w, nil
}

// Run renders once, starts the schedule and blocks until ctx is done.
// Cancelling ctx also cancels a reload in flight.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	w.tick()
	w.cron.Start()
	<-ctx.Done()
	<-w.cron.Stop().Done()
	return nil
}

// tick skips when the previous tick is still running.
func (w *Watcher) tick() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logger.Debug("watch: previous reload still running, skipping tick")
		return
	}
	w.running = true
	ctx := w.ctx
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if err := w.reloader.Reload(ctx); err != nil {
		w.logger.WithError(err).Debug("watch: reload failed")
	}
	if w.render != nil {
		w.render()
	}
}
