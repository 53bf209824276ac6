package alert

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
)

// Dispatcher fans out alert events to matching webhook configurations.
type Dispatcher struct {
	configs []AlertConfig
	client  *http.Client
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty; a nil Dispatcher drops every event.
func NewDispatcher(configs []AlertConfig, logger zerolog.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		configs: configs,
		client:  &http.Client{Timeout: requestTimeout},
		logger:  logger.With().Str("component", "alert").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Dispatch sends the event to all webhooks whose Events list matches.
// Deliveries run in goroutines and never block the caller. Events
// dispatched after Close are dropped.
func (d *Dispatcher) Dispatch(event AlertEvent) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn().Str("event", event.Event).Str("audit_id", event.AuditID).Msg("alert dropped, dispatcher closed")
		return
	}
	for _, cfg := range d.configs {
		if !matches(cfg.Events, event) {
			continue
		}
		d.wg.Add(1)
		go func(cfg AlertConfig) {
			defer d.wg.Done()
			if err := Send(d.ctx, d.client, cfg, event); err != nil {
				d.logger.Warn().
					Err(err).
					Str("event", event.Event).
					Str("audit_id", event.AuditID).
					Str("format", cfg.Format).
					Msg("alert delivery failed")
			}
		}(cfg)
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// Close stops accepting events and waits for in-flight deliveries until ctx
// is done. Deliveries still retrying after that are abandoned.
func (d *Dispatcher) Close(ctx context.Context) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn().Msg("abandoning in-flight alert deliveries")
		d.cancel()
		<-done
	}
	d.cancel()
}

func matches(events []string, event AlertEvent) bool {
	for _, e := range events {
		if e == event.Event {
			return true
		}
	}
	return false
}
