package platform

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gridsim/internal/model"
)

type StopReason string

const (
	StopReasonNone      StopReason = ""
	StopReasonRequested StopReason = "requested"
	StopReasonDone      StopReason = "done"
	StopReasonError     StopReason = "error"
)

const DefaultTickInterval = 1500 * time.Millisecond

var ErrDriverRunning = errors.New("tick driver already running")

type DriverHooks struct {
	OnTick func(summary model.TickSummary)
	OnStop func(reason StopReason)
}

// Driver ticks a simulation at a fixed interval on its own goroutine.
type Driver struct {
	sim      *Simulation
	interval time.Duration
	hooks    DriverHooks
	log      logrus.FieldLogger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	lastStop StopReason
}

func NewDriver(sim *Simulation, interval time.Duration, hooks DriverHooks, log logrus.FieldLogger) *Driver {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Driver{
		sim:      sim,
		interval: interval,
		hooks:    hooks,
		log:      log.WithField("component", "driver"),
	}
}

func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return ErrDriverRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done
	go d.run(ctx, done)
	d.log.WithField("interval", d.interval.String()).Info("tick driver started")
	return nil
}

func (d *Driver) run(ctx context.Context, done chan struct{}) {
	reason := StopReasonRequested
	defer func() {
		d.mu.Lock()
		if d.done == done {
			d.cancel()
			d.cancel = nil
			d.done = nil
		}
		d.lastStop = reason
		d.mu.Unlock()
		close(done)
		if d.hooks.OnStop != nil {
			d.hooks.OnStop(reason)
		}
		d.log.WithField("reason", string(reason)).Info("tick driver stopped")
	}()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		summary, err := d.sim.Tick(ctx)
		if err != nil {
			if ctx.Err() == nil {
				reason = StopReasonError
				d.log.WithError(err).Error("tick failed")
			}
			return
		}
		if d.hooks.OnTick != nil {
			d.hooks.OnTick(summary)
		}
		if d.sim.Done() {
			reason = StopReasonDone
			return
		}
	}
}

// Stop cancels the loop and waits for it to exit. It is a no-op when idle.
func (d *Driver) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel != nil
}

func (d *Driver) LastStopReason() StopReason {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastStop
}
