// Package live fans measurement snapshots out to connected viewers from a
// single shared ticker.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"wifirtt/internal/logging"
	"wifirtt/internal/model"
)

// ErrStopped is returned by Connect and Disconnect once Run has returned.
var ErrStopped = errors.New("scheduler stopped")

// Builder produces one snapshot per call.
type Builder interface {
	Build(ctx context.Context) (model.Snapshot, error)
}

// Viewer is one live subscriber. Offer must not block: it returns false when
// the viewer cannot take another message right now.
type Viewer interface {
	Offer(msg []byte) bool
}

// State is the broadcast session state.
type State int

const (
	StateIdle State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "idle"
}

// Status is a point-in-time view of the scheduler, taken on its loop.
type Status struct {
	State         State
	Viewers       int
	TickerRunning bool
	Building      bool
	TicksBuilt    int
	TicksSkipped  int
}

type request struct {
	viewer Viewer
	done   chan struct{}
}

type delivery struct {
	viewer Viewer // nil for a tick fan-out
	msg    []byte
}

// Scheduler owns the viewer set and the shared ticker. Both are touched only
// by the Run goroutine.
type Scheduler struct {
	builder  Builder
	interval time.Duration
	clock    clock.Clock
	log      *slog.Logger

	connectC    chan request
	disconnectC chan request
	statusC     chan chan Status
	resultC     chan delivery
	stopped     chan struct{}

	// loop state
	state    State
	viewers  map[Viewer]struct{}
	ticker   *clock.Ticker
	building bool
	built    int
	skipped  int
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock substitutes the time source. Tests use clock.NewMock().
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// NewScheduler creates an idle scheduler ticking every interval while at
// least one viewer is connected.
func NewScheduler(builder Builder, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		builder:     builder,
		interval:    interval,
		clock:       clock.New(),
		connectC:    make(chan request),
		disconnectC: make(chan request),
		statusC:     make(chan chan Status),
		resultC:     make(chan delivery),
		stopped:     make(chan struct{}),
		viewers:     make(map[Viewer]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.Or(s.log)
	return s
}

// Connect registers v. The viewer is sent a freshly built snapshot without
// waiting for the next tick. Connect returns once v is registered.
func (s *Scheduler) Connect(v Viewer) error {
	return s.send(s.connectC, v)
}

// Disconnect removes v. Removing the last viewer stops the ticker.
func (s *Scheduler) Disconnect(v Viewer) error {
	return s.send(s.disconnectC, v)
}

// Status reports the current state.
func (s *Scheduler) Status() (Status, error) {
	reply := make(chan Status, 1)
	select {
	case s.statusC <- reply:
		return <-reply, nil
	case <-s.stopped:
		return Status{}, ErrStopped
	}
}

func (s *Scheduler) send(c chan request, v Viewer) error {
	req := request{viewer: v, done: make(chan struct{})}
	select {
	case c <- req:
	case <-s.stopped:
		return ErrStopped
	}
	<-req.done
	return nil
}

// Run processes events until ctx is cancelled. Builds use ctx, so they
// outlive the viewer that triggered them but not the scheduler.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.stopped)
	defer s.stopTicker()

	for {
		var tickC <-chan time.Time
		if s.ticker != nil {
			tickC = s.ticker.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-s.connectC:
			s.handleConnect(ctx, req.viewer)
			close(req.done)
		case req := <-s.disconnectC:
			s.handleDisconnect(req.viewer)
			close(req.done)
		case reply := <-s.statusC:
			reply <- s.status()
		case <-tickC:
			s.handleTick(ctx)
		case d := <-s.resultC:
			s.deliver(d)
		}
	}
}

func (s *Scheduler) handleConnect(ctx context.Context, v Viewer) {
	if _, ok := s.viewers[v]; ok {
		return
	}
	s.viewers[v] = struct{}{}
	s.log.Info("viewer connected", "viewers", len(s.viewers))

	if s.state == StateIdle {
		s.state = StateActive
		s.ticker = s.clock.Ticker(s.interval)
		s.log.Debug("ticker started", "interval", s.interval)
	}
	go s.build(ctx, v)
}

func (s *Scheduler) handleDisconnect(v Viewer) {
	if _, ok := s.viewers[v]; !ok {
		return
	}
	delete(s.viewers, v)
	s.log.Info("viewer disconnected", "viewers", len(s.viewers))

	if len(s.viewers) == 0 && s.state == StateActive {
		s.stopTicker()
		s.state = StateIdle
		s.log.Debug("ticker stopped")
	}
}

func (s *Scheduler) handleTick(ctx context.Context) {
	if len(s.viewers) == 0 {
		return
	}
	if s.building {
		s.skipped++
		s.log.Debug("tick skipped, previous build still running")
		return
	}
	s.building = true
	s.built++
	go s.build(ctx, nil)
}

// build runs on its own goroutine and hands the encoded result back to the
// loop. A nil viewer marks a tick build.
func (s *Scheduler) build(ctx context.Context, v Viewer) {
	snap, err := s.builder.Build(ctx)
	var msg []byte
	if err != nil {
		s.log.Warn("snapshot build failed", "err", err)
		msg = encode(model.ErrorMessage{Error: err.Error()})
	} else {
		msg = encode(snap)
	}

	select {
	case s.resultC <- delivery{viewer: v, msg: msg}:
	case <-s.stopped:
	}
}

func (s *Scheduler) deliver(d delivery) {
	if d.viewer != nil {
		if _, ok := s.viewers[d.viewer]; !ok {
			return
		}
		if !d.viewer.Offer(d.msg) {
			s.log.Debug("viewer busy, initial snapshot dropped")
		}
		return
	}

	s.building = false
	for v := range s.viewers {
		if !v.Offer(d.msg) {
			s.log.Debug("viewer busy, tick skipped for viewer")
		}
	}
}

func (s *Scheduler) stopTicker() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *Scheduler) status() Status {
	return Status{
		State:         s.state,
		Viewers:       len(s.viewers),
		TickerRunning: s.ticker != nil,
		Building:      s.building,
		TicksBuilt:    s.built,
		TicksSkipped:  s.skipped,
	}
}

// encode marshals a stream message. Snapshot and ErrorMessage always encode;
// anything else that fails is reported as an error message.
func encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(model.ErrorMessage{Error: err.Error()})
	}
	return data
}
