// Package layout runs the force-directed simulation on a background goroutine and
// streams position snapshots to a single consumer.
package layout

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Reason says why a run stopped.
type Reason string

const (
	Converged Reason = "converged"
	TimedOut  Reason = "timeout"
	Failed    Reason = "failed"
)

// ErrSuperseded is the cause attached to a run cancelled by a newer one.
var ErrSuperseded = errors.New("layout run superseded")

type NodePosition struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Degree int     `json:"degree"`
	Pinned bool    `json:"pinned,omitempty"`
}

// Snapshot is an immutable view of one run's positions. Progress never decreases
// within a run and the Done snapshot is always the last one delivered.
type Snapshot struct {
	Run      uint64         `json:"run"`
	Tick     int            `json:"tick"`
	Progress int            `json:"progress"`
	Done     bool           `json:"done"`
	Reason   Reason         `json:"reason,omitempty"`
	Err      string         `json:"error,omitempty"`
	Nodes    []NodePosition `json:"nodes"`
}

type command struct {
	id    string
	x, y  float64
	unpin bool
}

// Run is one background simulation. Snapshots arrive on C; the channel holds at
// most one undelivered snapshot and a newer one replaces it, so the physics never
// waits for the consumer. C is closed after the terminal snapshot, or without one
// if the run is cancelled.
type Run struct {
	ID uint64

	out    chan Snapshot
	cmds   chan command
	done   chan struct{}
	cancel context.CancelCauseFunc
	ctx    context.Context

	mu       sync.Mutex
	terminal *Snapshot
}

// C delivers this run's snapshots.
func (r *Run) C() <-chan Snapshot { return r.out }

// Done is closed when the worker goroutine has exited.
func (r *Run) Done() <-chan struct{} { return r.done }

// Terminal returns the final snapshot once the run has finished on its own.
func (r *Run) Terminal() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal == nil {
		return Snapshot{}, false
	}
	return *r.terminal, true
}

// Cancel stops the run, waits for its goroutine and discards anything undelivered.
func (r *Run) Cancel() {
	r.cancelWith(context.Canceled)
}

func (r *Run) cancelWith(cause error) {
	r.cancel(cause)
	<-r.done
	for range r.out {
	}
}

// Pin holds a node at (x, y) until Unpin. It returns false once the run is over.
func (r *Run) Pin(id string, x, y float64) bool {
	return r.send(command{id: id, x: x, y: y})
}

func (r *Run) Unpin(id string) bool {
	return r.send(command{id: id, unpin: true})
}

func (r *Run) send(c command) bool {
	select {
	case <-r.done:
		return false
	case <-r.ctx.Done():
		return false
	default:
	}
	select {
	case r.cmds <- c:
		return true
	case <-r.done:
		return false
	}
}

// offer puts s in the mailbox, replacing an undelivered snapshot if there is one.
func (r *Run) offer(s Snapshot) {
	for {
		select {
		case r.out <- s:
			return
		default:
		}
		select {
		case <-r.out:
		default:
		}
	}
}

// Engine owns at most one active run. Starting a run supersedes the previous one.
type Engine struct {
	cfg Config
	log *zap.SugaredLogger

	mu      sync.Mutex
	current *Run
	nextID  atomic.Uint64

	// beforeTick lets tests inject faults into the worker.
	beforeTick func(*Simulation)
}

func NewEngine(cfg Config, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{cfg: cfg.Normalize(), log: log}
}

func (e *Engine) Config() Config { return e.cfg }

// Current returns the most recently started run, or nil.
func (e *Engine) Current() *Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Run cancels any in-flight run, waits for it to stop, and starts a new one for in.
// The caller does not block on the simulation itself.
func (e *Engine) Run(ctx context.Context, in Input) *Run {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prev := e.current; prev != nil {
		prev.cancelWith(ErrSuperseded)
		e.log.Debugf("Layout run %d superseded", prev.ID)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	r := &Run{
		ID:     e.nextID.Add(1),
		out:    make(chan Snapshot, 1),
		cmds:   make(chan command, 64),
		done:   make(chan struct{}),
		cancel: cancel,
		ctx:    runCtx,
	}
	e.current = r

	sim := NewSimulation(e.cfg, in)
	if sim.SkippedLinks > 0 {
		e.log.Warnf("Layout run %d: skipped %d links with unknown endpoints", r.ID, sim.SkippedLinks)
	}
	e.log.Debugf("Layout run %d started: %d nodes, %d links", r.ID, len(sim.nodes), len(sim.links))
	go e.work(runCtx, r, sim)
	return r
}

// Stop cancels the current run, if any.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		e.current.Cancel()
		e.current = nil
	}
}

func (e *Engine) work(ctx context.Context, r *Run, sim *Simulation) {
	defer close(r.done)
	defer close(r.out)

	start := time.Now()
	startAlpha := sim.Alpha()
	safety := time.NewTimer(e.cfg.SafetyTimeout)
	defer safety.Stop()

	last := sim.Positions()
	progress := 0
	lastEmit := time.Now()

	finish := func(reason Reason, err error) {
		if ctx.Err() != nil {
			return
		}
		snap := Snapshot{Run: r.ID, Tick: sim.Ticks(), Progress: 100, Done: true, Reason: reason, Nodes: last}
		if err != nil {
			snap.Err = err.Error()
		}
		r.mu.Lock()
		r.terminal = &snap
		r.mu.Unlock()
		r.offer(snap)
		e.log.Debugf("Layout run %d finished (%s) after %d ticks in %s", r.ID, reason, sim.Ticks(), time.Since(start))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-safety.C:
			finish(TimedOut, nil)
			return
		default:
		}

		e.drainCommands(r, sim)

		if sim.Converged() || len(sim.nodes) == 0 {
			finish(Converged, nil)
			return
		}

		if err := e.safeTick(sim); err != nil {
			e.log.Errorf("Layout run %d failed: %v", r.ID, err)
			finish(Failed, err)
			return
		}
		last = sim.Positions()

		if p := sim.Progress(startAlpha); p > progress {
			progress = p
		}
		if time.Since(lastEmit) >= e.cfg.ProgressInterval {
			lastEmit = time.Now()
			if ctx.Err() != nil {
				return
			}
			r.offer(Snapshot{Run: r.ID, Tick: sim.Ticks(), Progress: progress, Nodes: last})
		}
	}
}

func (e *Engine) drainCommands(r *Run, sim *Simulation) {
	for {
		select {
		case c := <-r.cmds:
			if c.unpin {
				sim.Unpin(c.id)
			} else if sim.Pin(c.id, c.x, c.y) {
				sim.SetAlphaTarget(DragAlpha)
				sim.Reheat(DragAlpha)
			}
			if !sim.anyPinned() {
				sim.SetAlphaTarget(0)
			}
		default:
			return
		}
	}
}

// safeTick runs one step, turning a panic into an error so the run still terminates.
func (e *Engine) safeTick(sim *Simulation) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in simulation: %v\n%s", rec, debug.Stack())
		}
	}()
	if e.beforeTick != nil {
		e.beforeTick(sim)
	}
	return sim.Tick()
}

func (s *Simulation) anyPinned() bool {
	for i := range s.nodes {
		if s.nodes[i].pinned {
			return true
		}
	}
	return false
}
