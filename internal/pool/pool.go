// Package pool runs a codemod over a backlog of files with a fixed set of
// workers. A single control loop owns the backlog and the worker slots; it
// dispatches files, applies the commands workers send back, replaces
// workers that stall or break the protocol, and reports progress.
package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dyluth/burrow/internal/report"
	"github.com/dyluth/burrow/internal/worker"
	"github.com/dyluth/burrow/pkg/protocol"
)

// exitGrace is how long finished workers get to exit on their own before
// they are killed.
const exitGrace = 2 * time.Second

// ErrShutdown is returned by Run when Shutdown stopped the pool.
var ErrShutdown = errors.New("pool shut down")

// ApplyFunc applies one command received from a worker.
type ApplyFunc func(ctx context.Context, cmd protocol.FormattedFileCommand) error

// Option configures a Pool.
type Option func(*Pool)

// WithClock replaces the wall clock and the stall ticker.
func WithClock(now func() time.Time, ticks <-chan time.Time) Option {
	return func(p *Pool) {
		p.now = now
		p.ticks = ticks
	}
}

// WithFileReader replaces the function used to load a task's contents.
func WithFileReader(read func(path string) (string, error)) Option {
	return func(p *Pool) {
		p.readFile = read
	}
}

// Status is a point-in-time view of the pool.
type Status struct {
	Workers      int  `json:"workers"`
	Busy         int  `json:"busy"`
	Processed    uint `json:"processed"`
	Total        uint `json:"total"`
	Replacements int  `json:"replacements"`
	Finished     bool `json:"finished"`
}

type slot struct {
	id         int
	generation uint64
	handle     worker.Handle
	done       chan struct{}

	busy           bool
	path           string
	startedAt      time.Time
	lastActivityAt time.Time
}

// frame is one line from a worker, tagged with the slot generation that
// produced it. closed marks the end of that worker's output.
type frame struct {
	slot       int
	generation uint64
	data       []byte
	closed     bool
}

// Pool distributes files over workers. A Pool runs once.
type Pool struct {
	cfg      Config
	spawner  worker.Spawner
	emitter  report.Emitter
	apply    ApplyFunc
	now      func() time.Time
	ticks    <-chan time.Time
	readFile func(path string) (string, error)

	frames       chan frame
	shutdown     chan struct{}
	shutdownOnce sync.Once

	statusMu sync.Mutex
	status   Status

	// Owned by the control loop.
	slots        []*slot
	backlog      []string
	requeued     map[string]bool
	processed    uint
	total        uint
	replacements int
	finished     bool
}

// New creates a pool. emitter receives progress, error and finish events;
// apply is called for every command a worker returns.
func New(cfg Config, spawner worker.Spawner, emitter report.Emitter, apply ApplyFunc, opts ...Option) *Pool {
	if emitter == nil {
		emitter = report.Discard
	}
	if apply == nil {
		apply = func(context.Context, protocol.FormattedFileCommand) error { return nil }
	}
	p := &Pool{
		cfg:      cfg.withDefaults(),
		spawner:  spawner,
		emitter:  emitter,
		apply:    apply,
		now:      time.Now,
		readFile: ReadTextFile,
		frames:   make(chan frame),
		shutdown: make(chan struct{}),
		requeued: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ReadTextFile reads a file that must be valid UTF-8.
func ReadTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8", path)
	}
	return string(data), nil
}

// Shutdown stops the pool immediately. In-flight work is abandoned and Run
// returns ErrShutdown.
func (p *Pool) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

// Status returns a snapshot safe to read from any goroutine.
func (p *Pool) Status() Status {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	return p.status
}

// Run processes every task and blocks until the run finishes, ctx is
// cancelled or Shutdown is called. It returns nil after the finish event
// has been emitted.
func (p *Pool) Run(ctx context.Context, tasks []string) error {
	if err := p.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid pool configuration: %w", err)
	}

	if p.ticks == nil {
		ticker := time.NewTicker(p.cfg.TickInterval)
		defer ticker.Stop()
		p.ticks = ticker.C
	}

	p.backlog = append([]string(nil), tasks...)
	p.total = uint(len(tasks))

	p.slots = make([]*slot, p.cfg.Workers)
	for id := range p.slots {
		s := &slot{id: id}
		p.slots[id] = s
		if err := p.start(ctx, s); err != nil {
			p.killAll()
			return err
		}
	}

	p.logEvent("pool_started", map[string]interface{}{
		"workers": p.cfg.Workers,
		"tasks":   len(tasks),
		"engine":  p.cfg.Engine,
	})

	p.emitter.Emit(report.NewProgress(0, p.total))
	p.publishStatus()

	if err := p.pull(ctx); err != nil {
		p.killAll()
		return err
	}

	for !p.finished {
		var err error
		select {
		case <-ctx.Done():
			log.Printf("[Pool] Context cancelled, stopping workers")
			p.killAll()
			return ctx.Err()

		case <-p.shutdown:
			log.Printf("[Pool] Shutdown requested, stopping workers")
			p.killAll()
			return ErrShutdown

		case f := <-p.frames:
			err = p.handleFrame(ctx, f)

		case t := <-p.ticks:
			err = p.checkStalls(ctx, t)
		}
		if err != nil {
			p.killAll()
			return err
		}
		p.publishStatus()
	}

	p.stopWorkers()
	return nil
}

// start spawns a worker for s under its current generation.
func (p *Pool) start(ctx context.Context, s *slot) error {
	h, err := p.spawner.Spawn(ctx, s.id)
	if err != nil {
		return fmt.Errorf("failed to spawn worker %d: %w", s.id, err)
	}
	s.handle = h
	s.done = make(chan struct{})
	s.lastActivityAt = p.now()
	go p.forward(s.id, s.generation, h, s.done)
	return nil
}

// forward copies a worker's frames into the control loop until the worker's
// output ends or the slot moves on to another generation.
func (p *Pool) forward(id int, generation uint64, h worker.Handle, done <-chan struct{}) {
	for data := range h.Frames() {
		select {
		case p.frames <- frame{slot: id, generation: generation, data: data}:
		case <-done:
			return
		}
	}
	select {
	case p.frames <- frame{slot: id, generation: generation, closed: true}:
	case <-done:
	}
}

// retire detaches and kills the slot's current worker.
func (p *Pool) retire(s *slot) {
	if s.handle == nil {
		return
	}
	close(s.done)
	if err := s.handle.Kill(); err != nil {
		log.Printf("[Pool] Failed to kill worker %d (generation %d): %v", s.id, s.generation, err)
	}
	s.handle = nil
}

// replace kills the slot's worker and starts a fresh one under the same id.
func (p *Pool) replace(ctx context.Context, s *slot, reason string) error {
	p.logEvent("worker_replaced", map[string]interface{}{
		"slot":       s.id,
		"generation": s.generation,
		"reason":     reason,
		"path":       s.path,
	})

	p.retire(s)
	s.generation++
	s.busy = false
	s.path = ""
	p.replacements++
	return p.start(ctx, s)
}

// pull dispatches backlog entries to idle slots until one of them runs out,
// then finishes the run if nothing is left in flight.
func (p *Pool) pull(ctx context.Context) error {
	for len(p.backlog) > 0 {
		s := p.idleSlot()
		if s == nil {
			return nil
		}

		path := p.backlog[0]
		p.backlog = p.backlog[1:]

		data, err := p.readFile(path)
		if err != nil {
			p.emitter.Emit(report.NewError(fmt.Sprintf("failed to read file: %v", err), p.cfg.CaseID, path))
			p.advance()
			continue
		}

		now := p.now()
		s.busy = true
		s.path = path
		s.startedAt = now
		s.lastActivityAt = now

		if err := s.handle.Send(p.dispatch(path, data)); err != nil {
			log.Printf("[Pool] Failed to dispatch %s to worker %d: %v", path, s.id, err)
			if err := p.fault(ctx, s, fmt.Sprintf("failed to dispatch to worker: %v", err)); err != nil {
				return err
			}
		}
	}

	p.maybeFinish()
	return nil
}

func (p *Pool) idleSlot() *slot {
	for _, s := range p.slots {
		if !s.busy && s.handle != nil {
			return s
		}
	}
	return nil
}

func (p *Pool) dispatch(path, data string) protocol.Dispatch {
	return protocol.Dispatch{
		Path:              path,
		Data:              data,
		Engine:            p.cfg.Engine,
		TransformerSource: p.cfg.TransformerSource,
		CaseID:            p.cfg.CaseID,
		FormatOnApply:     p.cfg.FormatOnApply,
		Staged:            p.cfg.Staged,
		OutputDirectory:   p.cfg.OutputDirectory,
	}
}

// advance counts one more file as processed.
func (p *Pool) advance() {
	p.processed++
	p.emitter.Emit(report.NewProgress(p.processed, p.total))
}

func (p *Pool) maybeFinish() {
	if p.finished || len(p.backlog) > 0 {
		return
	}
	for _, s := range p.slots {
		if s.busy {
			return
		}
	}

	p.finished = true
	for _, s := range p.slots {
		if s.handle == nil {
			continue
		}
		if err := s.handle.Send(protocol.Exit{}); err != nil {
			log.Printf("[Pool] Failed to send exit to worker %d: %v", s.id, err)
		}
	}
	p.emitter.Emit(report.NewFinish())

	p.logEvent("pool_finished", map[string]interface{}{
		"processed":    p.processed,
		"total":        p.total,
		"replacements": p.replacements,
	})
}

func (p *Pool) handleFrame(ctx context.Context, f frame) error {
	s := p.slots[f.slot]
	if f.generation != s.generation {
		log.Printf("[Pool] Discarding message from replaced worker %d (generation %d)", f.slot, f.generation)
		return nil
	}

	if f.closed {
		return p.fault(ctx, s, "worker exited unexpectedly")
	}

	msg, err := protocol.Decode(f.data)
	if err != nil {
		return p.fault(ctx, s, fmt.Sprintf("invalid message from worker: %v", err))
	}
	s.lastActivityAt = p.now()

	if !s.busy {
		return p.fault(ctx, s, fmt.Sprintf("unexpected %s message from idle worker", msg.Kind()))
	}

	switch m := msg.(type) {
	case protocol.Commands:
		for _, cmd := range m.Commands {
			if err := p.apply(ctx, cmd); err != nil {
				p.emitter.Emit(report.NewError(err.Error(), cmd.CaseID, cmd.Target()))
			}
		}
	case protocol.Idle:
	case protocol.Error:
		path := m.Path
		if path == "" {
			path = s.path
		}
		p.emitter.Emit(report.NewError(m.Message, m.CaseID, path))
	default:
		return p.fault(ctx, s, fmt.Sprintf("unexpected %s message from worker", msg.Kind()))
	}

	s.busy = false
	s.path = ""
	p.advance()
	return p.pull(ctx)
}

// fault replaces a worker that broke the protocol or died. Its in-flight
// task, if any, is reported as an error.
func (p *Pool) fault(ctx context.Context, s *slot, reason string) error {
	log.Printf("[Pool] Worker %d faulted: %s", s.id, reason)

	wasBusy, path := s.busy, s.path
	if err := p.replace(ctx, s, reason); err != nil {
		return err
	}
	if wasBusy {
		p.emitter.Emit(report.NewError(reason, p.cfg.CaseID, path))
		p.advance()
	}
	return p.pull(ctx)
}

// checkStalls replaces busy workers that have been silent for longer than the
// stall budget. Frames already waiting are handled first, so a reply that
// raced the tick still counts.
func (p *Pool) checkStalls(ctx context.Context, now time.Time) error {
	if err := p.drainFrames(ctx); err != nil {
		return err
	}
	if p.finished {
		return nil
	}

	for _, s := range p.slots {
		if !s.busy || now.Sub(s.lastActivityAt) <= p.cfg.StallBudget {
			continue
		}

		path := s.path
		reason := fmt.Sprintf("worker timed out processing %s after %s", path, p.cfg.StallBudget)
		if err := p.replace(ctx, s, reason); err != nil {
			return err
		}

		if p.cfg.StallPolicy == StallRequeue && !p.requeued[path] {
			p.requeued[path] = true
			p.backlog = append(p.backlog, path)
			log.Printf("[Pool] Requeued %s after stall", path)
			continue
		}
		p.emitter.Emit(report.NewError(reason, p.cfg.CaseID, path))
		p.advance()
	}
	return p.pull(ctx)
}

// drainFrames handles every frame that is ready without blocking.
func (p *Pool) drainFrames(ctx context.Context) error {
	for !p.finished {
		select {
		case f := <-p.frames:
			if err := p.handleFrame(ctx, f); err != nil {
				return err
			}
		default:
			return nil
		}
	}
	return nil
}

// stopWorkers gives workers that were sent Exit a moment to leave, then
// kills whatever is still running.
func (p *Pool) stopWorkers() {
	remaining := 0
	for _, s := range p.slots {
		if s.handle != nil {
			remaining++
		}
	}

	timer := time.NewTimer(exitGrace)
	defer timer.Stop()

	for remaining > 0 {
		select {
		case f := <-p.frames:
			if f.closed && f.generation == p.slots[f.slot].generation {
				remaining--
			}
		case <-timer.C:
			log.Printf("[Pool] %d workers did not exit in time, killing", remaining)
			remaining = 0
		}
	}
	p.killAll()
}

func (p *Pool) killAll() {
	for _, s := range p.slots {
		if s != nil {
			p.retire(s)
		}
	}
	p.publishStatus()
}

func (p *Pool) publishStatus() {
	busy := 0
	for _, s := range p.slots {
		if s != nil && s.busy {
			busy++
		}
	}

	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.status = Status{
		Workers:      len(p.slots),
		Busy:         busy,
		Processed:    p.processed,
		Total:        p.total,
		Replacements: p.replacements,
		Finished:     p.finished,
	}
}

// logEvent writes a structured JSON log line.
func (p *Pool) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "pool"
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Pool] Failed to marshal log event: %v", err)
		return
	}
	log.Println(string(jsonData))
}
