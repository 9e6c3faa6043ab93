// Package processors implements the pipeline node abstraction: bidirectional
// linking, per-direction ordered delivery for data/control frames, immediate
// out-of-band dispatch for system frames, and a scoped task lifecycle used by
// every processor (and by the transport layer's media senders).
package processors

import (
	"context"
	"fmt"
	"sync"

	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/telemetry"
)

// FrameProcessor is the capability set every pipeline node satisfies.
type FrameProcessor interface {
	ProcessFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error
	QueueFrame(frame frames.Frame, direction frames.FrameDirection) error
	PushFrame(frame frames.Frame, direction frames.FrameDirection) error
	Link(next FrameProcessor)
	SetPrev(prev FrameProcessor)
	SetParent(parent FrameProcessor)
	Start(ctx context.Context) error
	Stop() error
	Cleanup() error
	Name() string
}

// ProcessHandler lets a concrete processor override frame handling while
// reusing BaseProcessor's linking, queueing and task-lifecycle machinery.
type ProcessHandler interface {
	HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error
}

type frameWithDirection struct {
	frame     frames.Frame
	direction frames.FrameDirection
}

// unboundedQueue is a FIFO of (frame, direction) pairs with no capacity
// limit, matching the default backpressure policy in the concurrency model:
// queue_frame never blocks the producer.
type unboundedQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []frameWithDirection
	closed bool
}

func newUnboundedQueue() *unboundedQueue {
	q := &unboundedQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *unboundedQueue) push(fwd frameWithDirection) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, fwd)
	q.cond.Signal()
}

// pop blocks until an item is available or the queue is closed. ok is false
// only when the queue is closed and drained.
func (q *unboundedQueue) pop() (fwd frameWithDirection, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return frameWithDirection{}, false
	}
	fwd = q.items[0]
	q.items = q.items[1:]
	return fwd, true
}

// drain removes and discards every pending item, returning how many were
// dropped.
func (q *unboundedQueue) drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

func (q *unboundedQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// BaseProcessor implements the shared linking, queueing and task-lifecycle
// machinery described by the FrameProcessor contract. Concrete processors
// either embed it directly and rely on the default pass-through behavior, or
// supply a ProcessHandler to intercept frames.
type BaseProcessor struct {
	name   string
	next   FrameProcessor
	prev   FrameProcessor
	parent FrameProcessor

	queue *unboundedQueue

	mu              sync.RWMutex
	ctx             context.Context
	cancel          context.CancelFunc
	workerDone      chan struct{}
	tasks           map[*taskHandle]struct{}
	interruptionsOK bool

	handler ProcessHandler
	log     *telemetry.Logger
}

// NewBaseProcessor constructs a processor named name, whose frame handling is
// delegated to handler (which may be the owning struct itself). Interruptions
// start out allowed; SetInterruptionsAllowed controls whether StartInterruption
// triggers the queue-drain-and-respawn path.
func NewBaseProcessor(name string, handler ProcessHandler) *BaseProcessor {
	return &BaseProcessor{
		name:            name,
		queue:           newUnboundedQueue(),
		tasks:           make(map[*taskHandle]struct{}),
		interruptionsOK: true,
		handler:         handler,
		log:             telemetry.NewLogger(name),
	}
}

func (p *BaseProcessor) Name() string { return p.name }

// SetInterruptionsAllowed configures whether this processor reacts to
// StartInterruptionFrame by draining and respawning its worker. Transports
// disable this on the neighbor-facing pipeline boundary when
// allow_interruptions is false for the running task.
func (p *BaseProcessor) SetInterruptionsAllowed(allowed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interruptionsOK = allowed
}

func (p *BaseProcessor) InterruptionsAllowed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.interruptionsOK
}

func (p *BaseProcessor) Link(next FrameProcessor) {
	p.mu.Lock()
	p.next = next
	p.mu.Unlock()
	if next != nil {
		next.SetPrev(p)
	}
}

func (p *BaseProcessor) SetPrev(prev FrameProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prev = prev
}

func (p *BaseProcessor) SetParent(parent FrameProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parent = parent
}

// Start allocates the processor's context and spawns its single FIFO worker.
func (p *BaseProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.ctx != nil {
		p.mu.Unlock()
		return fmt.Errorf("processor %s already started", p.name)
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.workerDone = make(chan struct{})
	p.mu.Unlock()

	go p.runWorker(p.ctx, p.workerDone)
	return nil
}

// Stop cancels the processor's context (and with it every task started by
// CreateTask), closes the FIFO and awaits the worker; Cleanup awaits the
// registered tasks. Stop does not drain: callers that need a graceful
// End-frame drain push EndFrame through the queue before calling Stop.
func (p *BaseProcessor) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	done := p.workerDone
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.queue.close()
	if done != nil {
		<-done
	}
	return nil
}

// Cleanup cancels every task still registered through CreateTask and awaits
// each one. The worker goroutine itself is joined by Stop.
func (p *BaseProcessor) Cleanup() error {
	p.mu.Lock()
	tasks := make([]*taskHandle, 0, len(p.tasks))
	for t := range p.tasks {
		tasks = append(tasks, t)
	}
	p.mu.Unlock()
	for _, t := range tasks {
		p.CancelTask(t)
	}
	return nil
}

// QueueFrame enqueues onto this processor's FIFO worker and returns
// immediately; the queue is unbounded so this never blocks.
func (p *BaseProcessor) QueueFrame(frame frames.Frame, direction frames.FrameDirection) error {
	p.queue.push(frameWithDirection{frame: frame, direction: direction})
	return nil
}

// PushFrame routes frame to the neighbor in direction. Ordered (data and
// control) frames go through the neighbor's QueueFrame; system-class frames
// are dispatched via direct, synchronous invocation of the neighbor's
// ProcessFrame, bypassing its FIFO entirely.
func (p *BaseProcessor) PushFrame(frame frames.Frame, direction frames.FrameDirection) error {
	p.mu.RLock()
	var target FrameProcessor
	if direction == frames.Downstream {
		target = p.next
	} else {
		target = p.prev
	}
	p.mu.RUnlock()

	if target == nil {
		return nil
	}

	if frame.Category() == frames.SystemCategory {
		return target.ProcessFrame(p.ctx, frame, direction)
	}
	return target.QueueFrame(frame, direction)
}

// ProcessFrame is the base dispatch: StartInterruptionFrame triggers a
// drain-and-respawn of the FIFO worker (discarding anything already queued
// before the interruption), everything else is delegated to the handler or,
// absent one, passed straight through.
func (p *BaseProcessor) ProcessFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if _, ok := frame.(*frames.StartInterruptionFrame); ok && p.InterruptionsAllowed() {
		p.respawnWorker()
	}

	if p.handler != nil {
		return p.handler.HandleFrame(ctx, frame, direction)
	}
	return p.PushFrame(frame, direction)
}

func (p *BaseProcessor) runWorker(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		fwd, ok := p.queue.pop()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := p.ProcessFrame(ctx, fwd.frame, fwd.direction); err != nil {
			p.log.Errorf("error processing frame %s: %v", fwd.frame.Name(), err)
		}
	}
}

// respawnWorker drains the FIFO, cancels the current worker and starts a
// fresh one, used on StartInterruption per the processor contract.
func (p *BaseProcessor) respawnWorker() {
	dropped := p.queue.drain()
	if dropped > 0 {
		p.log.Debugf("dropped %d queued frame(s) on interruption", dropped)
	}

	p.mu.Lock()
	oldCancel := p.cancel
	oldDone := p.workerDone
	parentCtx := context.Background()
	if p.ctx != nil {
		parentCtx = p.ctx
	}
	p.mu.Unlock()

	if oldCancel != nil {
		oldCancel()
	}
	// An idle worker is parked in pop; an empty item wakes it so it sees the
	// cancelled context and exits. The item is drained once it has.
	p.queue.push(frameWithDirection{})
	if oldDone != nil {
		<-oldDone
	}
	p.queue.drain()

	// parentCtx was just cancelled, so the new context keeps only its values.
	p.mu.Lock()
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(parentCtx))
	p.workerDone = make(chan struct{})
	newCtx, newDone := p.ctx, p.workerDone
	p.mu.Unlock()

	go p.runWorker(newCtx, newDone)
}

// taskHandle is a private task registered with create_task/cancel_task so it
// is reliably torn down on Cleanup, matching the task-lifecycle helpers
// described in the processor contract.
type taskHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// CreateTask spawns fn in its own goroutine under a child context derived
// from the processor's own, registers it for teardown, and returns a handle
// usable with CancelTask/WaitForTask.
func (p *BaseProcessor) CreateTask(fn func(ctx context.Context)) *taskHandle {
	p.mu.RLock()
	parent := p.ctx
	p.mu.RUnlock()
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithCancel(parent)
	handle := &taskHandle{cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	p.tasks[handle] = struct{}{}
	p.mu.Unlock()

	go func() {
		defer close(handle.done)
		fn(ctx)
	}()
	return handle
}

// CancelTask requests cooperative cancellation of t and awaits termination.
func (p *BaseProcessor) CancelTask(t *taskHandle) {
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
	p.mu.Lock()
	delete(p.tasks, t)
	p.mu.Unlock()
}

// WaitForTask awaits t's normal completion without requesting cancellation.
func (p *BaseProcessor) WaitForTask(t *taskHandle) {
	if t == nil {
		return
	}
	<-t.done
	p.mu.Lock()
	delete(p.tasks, t)
	p.mu.Unlock()
}
