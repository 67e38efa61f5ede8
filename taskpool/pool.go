/*
NAME
  pool.go

DESCRIPTION
  pool.go implements a fixed-size worker pool that schedules tasks
  either immediately or once a set of group-level dependencies have all
  been met, mirroring the decode pipeline's producer/consumer stages
  (entropy decode feeding dequant feeding transform) without requiring
  every stage to block on every other.

  Two submission paths exist. Submit/SubmitDependent cover the common
  case: a plain callback with no output value. SubmitTask covers the
  full task model: a callback that is handed the iteration sub-range
  (Part) it is responsible for and may return a value, a completion
  function run once after every part of the task has finished, and
  detached tasks that the caller does not intend to Wait on. A task
  with ItersTotal > 0 is split into parts of at most MaxPerPart
  iterations each, each part scheduled as its own unit of work; the
  task as a whole is not Done until every part has finished.

  With zero workers, Pool runs cooperatively: tasks queue instead of
  being handed to a goroutine, and only run when the submitting
  goroutine calls WaitAll, Close, or a Task's Wait.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package taskpool implements a worker pool with group-level dependency
// tracking, so that a DAG of decode stages can be submitted up front and
// run in dependency order across a fixed set of goroutines.
package taskpool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// State is a task's position in its lifecycle.
type State int32

const (
	StateWaiting State = iota
	StateReady
	StateRunning
	StateDone
)

// Func is the work a plain Task performs; it carries no output value.
type Func func(ctx context.Context, data interface{})

// IterFunc is the work a Task submitted via SubmitTask performs. part
// describes the iteration sub-range this call is responsible for; a
// task with no iteration splitting is called once with a zero Part.
// Its return value is stored as the task's output; with several parts,
// the value of the part that finishes last is kept. Completion, if set,
// replaces that value with its own result and is not handed the parts'
// return values.
type IterFunc func(ctx context.Context, data interface{}, part Part) interface{}

// Part is one iteration sub-range of a split task, in [Start, End).
type Part struct {
	Index      int
	Start, End int
}

// ErrClosed is returned by Submit calls made after the pool has been
// closed.
var ErrClosed = errors.New("taskpool: pool is closed")

// Task is a unit of scheduled work, optionally gated on a Group's
// dependencies and optionally split into concurrently-runnable parts.
type Task struct {
	pool  *Pool
	group *Group
	name  string

	fn     Func
	iterFn IterFunc
	completion IterFunc
	data   interface{}

	inputs []Dependency
	output Dependency

	itersTotal int
	maxPerPart int
	activeParts int32

	lastValueMu sync.Mutex
	lastValue   interface{}

	detached bool

	state int32 // atomic State
	done  chan struct{}
}

// Name returns the task's debug name.
func (t *Task) Name() string { return t.name }

// State returns the task's current lifecycle state.
func (t *Task) State() State { return State(atomic.LoadInt32(&t.state)) }

// Detached reports whether the task was submitted with Detached set,
// meaning the caller does not intend to Wait on it.
func (t *Task) Detached() bool { return t.detached }

// Wait blocks until the task, and every part of it, has finished. In
// a cooperative pool (zero workers), Wait drains the queue itself
// rather than relying on a worker goroutine that doesn't exist.
func (t *Task) Wait() {
	if t.pool.cooperative {
		t.pool.runCooperative()
	}
	<-t.done
}

// WaitMany blocks until every given task has finished.
func WaitMany(tasks ...*Task) {
	for _, t := range tasks {
		t.Wait()
	}
}

// TaskSpec describes a task submitted via SubmitTask: the full
// dependency, iteration-splitting, and completion parameter set.
type TaskSpec struct {
	Group  *Group
	Name   string
	Fn     IterFunc
	Data   interface{}
	Inputs []Dependency

	// Output is the group dependency this task's result satisfies.
	// Callers that don't want an output must set it to
	// DependencyInvalid explicitly: the zero value is a valid
	// dependency slot, not "none".
	Output Dependency

	// ItersTotal splits the task into parts of at most MaxPerPart
	// iterations each, every part calling Fn independently. Leave both
	// zero for a task that runs once with no splitting.
	ItersTotal int
	MaxPerPart int

	// Completion, if set, runs once after every part has finished and
	// computes the value that becomes the task's output, in place of
	// whichever part happened to finish last.
	Completion IterFunc

	// Detached marks a task the caller will not Wait on. The pool
	// still runs it to completion and still meets its Output
	// dependency if any; Detached only documents intent, since the
	// runtime reclaims a finished task's memory regardless of whether
	// anyone ever called Wait.
	Detached bool
}

// Pool runs submitted tasks on a fixed number of worker goroutines, or
// cooperatively on the calling goroutine if started with zero workers.
type Pool struct {
	ready chan *taskPart

	cooperative      bool
	cooperativeMu    sync.Mutex
	cooperativeQueue []*taskPart

	wg      sync.WaitGroup // worker goroutines
	pending sync.WaitGroup // outstanding tasks, for WaitAll

	mu     sync.Mutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// taskPart pairs a task with the single part of it one worker call
// should run.
type taskPart struct {
	task *Task
	part Part
}

// New starts a Pool with the given number of worker goroutines. A
// non-positive workers count runs the pool cooperatively: tasks are
// queued and only run when the caller blocks on WaitAll, Close, or a
// Task's Wait.
func New(workers int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		ready:  make(chan *taskPart, 256),
		ctx:    ctx,
		cancel: cancel,
	}
	if workers <= 0 {
		p.cooperative = true
		return p
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case tp, ok := <-p.ready:
			if !ok {
				return
			}
			p.run(tp)
		}
	}
}

// runCooperative drains the cooperative queue on the calling goroutine
// until it is empty. Called from WaitAll, Close and Task.Wait when the
// pool has no worker goroutines of its own.
func (p *Pool) runCooperative() {
	for {
		p.cooperativeMu.Lock()
		if len(p.cooperativeQueue) == 0 {
			p.cooperativeMu.Unlock()
			return
		}
		tp := p.cooperativeQueue[0]
		p.cooperativeQueue = p.cooperativeQueue[1:]
		p.cooperativeMu.Unlock()
		p.run(tp)
	}
}

func (p *Pool) run(tp *taskPart) {
	t := tp.task
	atomic.StoreInt32(&t.state, int32(StateRunning))

	var value interface{}
	if t.iterFn != nil {
		value = t.iterFn(p.ctx, t.data, tp.part)
	} else {
		t.fn(p.ctx, t.data)
	}
	t.lastValueMu.Lock()
	t.lastValue = value
	t.lastValueMu.Unlock()

	if atomic.AddInt32(&t.activeParts, -1) == 0 {
		p.finish(t)
	}
}

// finish runs a task's completion function, if any, marks it Done, and
// meets its output dependency.
func (p *Pool) finish(t *Task) {
	t.lastValueMu.Lock()
	value := t.lastValue
	t.lastValueMu.Unlock()

	if t.completion != nil {
		value = t.completion(p.ctx, t.data, Part{})
	}

	atomic.StoreInt32(&t.state, int32(StateDone))
	close(t.done)
	if t.group != nil && t.output != DependencyInvalid {
		t.group.Met(t.output, value)
	}
	p.pending.Done()
}

// splitParts divides [0, total) into parts of at most maxPerPart
// iterations. A non-splitting task (total <= 0) yields a single zero
// Part so it still runs exactly once.
func splitParts(total, maxPerPart int) []Part {
	if total <= 0 || maxPerPart <= 0 || maxPerPart >= total {
		return []Part{{Start: 0, End: total}}
	}
	parts := make([]Part, 0, (total+maxPerPart-1)/maxPerPart)
	for start, idx := 0, 0; start < total; idx++ {
		end := start + maxPerPart
		if end > total {
			end = total
		}
		parts = append(parts, Part{Index: idx, Start: start, End: end})
		start = end
	}
	return parts
}

// enqueue marks t Ready and schedules every one of its parts.
// activeParts is set before any part is handed to a worker so a part
// finishing immediately (a fast synchronous Fn, or the cooperative
// path) can never observe a part count that hasn't been fully set yet.
func (p *Pool) enqueue(t *Task) {
	atomic.StoreInt32(&t.state, int32(StateReady))
	parts := splitParts(t.itersTotal, t.maxPerPart)
	atomic.StoreInt32(&t.activeParts, int32(len(parts)))
	for _, part := range parts {
		p.enqueuePart(t, part)
	}
}

func (p *Pool) enqueuePart(t *Task, part Part) {
	tp := &taskPart{task: t, part: part}
	if p.cooperative {
		p.cooperativeMu.Lock()
		p.cooperativeQueue = append(p.cooperativeQueue, tp)
		p.cooperativeMu.Unlock()
		return
	}
	select {
	case p.ready <- tp:
	case <-p.ctx.Done():
	}
}

// addTask registers a freshly-built task with the pool: either
// enqueuing it directly, or, if it declares group inputs, registering
// it against those dependencies.
func (p *Pool) addTask(t *Task) (*Task, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.mu.Unlock()

	p.pending.Add(1)
	if t.group == nil {
		p.enqueue(t)
		return t, nil
	}
	// Route every group-bound task through addWaiting, even one with no
	// declared inputs, so a blocked group defers it too: Block must gate
	// scheduling, not just dependency-gated scheduling.
	if t.group.addWaiting(t) {
		p.enqueue(t)
	}
	return t, nil
}

// Submit schedules fn to run as soon as a worker is free.
func (p *Pool) Submit(name string, fn Func, data interface{}) (*Task, error) {
	t := &Task{
		pool: p, name: name, fn: fn, data: data,
		output: DependencyInvalid,
		done:   make(chan struct{}),
		state:  int32(StateWaiting),
	}
	return p.addTask(t)
}

// SubmitDependent schedules fn to run once every dependency in inputs has
// been met within group. If output is not DependencyInvalid, it is
// marked met in group once fn returns.
func (p *Pool) SubmitDependent(group *Group, name string, fn Func, data interface{}, inputs []Dependency, output Dependency) (*Task, error) {
	t := &Task{
		pool: p, group: group, name: name, fn: fn, data: data,
		inputs: inputs, output: output,
		done:  make(chan struct{}),
		state: int32(StateWaiting),
	}
	return p.addTask(t)
}

// SubmitTask schedules a task described by spec, covering iteration
// splitting, completion functions and detached tasks that Submit and
// SubmitDependent don't expose.
func (p *Pool) SubmitTask(spec TaskSpec) (*Task, error) {
	t := &Task{
		pool: p, group: spec.Group, name: spec.Name,
		iterFn: spec.Fn, completion: spec.Completion, data: spec.Data,
		inputs: spec.Inputs, output: spec.Output,
		itersTotal: spec.ItersTotal, maxPerPart: spec.MaxPerPart,
		detached: spec.Detached,
		done:     make(chan struct{}),
		state:    int32(StateWaiting),
	}
	return p.addTask(t)
}

// WaitAll blocks until every task submitted so far has completed,
// draining the cooperative queue first if the pool has no workers of
// its own.
func (p *Pool) WaitAll() {
	if p.cooperative {
		p.runCooperative()
	}
	p.pending.Wait()
}

// Close stops accepting new tasks and waits for worker goroutines to
// drain in-flight work before returning. Tasks still waiting on unmet
// dependencies are abandoned.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	if p.cooperative {
		p.runCooperative()
	}
	close(p.ready)
	p.wg.Wait()
	p.cancel()
}
