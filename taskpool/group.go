/*
NAME
  group.go

DESCRIPTION
  group.go implements task groups: named pools of dependency slots that
  connect tasks together into a DAG, so a task only becomes schedulable
  once every group dependency it declared as an input has been met by
  some other task's output. Each dependency carries a value alongside
  its met/unmet bit, and a group can be blocked to accumulate an entire
  subgraph of tasks atomically before any of it is released to run.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package taskpool

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Dependency identifies a single dependency slot within a Group. A
// group supports at most 64 dependencies, tracked as a bitmask.
type Dependency uint32

// DependencyInvalid marks a task as having no output dependency to meet.
const DependencyInvalid Dependency = ^Dependency(0)

// ErrTooManyDependencies is returned by AddDependency once a group's
// 64-slot bitmask is exhausted.
var ErrTooManyDependencies = errors.New("taskpool: group has no free dependency slots")

// Group connects a set of tasks via dependency slots. Tasks register
// themselves as waiting on one or more slots; the group tracks which
// slots have been met, the value each was met with, and releases
// waiting tasks once all of their inputs are satisfied.
type Group struct {
	pool *Pool
	name string

	mu      sync.Mutex
	cond    *sync.Cond
	count   uint32
	met     uint64
	values  [64]interface{}
	waiting map[Dependency][]*Task

	// blocked accumulates newly-submitted tasks on blockedTasks instead
	// of releasing any of them, even ones whose inputs are already met,
	// so a caller can build a whole subgraph before workers see any of
	// it. See Block/Unblock.
	blocked      bool
	blockedTasks []*Task
}

// NewGroup returns an empty dependency group bound to pool.
func (p *Pool) NewGroup(name string) *Group {
	g := &Group{pool: p, name: name, waiting: make(map[Dependency][]*Task)}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Name returns the group's debug name.
func (g *Group) Name() string { return g.name }

// AddDependency reserves a new dependency slot, returning its id for use
// as a task's output or as one of another task's inputs.
func (g *Group) AddDependency() (Dependency, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.count >= 64 {
		return DependencyInvalid, ErrTooManyDependencies
	}
	d := Dependency(g.count)
	g.count++
	return d, nil
}

func allMet(met uint64, inputs []Dependency) bool {
	for _, d := range inputs {
		if met&(1<<uint(d)) == 0 {
			return false
		}
	}
	return true
}

// addWaiting registers t against every unmet input it declared, or
// defers it to the group's blocked list if the group is currently
// blocked. It returns true if the caller is responsible for enqueuing
// t itself (all inputs already met and the group is not blocked).
func (g *Group) addWaiting(t *Task) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.blocked {
		g.blockedTasks = append(g.blockedTasks, t)
		return false
	}
	return g.addWaitingLocked(t)
}

// addWaitingLocked is addWaiting's body once the group is known not to
// be blocked; also used by Unblock to re-evaluate the tasks it drains.
func (g *Group) addWaitingLocked(t *Task) bool {
	if allMet(g.met, t.inputs) {
		return true
	}
	for _, d := range t.inputs {
		if g.met&(1<<uint(d)) != 0 {
			continue
		}
		g.waiting[d] = append(g.waiting[d], t)
	}
	return false
}

// Met records dep as satisfied with value and enqueues every waiting
// task whose full set of inputs is now met. It also wakes any Wait
// call blocked on dep.
func (g *Group) Met(dep Dependency, value interface{}) {
	ready := g.dependencyAddMet(dep, value)
	for _, t := range ready {
		g.pool.enqueue(t)
	}
}

// dependencyAddMet records dep as met and returns the tasks this
// newly unblocks. It is split out from Met so tests can drive the
// bitmask/wakeup logic without a live pool.
func (g *Group) dependencyAddMet(dep Dependency, value interface{}) []*Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.values[dep] = value
	g.met |= 1 << uint(dep)
	g.cond.Broadcast()

	candidates := g.waiting[dep]
	delete(g.waiting, dep)

	var ready []*Task
	for _, t := range candidates {
		if !allMet(g.met, t.inputs) {
			continue
		}
		if atomic.CompareAndSwapInt32(&t.state, int32(StateWaiting), int32(StateReady)) {
			ready = append(ready, t)
		}
	}
	return ready
}

// IsMet reports whether dep has been satisfied.
func (g *Group) IsMet(dep Dependency) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.met&(1<<uint(dep)) != 0
}

// SetMet fills isMet[i] with whether deps[i] has been satisfied.
// isMet must be at least len(deps) long.
func (g *Group) SetMet(deps []Dependency, isMet []bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, d := range deps {
		isMet[i] = g.met&(1<<uint(d)) != 0
	}
}

// Get returns the value dep was met with. ok is false if dep has not
// been met yet; callers only call Get once they already know (via
// IsMet or by construction of the DAG) that dep is met, so ok==false
// here signals a programming error rather than a normal outcome.
func (g *Group) Get(dep Dependency) (value interface{}, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.met&(1<<uint(dep)) == 0 {
		return nil, false
	}
	return g.values[dep], true
}

// Wait blocks until dep is met, returning the value it was met with.
// In a cooperative pool (zero workers), nothing else drains the task
// queue, so Wait drains it itself between checks instead of blocking
// forever on the condition variable.
func (g *Group) Wait(dep Dependency) interface{} {
	if g.pool.cooperative {
		for !g.IsMet(dep) {
			g.pool.runCooperative()
		}
		value, _ := g.Get(dep)
		return value
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.met&(1<<uint(dep)) == 0 {
		g.cond.Wait()
	}
	return g.values[dep]
}

// Block prevents tasks subsequently submitted against this group from
// becoming Ready, even if their inputs are already met; they
// accumulate on a side list until Unblock. This lets a caller add an
// entire subgraph of tasks without any of it starting to run before
// the subgraph is fully wired up.
func (g *Group) Block() {
	g.mu.Lock()
	g.blocked = true
	g.mu.Unlock()
}

// Unblock releases every task accumulated since Block and schedules
// whichever of them have all their inputs met.
func (g *Group) Unblock() {
	g.mu.Lock()
	g.blocked = false
	pending := g.blockedTasks
	g.blockedTasks = nil
	var ready []*Task
	for _, t := range pending {
		if g.addWaitingLocked(t) {
			ready = append(ready, t)
		}
	}
	g.mu.Unlock()

	for _, t := range ready {
		g.pool.enqueue(t)
	}
}
