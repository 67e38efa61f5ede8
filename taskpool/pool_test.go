/*
NAME
  pool_test.go

DESCRIPTION
  pool_test.go exercises plain scheduling and group-dependency gated
  scheduling.

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
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsWithoutDependencies(t *testing.T) {
	p := New(2)
	defer p.Close()

	var ran int32
	task, err := p.Submit("increment", func(ctx context.Context, data interface{}) {
		atomic.AddInt32(&ran, 1)
	}, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	task.Wait()
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("got %d, want 1", ran)
	}
}

func TestDependentTaskWaitsForInput(t *testing.T) {
	p := New(4)
	defer p.Close()

	g := p.NewGroup("pipeline")
	entropy, err := g.AddDependency()
	if err != nil {
		t.Fatalf("AddDependency: %v", err)
	}

	var order []string
	done := make(chan struct{})

	_, err = p.SubmitDependent(g, "dequant", func(ctx context.Context, data interface{}) {
		order = append(order, "dequant")
		close(done)
	}, nil, []Dependency{entropy}, DependencyInvalid)
	if err != nil {
		t.Fatalf("SubmitDependent: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if len(order) != 0 {
		t.Fatalf("dequant ran before its dependency was met: %v", order)
	}

	_, err = p.SubmitDependent(g, "entropy", func(ctx context.Context, data interface{}) {
		order = append(order, "entropy")
	}, nil, nil, entropy)
	if err != nil {
		t.Fatalf("SubmitDependent: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dependent task to run")
	}
	if len(order) != 2 || order[0] != "entropy" || order[1] != "dequant" {
		t.Fatalf("got order %v, want [entropy dequant]", order)
	}
}

func TestTaskWithMultipleInputsWaitsForAll(t *testing.T) {
	p := New(4)
	defer p.Close()

	g := p.NewGroup("merge")
	a, _ := g.AddDependency()
	b, _ := g.AddDependency()

	done := make(chan struct{})
	_, err := p.SubmitDependent(g, "merge", func(ctx context.Context, data interface{}) {
		close(done)
	}, nil, []Dependency{a, b}, DependencyInvalid)
	if err != nil {
		t.Fatalf("SubmitDependent: %v", err)
	}

	p.SubmitDependent(g, "a", func(ctx context.Context, data interface{}) {}, nil, nil, a)

	select {
	case <-done:
		t.Fatal("merge task ran before both inputs were met")
	case <-time.After(20 * time.Millisecond):
	}

	p.SubmitDependent(g, "b", func(ctx context.Context, data interface{}) {}, nil, nil, b)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for merge task")
	}
}

func TestWaitAllBlocksUntilAllTasksComplete(t *testing.T) {
	p := New(4)
	defer p.Close()

	var n int32
	for i := 0; i < 50; i++ {
		_, err := p.Submit("work", func(ctx context.Context, data interface{}) {
			atomic.AddInt32(&n, 1)
		}, nil)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	p.WaitAll()
	if atomic.LoadInt32(&n) != 50 {
		t.Fatalf("got %d, want 50", n)
	}
}

func TestSubmitAfterCloseFails(t *testing.T) {
	p := New(1)
	p.Close()
	if _, err := p.Submit("late", func(ctx context.Context, data interface{}) {}, nil); err != ErrClosed {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

func TestDependencyCarriesValueToWaiter(t *testing.T) {
	p := New(2)
	defer p.Close()

	g := p.NewGroup("values")
	size, _ := g.AddDependency()

	_, err := p.SubmitTask(TaskSpec{
		Group: g, Name: "produce-size",
		Fn: func(ctx context.Context, data interface{}, part Part) interface{} {
			return 42
		},
		Output: size,
	})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	got := g.Wait(size)
	if got != 42 {
		t.Fatalf("got %v, want 42", got)
	}
	if !g.IsMet(size) {
		t.Fatal("IsMet: want true after Wait returns")
	}
	v, ok := g.Get(size)
	if !ok || v != 42 {
		t.Fatalf("Get: got (%v, %v), want (42, true)", v, ok)
	}
}

func TestSetMetReportsEachDependencyIndependently(t *testing.T) {
	p := New(1)
	defer p.Close()

	g := p.NewGroup("flags")
	a, _ := g.AddDependency()
	b, _ := g.AddDependency()

	task, err := p.SubmitTask(TaskSpec{
		Group: g, Name: "meet-a",
		Fn:     func(ctx context.Context, data interface{}, part Part) interface{} { return nil },
		Output: a,
	})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	task.Wait()

	isMet := make([]bool, 2)
	g.SetMet([]Dependency{a, b}, isMet)
	if !isMet[0] || isMet[1] {
		t.Fatalf("got %v, want [true false]", isMet)
	}
}

func TestGroupBlockDefersSchedulingUntilUnblock(t *testing.T) {
	p := New(2)
	defer p.Close()

	g := p.NewGroup("subgraph")
	a, _ := g.AddDependency()

	g.Block()

	var ran int32
	_, err := p.SubmitDependent(g, "seed", func(ctx context.Context, data interface{}) {
		atomic.AddInt32(&ran, 1)
	}, nil, nil, a)
	if err != nil {
		t.Fatalf("SubmitDependent: %v", err)
	}

	// seed has no unmet inputs, so outside a blocked group it would run
	// immediately. Blocked, it must not run until Unblock.
	time.Sleep(10 * time.Millisecond)
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatal("blocked task ran before Unblock")
	}

	g.Unblock()
	for i := 0; i < 100 && atomic.LoadInt32(&ran) == 0; i++ {
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("got %d runs after Unblock, want 1", ran)
	}
}

func TestIterationSplittingRunsOnePartPerChunk(t *testing.T) {
	p := New(4)
	defer p.Close()

	var parts int32
	var covered int32
	task, err := p.SubmitTask(TaskSpec{
		Name: "split",
		Fn: func(ctx context.Context, data interface{}, part Part) interface{} {
			atomic.AddInt32(&parts, 1)
			atomic.AddInt32(&covered, int32(part.End-part.Start))
			return nil
		},
		Output:     DependencyInvalid,
		ItersTotal: 10,
		MaxPerPart: 3,
	})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	task.Wait()

	if atomic.LoadInt32(&parts) != 4 { // 3+3+3+1
		t.Fatalf("got %d parts, want 4", parts)
	}
	if atomic.LoadInt32(&covered) != 10 {
		t.Fatalf("parts covered %d iterations, want 10", covered)
	}
}

func TestCompletionFunctionComputesOutputAfterAllParts(t *testing.T) {
	p := New(4)
	defer p.Close()

	g := p.NewGroup("sum")
	total, _ := g.AddDependency()

	var sum int32
	task, err := p.SubmitTask(TaskSpec{
		Group: g, Name: "sum-parts",
		Fn: func(ctx context.Context, data interface{}, part Part) interface{} {
			atomic.AddInt32(&sum, int32(part.End-part.Start))
			return nil
		},
		Completion: func(ctx context.Context, data interface{}, part Part) interface{} {
			return atomic.LoadInt32(&sum)
		},
		Output:     total,
		ItersTotal: 9,
		MaxPerPart: 4,
	})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	task.Wait()

	if got := g.Wait(total); got != int32(9) {
		t.Fatalf("got %v, want 9", got)
	}
}

func TestDetachedTaskStillRunsAndMeetsOutput(t *testing.T) {
	p := New(2)
	defer p.Close()

	g := p.NewGroup("fire-and-forget")
	done, _ := g.AddDependency()

	_, err := p.SubmitTask(TaskSpec{
		Group: g, Name: "background",
		Fn:       func(ctx context.Context, data interface{}, part Part) interface{} { return "done" },
		Output:   done,
		Detached: true,
	})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	if got := g.Wait(done); got != "done" {
		t.Fatalf("got %v, want done", got)
	}
}

func TestCooperativePoolRunsOnCallingGoroutine(t *testing.T) {
	p := New(0)
	defer p.Close()

	var ran int32
	task, err := p.Submit("work", func(ctx context.Context, data interface{}) {
		atomic.AddInt32(&ran, 1)
	}, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Nothing drains the queue on its own in cooperative mode; Wait
	// must do it itself rather than block forever.
	task.Wait()
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("got %d, want 1", ran)
	}
}

func TestCooperativePoolRunsDependencyChainViaWaitAll(t *testing.T) {
	p := New(0)
	defer p.Close()

	g := p.NewGroup("chain")
	a, _ := g.AddDependency()

	var order []string
	p.SubmitDependent(g, "second", func(ctx context.Context, data interface{}) {
		order = append(order, "second")
	}, nil, []Dependency{a}, DependencyInvalid)
	p.SubmitDependent(g, "first", func(ctx context.Context, data interface{}) {
		order = append(order, "first")
	}, nil, nil, a)

	p.WaitAll()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("got order %v, want [first second]", order)
	}
}
