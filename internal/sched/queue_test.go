package sched

import (
	"testing"
	"time"

	"github.com/taskgov/governor/contracts"
)

func makeEntry(id contracts.TaskID, prio contracts.Priority, deps ...contracts.TaskID) *entry {
	return &entry{def: &contracts.TaskDefinition{
		ID:       id,
		Priority: prio,
		Contract: contracts.TaskContract{DependsOn: deps},
	}}
}

func popAll(t *testing.T, q *taskQueue, states map[contracts.TaskID]contracts.TaskState) []contracts.TaskID {
	t.Helper()
	var order []contracts.TaskID
	for {
		e, _ := q.pop(time.Now(), nil, states)
		if e == nil {
			return order
		}
		order = append(order, e.def.ID)
		if states != nil {
			states[e.def.ID] = contracts.TaskCompleted
		}
	}
}

func TestQueue_PriorityThenFIFO(t *testing.T) {
	q := newTaskQueue()
	q.push(makeEntry("a", contracts.PriorityNormal))
	q.push(makeEntry("b", contracts.PriorityHigh))
	q.push(makeEntry("c", contracts.PriorityNormal))

	got := popAll(t, q, map[contracts.TaskID]contracts.TaskState{})
	want := []contracts.TaskID{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("pop order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order = %v, want %v", got, want)
		}
	}
}

func TestQueue_AllPriorityLevels(t *testing.T) {
	q := newTaskQueue()
	q.push(makeEntry("bg", contracts.PriorityBackground))
	q.push(makeEntry("norm", contracts.PriorityNormal))
	q.push(makeEntry("crit", contracts.PriorityCritical))
	q.push(makeEntry("high", contracts.PriorityHigh))

	got := popAll(t, q, map[contracts.TaskID]contracts.TaskState{})
	want := []contracts.TaskID{"crit", "high", "norm", "bg"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order = %v, want %v", got, want)
		}
	}
}

func TestQueue_BoostAppliedAtDequeue(t *testing.T) {
	q := newTaskQueue()
	q.push(makeEntry("a", contracts.PriorityHigh))
	q.push(makeEntry("b", contracts.PriorityBackground))

	boost := func(task *contracts.TaskDefinition, _ time.Time) contracts.Priority {
		if task.ID == "b" {
			return contracts.PriorityCritical
		}
		return task.Priority
	}

	e, _ := q.pop(time.Now(), boost, map[contracts.TaskID]contracts.TaskState{})
	if e == nil || e.def.ID != "b" {
		t.Fatalf("pop with boost picked %v, want boosted b", e)
	}
}

func TestQueue_BoostNeverLowers(t *testing.T) {
	q := newTaskQueue()
	q.push(makeEntry("a", contracts.PriorityCritical))
	q.push(makeEntry("b", contracts.PriorityNormal))

	// A hook returning a lower value than the task's own priority is ignored.
	boost := func(*contracts.TaskDefinition, time.Time) contracts.Priority {
		return contracts.PriorityBackground
	}

	e, _ := q.pop(time.Now(), boost, map[contracts.TaskID]contracts.TaskState{})
	if e == nil || e.def.ID != "a" {
		t.Fatalf("pop picked %v, want a despite lowering boost", e)
	}
}

func TestQueue_DependencyWaitingSkippedInPlace(t *testing.T) {
	q := newTaskQueue()
	states := map[contracts.TaskID]contracts.TaskState{
		"dep": contracts.TaskInProgress,
	}
	q.push(makeEntry("child", contracts.PriorityCritical, "dep"))
	q.push(makeEntry("other", contracts.PriorityBackground))

	e, blocked := q.pop(time.Now(), nil, states)
	if len(blocked) != 0 {
		t.Fatalf("blocked = %v, want none while dependency is in progress", blocked)
	}
	if e == nil || e.def.ID != "other" {
		t.Fatalf("pop picked %v, want other while child waits", e)
	}
	if q.len() != 1 {
		t.Fatalf("queue len = %d, want waiting child kept in place", q.len())
	}
}

func TestQueue_DependencyCompletedUnblocks(t *testing.T) {
	q := newTaskQueue()
	states := map[contracts.TaskID]contracts.TaskState{
		"dep": contracts.TaskCompleted,
	}
	q.push(makeEntry("child", contracts.PriorityNormal, "dep"))

	e, _ := q.pop(time.Now(), nil, states)
	if e == nil || e.def.ID != "child" {
		t.Fatalf("pop picked %v, want child after dependency completed", e)
	}
}

func TestQueue_DependencyFailedBlocks(t *testing.T) {
	q := newTaskQueue()
	states := map[contracts.TaskID]contracts.TaskState{
		"dep": contracts.TaskFailed,
	}
	q.push(makeEntry("child", contracts.PriorityNormal, "dep"))

	e, blocked := q.pop(time.Now(), nil, states)
	if e != nil {
		t.Fatalf("pop picked %v, want nothing eligible", e.def.ID)
	}
	if len(blocked) != 1 || blocked[0].def.ID != "child" {
		t.Fatalf("blocked = %v, want child surfaced as blocked", blocked)
	}
	if q.len() != 0 {
		t.Fatalf("queue len = %d, want blocked entry removed", q.len())
	}
}

func TestQueue_RequeuePreservesPriority(t *testing.T) {
	q := newTaskQueue()
	e := makeEntry("a", contracts.PriorityHigh)
	q.push(e)
	q.push(makeEntry("b", contracts.PriorityNormal))

	picked, _ := q.pop(time.Now(), nil, map[contracts.TaskID]contracts.TaskState{})
	if picked != e {
		t.Fatalf("pop picked %v, want a", picked.def.ID)
	}

	q.requeue(e)
	picked, _ = q.pop(time.Now(), nil, map[contracts.TaskID]contracts.TaskState{})
	if picked != e {
		t.Fatal("requeued high-priority entry should still dequeue before normal")
	}
}
