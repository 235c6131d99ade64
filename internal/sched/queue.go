package sched

import (
	"time"

	"github.com/taskgov/governor/contracts"
)

// entry is the scheduler-owned mutable state for one enqueued task.
type entry struct {
	def      *contracts.TaskDefinition
	state    contracts.TaskState
	attempts int
	reason   string
	units    contracts.Units
	seq      int
}

// taskQueue holds the ordered pending set. Priority order first, then FIFO
// (enqueue sequence) within a priority. Tasks with unsatisfied dependencies
// are skipped in place, never removed; a task whose dependency terminally
// failed is surfaced as blocked.
type taskQueue struct {
	pending []*entry
	seq     int
}

func newTaskQueue() *taskQueue {
	return &taskQueue{}
}

func (q *taskQueue) push(e *entry) {
	e.seq = q.seq
	q.seq++
	e.state = contracts.TaskQueued
	q.pending = append(q.pending, e)
}

// requeue puts a deferred entry back with original priority preserved (no
// priority decay); it receives a fresh FIFO sequence at the back.
func (q *taskQueue) requeue(e *entry) {
	e.reason = ""
	q.push(e)
}

func (q *taskQueue) len() int { return len(q.pending) }

// ids returns pending task IDs in queue order.
func (q *taskQueue) ids() []contracts.TaskID {
	out := make([]contracts.TaskID, 0, len(q.pending))
	for _, e := range q.pending {
		out = append(out, e.def.ID)
	}
	return out
}

// pop removes and returns the highest-priority dependency-satisfied entry.
// The boost hook, when set, escalates effective priority at dequeue time.
// Entries whose dependency reached a terminal state other than completed are
// removed and returned as blocked. Returns (nil, blocked) when nothing is
// eligible.
func (q *taskQueue) pop(
	now time.Time,
	boost contracts.PriorityBoost,
	states map[contracts.TaskID]contracts.TaskState,
) (picked *entry, blocked []*entry) {
	keep := q.pending[:0]
	var candidates []*entry

	for _, e := range q.pending {
		switch q.depStatus(e, states) {
		case depBlocked:
			blocked = append(blocked, e)
			continue
		case depWaiting:
			keep = append(keep, e)
			continue
		}
		candidates = append(candidates, e)
		keep = append(keep, e)
	}
	q.pending = keep

	for _, e := range candidates {
		if picked == nil || less(picked, e, boost, now) {
			picked = e
		}
	}
	if picked != nil {
		q.remove(picked)
	}
	return picked, blocked
}

// less reports whether b should dequeue before a.
func less(a, b *entry, boost contracts.PriorityBoost, now time.Time) bool {
	pa, pb := a.def.Priority, b.def.Priority
	if boost != nil {
		if bp := boost(a.def, now); bp > pa {
			pa = bp
		}
		if bp := boost(b.def, now); bp > pb {
			pb = bp
		}
	}
	if pa != pb {
		return pb > pa
	}
	return b.seq < a.seq
}

type depState int

const (
	depReady depState = iota
	depWaiting
	depBlocked
)

// depStatus checks the entry's dependencies against recorded task states.
func (q *taskQueue) depStatus(e *entry, states map[contracts.TaskID]contracts.TaskState) depState {
	for _, dep := range e.def.Contract.DependsOn {
		st, ok := states[dep]
		if !ok {
			return depWaiting
		}
		if st == contracts.TaskCompleted {
			continue
		}
		if st.Terminal() {
			// Dependency failed or was itself blocked; this task can never run.
			return depBlocked
		}
		return depWaiting
	}
	return depReady
}

func (q *taskQueue) remove(target *entry) {
	for i, e := range q.pending {
		if e == target {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}
