package proc

// ═══════════════════════════════════════════════════════════════════════════
// READY QUEUE
// ═══════════════════════════════════════════════════════════════════════════
//
// Doubly-linked list threaded through the PCBs, sorted by non-increasing
// priority, FIFO within a level. The queue is the single source of truth
// for "who runs next": every policy reduces to popping its head.
//
// Insertion invariant: a new node goes AFTER every node of higher or equal
// priority. That is what makes equal-priority scheduling round-robin — a
// preempted process re-enters behind its peers.
//
// ═══════════════════════════════════════════════════════════════════════════

// enqueue links p at its priority-ordered position.
//
// WHAT: Position p after all nodes with priority >= p.Priority
// HOW:  Prepend when strictly above the head; otherwise walk until the
//       next node ranks strictly below and splice in after the cursor
func (t *Table) enqueue(p *PCB) {
	if p.queued {
		return
	}
	p.queued = true
	p.prev = nil
	p.next = nil

	if t.head == nil {
		t.head = p
		t.tail = p
		t.readyCount++
		return
	}

	if p.Priority > t.head.Priority {
		p.next = t.head
		t.head.prev = p
		t.head = p
		t.readyCount++
		return
	}

	cur := t.head
	for cur.next != nil && cur.next.Priority >= p.Priority {
		cur = cur.next
	}

	p.next = cur.next
	p.prev = cur
	if cur.next != nil {
		cur.next.prev = p
	} else {
		t.tail = p
	}
	cur.next = p
	t.readyCount++
}

// unlink removes p from the queue. No-op when p is not linked, so state
// transitions never double-unlink.
func (t *Table) unlink(p *PCB) {
	if !p.queued {
		return
	}
	if p.prev != nil {
		p.prev.next = p.next
	} else {
		t.head = p.next
	}
	if p.next != nil {
		p.next.prev = p.prev
	} else {
		t.tail = p.prev
	}
	p.prev = nil
	p.next = nil
	p.queued = false
	t.readyCount--
}

// DequeueReady pops the queue head: the highest-priority, longest-waiting
// runnable process. Returns nil when nothing is runnable. The popped PCB
// stays READY until the caller commits it to a new state.
func (t *Table) DequeueReady() *PCB {
	p := t.head
	if p == nil {
		return nil
	}
	t.unlink(p)
	return p
}

// PeekReady returns the queue head without removing it.
func (t *Table) PeekReady() *PCB { return t.head }

// ReadyCount reports the current queue length.
func (t *Table) ReadyCount() int { return t.readyCount }

// readyOrder returns the queued PIDs head-to-tail. Test and reporting
// helper; no mutation.
func (t *Table) readyOrder() []PID {
	var pids []PID
	for p := t.head; p != nil; p = p.next {
		pids = append(pids, p.PID)
	}
	return pids
}
