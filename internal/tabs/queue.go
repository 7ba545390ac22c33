package tabs

import (
	"sync"
)

// Mutator mutates a document in place during an update cycle. Returning an
// error aborts only that cycle; queued successors still run.
type Mutator func(doc *Document) error

// queueMap keeps, per tab identifier, the settlement channel of the
// last-scheduled update cycle. A new cycle chains after the stored tail and
// replaces it before any I/O begins, so concurrent callers for the same
// identifier always serialize in call order. Entries are pruned once a chain
// drains.
type queueMap struct {
	mu    sync.Mutex
	tails map[TabID]chan struct{}
}

func (q *queueMap) init() {
	q.tails = make(map[TabID]chan struct{})
}

// enqueue registers a new cycle and returns the predecessor to wait on (nil
// if the chain was empty) plus the caller's own settlement channel.
func (q *queueMap) enqueue(id TabID) (prev <-chan struct{}, done chan struct{}) {
	done = make(chan struct{})
	q.mu.Lock()
	if tail, ok := q.tails[id]; ok {
		prev = tail
	}
	q.tails[id] = done
	q.mu.Unlock()
	return prev, done
}

// settle marks a cycle as finished and prunes the map entry if no successor
// chained after it.
func (q *queueMap) settle(id TabID, done chan struct{}) {
	q.mu.Lock()
	if q.tails[id] == done {
		delete(q.tails, id)
	}
	q.mu.Unlock()
	close(done)
}

// Update runs a read-modify-write cycle against the document of id, serialized
// with every other Update call for the same identifier in call order.
// The document is read without an audio scan (mutators operate on the
// authoritative stored shape), passed to the mutator, then written back in
// full. The call blocks until this caller's own cycle settles and returns its
// outcome; failures of earlier queued cycles are invisible here.
func (s *Store) Update(id TabID, mutator Mutator) error {
	if err := ValidateName(id.String()); err != nil {
		return newStoreError(opUpdate, "invalid_id", err)
	}

	prev, done := s.queues.enqueue(id)
	defer s.queues.settle(id, done)

	if prev != nil {
		<-prev
	}

	doc, err := s.readDocument(id, false)
	if err != nil {
		return err
	}
	if err := mutator(doc); err != nil {
		return err
	}
	if err := s.writeDocument(id, doc); err != nil {
		s.logError(opUpdate, "write_failed", err)
		return newStoreError(opUpdate, "write_failed", err)
	}
	return nil
}
