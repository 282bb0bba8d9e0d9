package relay

import (
	"container/list"
	"fmt"
	"iter"
)

// Queue is the FIFO waiting list of unpaired participant ids. An id appears
// at most once.
type Queue struct {
	order *list.List
	index map[string]*list.Element
}

func NewQueue() *Queue {
	return &Queue{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// Enqueue appends id at the tail.
func (q *Queue) Enqueue(id string) error {
	if _, ok := q.index[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyQueued, id)
	}
	q.index[id] = q.order.PushBack(id)
	return nil
}

// Remove drops id from the queue; no-op if absent.
func (q *Queue) Remove(id string) {
	elem, ok := q.index[id]
	if !ok {
		return
	}
	q.order.Remove(elem)
	delete(q.index, id)
}

func (q *Queue) Contains(id string) bool {
	_, ok := q.index[id]
	return ok
}

func (q *Queue) Len() int { return q.order.Len() }

// IDs returns the queued ids, oldest first.
func (q *Queue) IDs() []string {
	out := make([]string, 0, q.order.Len())
	for e := q.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(string))
	}
	return out
}

// DrainPairs removes the two oldest entries for as long as two remain and
// yields them in arrival order. Ids for which valid reports false are
// discarded and draining continues. A lone valid id left over stays at the
// head of the queue. Stopping the iteration early leaves the remaining
// entries queued.
//
// A nil valid accepts every id.
func (q *Queue) DrainPairs(valid func(id string) bool) iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for q.order.Len() >= 2 {
			first, ok := q.popValid(valid)
			if !ok {
				return
			}
			second, ok := q.popValid(valid)
			if !ok {
				q.pushFront(first)
				return
			}
			if !yield(first, second) {
				return
			}
		}
	}
}

func (q *Queue) popValid(valid func(string) bool) (string, bool) {
	for {
		elem := q.order.Front()
		if elem == nil {
			return "", false
		}
		id := q.order.Remove(elem).(string)
		delete(q.index, id)
		if valid == nil || valid(id) {
			return id, true
		}
	}
}

func (q *Queue) pushFront(id string) {
	q.index[id] = q.order.PushFront(id)
}
