// Package dlq is the dead-letter sink capturing full error context for
// node executions FlowRunner could not complete.
package dlq

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/flowkernel/internal/envelope"
)

// Record is one dead-lettered execution: error kind, message, stack,
// and timestamp alongside the offending node and the envelope it was
// executing.
type Record struct {
	ID        string             `json:"id"`
	NodeID    string             `json:"node_id"`
	ErrorKind string             `json:"error_kind"`
	Message   string             `json:"message"`
	Stack     string             `json:"stack"`
	Timestamp time.Time          `json:"timestamp"`
	Envelope  *envelope.Envelope `json:"envelope"`
}

// placeholderStub is substituted for an entry this package cannot decode
// (corrupted storage), so one bad entry never blocks Peek from returning
// the rest.
func placeholderStub() *Record {
	return &Record{
		NodeID:    "<unreadable>",
		ErrorKind: "DecodeError",
		Message:   "dlq entry could not be decoded",
	}
}

// DLQ is an ordered, in-process sink. Oldest entries sit at index 0.
type DLQ struct {
	mu      sync.Mutex
	entries [][]byte // JSON-encoded Records, stored pre-serialized so a
	// corrupt entry only fails to decode at read time, never at write time.
}

// New returns an empty DLQ.
func New() *DLQ {
	return &DLQ{}
}

// Push appends a failure record.
func (q *DLQ) Push(nodeID string, env *envelope.Envelope, kind, message, stack string) error {
	rec := &Record{
		ID:        uuid.NewString(),
		NodeID:    nodeID,
		ErrorKind: kind,
		Message:   message,
		Stack:     stack,
		Timestamp: time.Now(),
		Envelope:  env,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.entries = append(q.entries, raw)
	q.mu.Unlock()
	return nil
}

// Peek returns up to limit records, oldest first. limit <= 0 returns all.
func (q *DLQ) Peek(limit int) []*Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*Record, 0, n)
	for _, raw := range q.entries[:n] {
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			out = append(out, placeholderStub())
			continue
		}
		out = append(out, &rec)
	}
	return out
}

// Length reports how many records are queued.
func (q *DLQ) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// PopAt removes and returns the record at index, or nil if out of range.
func (q *DLQ) PopAt(index int) *Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.entries) {
		return nil
	}
	raw := q.entries[index]
	q.entries = append(q.entries[:index], q.entries[index+1:]...)

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return placeholderStub()
	}
	return &rec
}

// Clear empties the queue.
func (q *DLQ) Clear() {
	q.mu.Lock()
	q.entries = nil
	q.mu.Unlock()
}
