package rxqueue

import (
	"sync"

	"github.com/tcpcore/pseudotcp/pcperr"
)

// WriteQueue is a bounded byte queue for data the user has handed to
// Send but that has not yet gone out as a segment (e.g. while waiting
// on SND.WND, or before the handshake completes).
type WriteQueue struct {
	mu  sync.Mutex
	buf []byte
	cap int
}

func NewWriteQueue(capacity int) *WriteQueue {
	return &WriteQueue{cap: capacity}
}

// Push appends p, or as much of it as fits, returning how many bytes
// were accepted and ErrInsufficientResources if none were.
func (q *WriteQueue) Push(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	room := q.cap - len(q.buf)
	if room <= 0 {
		return 0, pcperr.ErrInsufficientResources
	}
	n := len(p)
	if n > room {
		n = room
	}
	q.buf = append(q.buf, p[:n]...)
	return n, nil
}

// Take removes and returns up to max bytes from the front of the queue.
func (q *WriteQueue) Take(max int) []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max > len(q.buf) {
		max = len(q.buf)
	}
	out := append([]byte(nil), q.buf[:max]...)
	q.buf = q.buf[max:]
	return out
}

func (q *WriteQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

func (q *WriteQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = nil
}
