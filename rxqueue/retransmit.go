// Package rxqueue holds a connection's outbound bookkeeping: the
// retransmission queue of unacknowledged segments and the bounded write
// queue of user bytes not yet sent.
package rxqueue

import (
	"sync"
	"time"

	"github.com/tcpcore/pseudotcp/segment"
	"github.com/tcpcore/pseudotcp/tcb"
)

// sentSegment is one outstanding segment awaiting acknowledgment.
type sentSegment struct {
	pkt         *segment.Outgoing
	raw         []byte // marshaled bytes, ready to resend verbatim
	sentAt      time.Time
	resendCount int
}

// RetransmitQueue tracks segments sent but not yet acknowledged, keyed
// by their starting sequence number, the way the teacher's
// ResendPackets does, adapted to key on tcb.Seq instead of a raw
// uint32 and to drop whole acknowledged ranges rather than single exact
// keys (ACKs are cumulative).
type RetransmitQueue struct {
	mu    sync.Mutex
	byKey map[tcb.Seq]*sentSegment
	order []tcb.Seq // insertion order, oldest first
}

func NewRetransmitQueue() *RetransmitQueue {
	return &RetransmitQueue{byKey: make(map[tcb.Seq]*sentSegment)}
}

// Add records a just-transmitted segment for possible retransmission.
// KeepAlive probes are never queued, mirroring the teacher's
// IsKeepAliveMassege exclusion from ResendPackets.
func (q *RetransmitQueue) Add(seq tcb.Seq, pkt *segment.Outgoing, raw []byte) {
	if pkt.KeepAlive {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.byKey[seq]; exists {
		return
	}
	q.byKey[seq] = &sentSegment{pkt: pkt, raw: raw, sentAt: time.Now()}
	q.order = append(q.order, seq)
}

// AckThrough drops every queued segment whose data ends at or before
// ack, the cumulative-ack semantics TCP actually uses (unlike the
// teacher's exact-sequence-number removal, which only ever matched
// single-segment acks).
func (q *RetransmitQueue) AckThrough(ack tcb.Seq) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.order[:0]
	for _, seq := range q.order {
		s, ok := q.byKey[seq]
		if !ok {
			continue
		}
		end := seq.Add(uint32(len(s.pkt.Payload())))
		if s.pkt.Flags().Has(segment.FlagSYN) || s.pkt.Flags().Has(segment.FlagFIN) {
			end = end.Add(1)
		}
		if tcb.LessOrEqual(end, ack) {
			delete(q.byKey, seq)
			continue
		}
		kept = append(kept, seq)
	}
	q.order = kept
}

// Oldest returns the earliest still-unacknowledged segment, if any.
func (q *RetransmitQueue) Oldest() (raw []byte, seq tcb.Seq, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return nil, 0, false
	}
	seq = q.order[0]
	s := q.byKey[seq]
	s.resendCount++
	s.sentAt = time.Now()
	return s.raw, seq, true
}

// Empty reports whether every sent segment has been acknowledged.
func (q *RetransmitQueue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order) == 0
}

// Reset discards all queued segments, used on abort/reset teardown.
func (q *RetransmitQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byKey = make(map[tcb.Seq]*sentSegment)
	q.order = nil
}
