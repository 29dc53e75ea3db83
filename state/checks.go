package state

import (
	"github.com/tcpcore/pseudotcp/segment"
	"github.com/tcpcore/pseudotcp/tcb"
)

// checkSeq implements RFC 793's sequence-number acceptability test
// (section 3.3, the four-case table keyed on whether RCV.WND and
// SEG.LEN are zero):
//
//	LEN=0 WND=0: acceptable iff SEG.SEQ == RCV.NXT
//	LEN=0 WND>0: acceptable iff RCV.NXT <= SEG.SEQ < RCV.NXT+RCV.WND
//	LEN>0 WND=0: never acceptable
//	LEN>0 WND>0: acceptable iff the first or last byte of the segment
//	             falls in the receive window
func checkSeq(t *tcb.TCB, seg *segment.Segment) bool {
	segLen := seg.DataLength()
	if seg.Isset(segment.FlagSYN) || seg.Isset(segment.FlagFIN) {
		segLen++ // SYN and FIN each occupy one sequence number
	}

	if segLen == 0 {
		if t.RcvWnd == 0 {
			return seg.Seq == t.RcvNxt
		}
		return tcb.InWindow(seg.Seq, t.RcvNxt, t.RcvWnd)
	}
	if t.RcvWnd == 0 {
		return false
	}
	if tcb.InWindow(seg.Seq, t.RcvNxt, t.RcvWnd) {
		return true
	}
	return tcb.InWindow(seg.Seq.Add(segLen-1), t.RcvNxt, t.RcvWnd)
}

// checkAck implements the check_ack acceptability test: a bare ACK
// segment is acceptable precisely when it falls in (SND.UNA, SND.NXT],
// and when acceptable it advances SND.UNA. A new or duplicate ack
// (SND.UNA <= SEG.ACK <= SND.NXT) also updates the window (subject to
// the WL1/WL2 guard) and the RFC 5681 duplicate-ACK bookkeeping.
func checkAck(c Conn, seg *segment.Segment) bool {
	t := c.TCB()
	if !seg.Isset(segment.FlagACK) {
		return false
	}
	acceptable := tcb.Greater(seg.Ack, t.SndUna) && tcb.LessOrEqual(seg.Ack, t.SndNxt)
	inRange := tcb.GreaterOrEqual(seg.Ack, t.SndUna) && tcb.LessOrEqual(seg.Ack, t.SndNxt)

	outstanding := t.SndNxt != t.SndUna
	dup := t.IsDuplicateAck(outstanding, seg.HasData(), seg.Isset(segment.FlagSYN), seg.Isset(segment.FlagFIN), seg.Ack, seg.Window)
	if dup {
		c.DupAckSeen(seg.Ack)
	}

	if acceptable {
		t.SndUna = seg.Ack
		c.RTAckQueue(seg.Ack)
	}
	// The window may be updated by a duplicate ack as well as a new one,
	// per RFC 793, as long as the WL1/WL2 ordering guard passes.
	if inRange {
		t.UpdateWindow(seg.Seq, seg.Ack, seg.Window)
		t.RecordAck(seg.Ack, seg.Window)
	}

	// An ack of something not yet sent is unacceptable and tells the
	// caller to send an ACK and drop the segment. An ack of something
	// already acked (SEG.ACK <= SND.UNA) is a harmless duplicate: it is
	// not unacceptable, it just triggers no state update above.
	return !tcb.Greater(seg.Ack, t.SndNxt)
}
