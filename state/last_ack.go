package state

import "github.com/tcpcore/pseudotcp/segment"

type lastAckState struct{ base }

var LastAckState State = lastAckState{}

func (lastAckState) Tag() Tag { return LastAck }

func (lastAckState) Close(c Conn) error { return nil }

// Handle runs the full shared processing before checking whether our
// FIN is now acked. The original this is ported from returned CLOSED
// immediately after its sequence-number check, before its RST/SYN/ACK
// handling could run at all, leaving that code unreachable; per RFC 793
// a LAST-ACK segment still needs the ordinary checks run; only the
// final condition - our FIN acknowledged - ends the connection.
func (lastAckState) Handle(c Conn, seg *segment.Segment) Result {
	t := c.TCB()
	_, result := processSegment(c, seg)
	if result != OK {
		return result
	}
	if t.SndUna == t.SndNxt {
		c.RTStop()
		c.SetState(Closed)
		return ResultClosed
	}
	return OK
}
