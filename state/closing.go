package state

import "github.com/tcpcore/pseudotcp/segment"

type closingState struct{ base }

var ClosingState State = closingState{}

func (closingState) Tag() Tag { return Closing }

func (closingState) Close(c Conn) error { return nil }

// Handle runs the shared processing; both FINs have already been sent,
// so the only remaining event is our own FIN finally being acked.
func (closingState) Handle(c Conn, seg *segment.Segment) Result {
	t := c.TCB()
	_, result := processSegment(c, seg)
	if result != OK {
		return result
	}
	if t.SndUna == t.SndNxt {
		c.SetState(TimeWait)
		c.StartTimeWait()
		return Close
	}
	return OK
}
