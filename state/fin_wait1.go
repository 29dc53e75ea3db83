package state

import "github.com/tcpcore/pseudotcp/segment"

type finWait1State struct{ base }

var FinWait1State State = finWait1State{}

func (finWait1State) Tag() Tag { return FinWait1 }

func (finWait1State) Receive(c Conn, into []byte) (int, error) { return 0, nil }

// Close is a no-op: our FIN is already in flight.
func (finWait1State) Close(c Conn) error { return nil }

func (finWait1State) Abort(c Conn) { abortConnection(c, true) }

// Handle runs the shared processing and then resolves FIN-WAIT-1's three
// possible outcomes in one pass rather than the classic "transition to
// FIN-WAIT-2, then re-dispatch the same segment to pick up its FIN"
// trick: since processSegment already tells us whether this segment's
// FIN landed, checking both conditions together here reaches the same
// three destinations (FIN-WAIT-2, CLOSING, or straight to TIME-WAIT on
// a simultaneous close) without a second dispatch.
func (finWait1State) Handle(c Conn, seg *segment.Segment) Result {
	t := c.TCB()
	accepted, result := processSegment(c, seg)
	if result != OK {
		return result
	}

	finReceived := accepted && seg.Isset(segment.FlagFIN) && seg.Seq.Add(seg.DataLength()) == t.RcvNxt
	if finReceived {
		processFin(c)
	}
	finAcked := t.SndUna == t.SndNxt

	switch {
	case finAcked && finReceived:
		c.SetState(TimeWait)
		c.StartTimeWait()
		c.SignalDisconnect(DisconnectClosing)
		return Close
	case finReceived:
		c.SetState(Closing)
		c.SignalDisconnect(DisconnectClosing)
		return Close
	case finAcked:
		c.SetState(FinWait2)
		return OK
	}
	return OK
}
