package state

import "github.com/tcpcore/pseudotcp/segment"

type finWait2State struct{ base }

var FinWait2State State = finWait2State{}

func (finWait2State) Tag() Tag { return FinWait2 }

func (finWait2State) Receive(c Conn, into []byte) (int, error) { return 0, nil }

func (finWait2State) Close(c Conn) error { return nil }

func (finWait2State) Abort(c Conn) { abortConnection(c, true) }

// Handle runs the shared processing; our FIN is already fully acked, so
// the only remaining transition is the peer's FIN moving us to TIME-WAIT.
func (finWait2State) Handle(c Conn, seg *segment.Segment) Result {
	t := c.TCB()
	accepted, result := processSegment(c, seg)
	if result != OK {
		return result
	}
	if accepted && seg.Isset(segment.FlagFIN) && seg.Seq.Add(seg.DataLength()) == t.RcvNxt {
		processFin(c)
		c.SetState(TimeWait)
		c.StartTimeWait()
		c.SignalDisconnect(DisconnectClosing)
		return Close
	}
	return OK
}
