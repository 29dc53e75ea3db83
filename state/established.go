package state

import "github.com/tcpcore/pseudotcp/segment"

type establishedState struct{ base }

var EstablishedState State = establishedState{}

func (establishedState) Tag() Tag { return Established }

func (establishedState) Send(c Conn, buf []byte) (int, error) { return 0, nil }

func (establishedState) Receive(c Conn, into []byte) (int, error) { return 0, nil }

func (establishedState) Close(c Conn) error {
	sendFin(c)
	c.SetState(FinWait1)
	return nil
}

func (establishedState) Abort(c Conn) { abortConnection(c, true) }

// Handle runs the shared synchronized-state processing and, if the
// segment's FIN lands exactly at RCV.NXT once any payload has been
// consumed, moves the connection into CLOSE-WAIT: the peer is done
// sending but our side may still have data to deliver.
func (establishedState) Handle(c Conn, seg *segment.Segment) Result {
	t := c.TCB()
	accepted, result := processSegment(c, seg)
	if result != OK {
		return result
	}
	if accepted && seg.Isset(segment.FlagFIN) && seg.Seq.Add(seg.DataLength()) == t.RcvNxt {
		processFin(c)
		c.SetState(CloseWait)
		c.SignalDisconnect(DisconnectClosing)
		return Close
	}
	return OK
}
