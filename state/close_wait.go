package state

import "github.com/tcpcore/pseudotcp/segment"

type closeWaitState struct{ base }

var CloseWaitState State = closeWaitState{}

func (closeWaitState) Tag() Tag { return CloseWait }

func (closeWaitState) Send(c Conn, buf []byte) (int, error) { return 0, nil }

// Receive continues to drain whatever arrived before the peer's FIN;
// no more will arrive.
func (closeWaitState) Receive(c Conn, into []byte) (int, error) { return 0, nil }

func (closeWaitState) Close(c Conn) error {
	sendFin(c)
	c.SetState(LastAck)
	return nil
}

func (closeWaitState) Abort(c Conn) { abortConnection(c, true) }

// Handle runs the shared processing only: the peer's FIN already
// arrived, so nothing here triggers a state change. A retransmitted FIN
// is re-acked by processSegment's usual ACK bookkeeping.
func (closeWaitState) Handle(c Conn, seg *segment.Segment) Result {
	_, result := processSegment(c, seg)
	return result
}
