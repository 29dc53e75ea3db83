package state

import (
	"github.com/tcpcore/pseudotcp/pcperr"
	"github.com/tcpcore/pseudotcp/segment"
)

// closedState is the initial and final state: no TCB is live. It is a
// stateless singleton, like every other state variant.
type closedState struct{ base }

// ClosedState is the shared Closed singleton; conn.Connection starts
// every new Connection here.
var ClosedState State = closedState{}

func (closedState) Tag() Tag { return Closed }

func (closedState) Open(c Conn, active bool) error {
	t := c.TCB()
	if active {
		if c.Remote() == nil {
			return pcperr.ErrForeignSocketUnspecified
		}
		if err := t.Init(t.RcvWnd); err != nil {
			return err
		}
		pkt := c.NewOutgoingPacket()
		pkt.SetSeq(t.ISS).SetFlags(segment.FlagSYN)
		c.AddMSSOption(pkt)
		c.Transmit(pkt)
		t.SndNxt = t.ISS.Add(1)
		c.SetState(SynSent)
		return nil
	}
	if err := t.Init(t.RcvWnd); err != nil {
		return err
	}
	c.SetState(Listen)
	return nil
}

func (closedState) Send(c Conn, buf []byte) (int, error) { return 0, pcperr.ErrDoesNotExist }

func (closedState) Receive(c Conn, into []byte) (int, error) { return 0, pcperr.ErrDoesNotExist }

func (closedState) Close(c Conn) error { return pcperr.ErrDoesNotExist }

// Handle implements RFC 793's "If the state is CLOSED" branch of SEGMENT
// ARRIVES: drop an inbound RST, otherwise answer with a reset built from
// the offending segment and stay Closed.
func (closedState) Handle(c Conn, seg *segment.Segment) Result {
	if seg.Isset(segment.FlagRST) {
		c.Drop(seg, "RST to closed connection")
		return OK
	}
	sendReset(c, seg)
	return OK
}
