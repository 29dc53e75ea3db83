package state

import (
	"github.com/tcpcore/pseudotcp/pcperr"
	"github.com/tcpcore/pseudotcp/segment"
	"github.com/tcpcore/pseudotcp/tcb"
)

type listenState struct{ base }

var ListenState State = listenState{}

func (listenState) Tag() Tag { return Listen }

// Send on Listen implements RFC 793's "foreign socket specified" rule: a
// passive-open connection with a remote address already bound may be
// promoted to an active open by sending, rather than by a fresh Open
// call; one with no remote address cannot send at all.
func (listenState) Send(c Conn, buf []byte) (int, error) {
	if c.Remote() == nil {
		return 0, pcperr.ErrForeignSocketUnspecified
	}
	t := c.TCB()
	if err := t.Init(t.RcvWnd); err != nil {
		return 0, err
	}
	pkt := c.NewOutgoingPacket()
	pkt.SetSeq(t.ISS).SetFlags(segment.FlagSYN)
	c.AddMSSOption(pkt)
	c.Transmit(pkt)
	t.SndNxt = t.ISS.Add(1)
	c.SetState(SynSent)
	return 0, nil
}

func (listenState) Close(c Conn) error {
	c.SetState(Closed)
	return nil
}

// Handle implements the Listen branch of SEGMENT ARRIVES: drop a bare
// RST, reset any segment carrying an ACK (nothing has been sent to
// acknowledge yet), and turn a SYN into the SYN-RECEIVED
// half of the three-way handshake. Anything else is silently dropped.
func (listenState) Handle(c Conn, seg *segment.Segment) Result {
	if seg.Isset(segment.FlagRST) {
		c.Drop(seg, "RST to listening connection")
		return OK
	}
	if seg.Isset(segment.FlagACK) {
		sendReset(c, seg)
		return OK
	}
	if !seg.Isset(segment.FlagSYN) {
		c.Drop(seg, "no control bits expected in LISTEN")
		return OK
	}

	if !c.SignalAccept() {
		return ResultClosed
	}

	c.SetRemote(seg.SrcAddr)
	c.SetRemotePort(seg.SrcPort)
	t := c.TCB()
	t.IRS = seg.Seq
	t.RcvNxt = seg.Seq.Add(1)
	iss, err := tcb.GenerateISN()
	if err != nil {
		c.SignalError(err)
		return OK
	}
	t.ISS = iss
	t.SndUna = iss
	t.SndNxt = iss.Add(1)
	negotiateMSS(t, seg.Options)

	synAck := c.NewOutgoingPacket()
	synAck.SetSeq(t.ISS).SetAck(t.RcvNxt).SetFlags(segment.FlagSYN | segment.FlagACK)
	c.AddMSSOption(synAck)
	c.Transmit(synAck)

	c.SetState(SynReceived)
	return OK
}
