package state

import (
	"github.com/tcpcore/pseudotcp/pcperr"
	"github.com/tcpcore/pseudotcp/segment"
	"github.com/tcpcore/pseudotcp/tcb"
)

type synReceivedState struct{ base }

var SynReceivedState State = synReceivedState{}

func (synReceivedState) Tag() Tag { return SynReceived }

func (synReceivedState) Send(c Conn, buf []byte) (int, error) { return 0, nil }

func (synReceivedState) Receive(c Conn, into []byte) (int, error) { return 0, nil }

func (synReceivedState) Close(c Conn) error {
	sendFin(c)
	c.SetState(FinWait1)
	return nil
}

func (synReceivedState) Abort(c Conn) { abortConnection(c, true) }

// Handle implements the SYN-RECEIVED branch of SEGMENT ARRIVES. Its RST
// handling is the one place in the state machine that depends on how we
// got here rather than just the current state: a connection that arrived
// via LISTEN's passive open returns to LISTEN on RST (the listener keeps
// accepting), while one that arrived from an active open (SYN-SENT's
// simultaneous-open branch) treats RST as connection refused.
func (synReceivedState) Handle(c Conn, seg *segment.Segment) Result {
	t := c.TCB()

	if !checkSeq(t, seg) {
		if !seg.Isset(segment.FlagRST) {
			ack := c.NewOutgoingPacket()
			ack.SetSeq(t.SndNxt).SetAck(t.RcvNxt).SetFlags(segment.FlagACK)
			c.Transmit(ack)
		}
		c.Drop(seg, "sequence number not acceptable")
		return OK
	}

	if seg.Isset(segment.FlagRST) {
		if c.PrevStateTag() == Listen {
			c.SetState(Listen)
			return OK
		}
		c.SignalDisconnect(DisconnectRefused)
		c.SignalError(pcperr.ErrConnectionRefused)
		return ResultClosed
	}

	if seg.Isset(segment.FlagSYN) && tcb.InWindow(seg.Seq, t.RcvNxt, t.RcvWnd) {
		unallowedSynReset(c)
		return ResultClosed
	}

	if !checkAck(c, seg) {
		rst := c.NewOutgoingPacket()
		rst.SetSeq(seg.Ack).SetFlags(segment.FlagRST)
		c.Transmit(rst)
		c.Drop(seg, "ack of unsent data")
		return OK
	}

	// The ack of our SYN-ACK completes the handshake.
	c.SetState(Established)
	c.SignalConnect()

	if seg.HasData() {
		n := c.DeliverData(seg.Data(), seg.Isset(segment.FlagPSH))
		if n > 0 {
			t.RcvNxt = t.RcvNxt.Add(uint32(n))
			ack := c.NewOutgoingPacket()
			ack.SetSeq(t.SndNxt).SetAck(t.RcvNxt).SetFlags(segment.FlagACK)
			c.Transmit(ack)
		}
	}

	if seg.Isset(segment.FlagFIN) && seg.Seq == t.RcvNxt {
		processFin(c)
		c.SetState(CloseWait)
		c.SignalDisconnect(DisconnectClosing)
		return Close
	}

	return OK
}
