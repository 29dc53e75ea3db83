package state

import (
	"github.com/tcpcore/pseudotcp/pcperr"
	"github.com/tcpcore/pseudotcp/segment"
	"github.com/tcpcore/pseudotcp/tcb"
)

type synSentState struct{ base }

var SynSentState State = synSentState{}

func (synSentState) Tag() Tag { return SynSent }

// Send queues against a not-yet-synchronized connection: RFC 793 allows
// it, deferring transmission until the handshake completes.
func (synSentState) Send(c Conn, buf []byte) (int, error) { return 0, nil }

func (synSentState) Close(c Conn) error {
	c.RTStop()
	c.SetState(Closed)
	return nil
}

// Handle implements the SYN-SENT branch of SEGMENT ARRIVES: validate an
// ACK against our unacknowledged SYN, react to RST (only trusted when it
// acks our SYN), then process an inbound SYN either as the completion of
// a normal handshake or, if our own SYN is still unacknowledged, as a
// simultaneous open (RFC 793 figure 8).
func (synSentState) Handle(c Conn, seg *segment.Segment) Result {
	t := c.TCB()

	ackOK := false
	if seg.Isset(segment.FlagACK) {
		if tcb.LessOrEqual(seg.Ack, t.ISS) || tcb.Greater(seg.Ack, t.SndNxt) {
			if !seg.Isset(segment.FlagRST) {
				sendReset(c, seg)
			}
			c.Drop(seg, "ack does not cover our SYN")
			return OK
		}
		ackOK = true
	}

	if seg.Isset(segment.FlagRST) {
		if ackOK {
			c.SignalDisconnect(DisconnectRefused)
			c.SignalError(pcperr.ErrConnectionRefused)
			return ResultClosed
		}
		c.Drop(seg, "unacked RST in SYN-SENT")
		return OK
	}

	if !seg.Isset(segment.FlagSYN) {
		c.Drop(seg, "no SYN or RST in SYN-SENT")
		return OK
	}

	t.IRS = seg.Seq
	t.RcvNxt = seg.Seq.Add(1)
	negotiateMSS(t, seg.Options)
	if ackOK {
		t.SndUna = seg.Ack
		c.RTAckQueue(seg.Ack)
	}

	if tcb.Greater(t.SndUna, t.ISS) {
		// Our SYN is acknowledged: handshake complete.
		// RFC 1122 p.94 correction: seed the send window from this
		// segment rather than leaving it at its zero initial value.
		t.SndWnd = seg.Window
		t.SndWl1 = seg.Seq
		t.SndWl2 = seg.Ack
		c.SetState(Established)

		sndNxt := t.SndNxt
		c.SignalConnect() // NOTE: user callback may itself send, advancing SND.NXT

		if t.SndNxt == sndNxt {
			ack := c.NewOutgoingPacket()
			ack.SetSeq(t.SndNxt).SetAck(t.RcvNxt).SetFlags(segment.FlagACK)
			c.Transmit(ack)
		}

		if seg.HasData() {
			n := c.DeliverData(seg.Data(), seg.Isset(segment.FlagPSH))
			if n > 0 {
				t.RcvNxt = t.RcvNxt.Add(uint32(n))
				ack := c.NewOutgoingPacket()
				ack.SetSeq(t.SndNxt).SetAck(t.RcvNxt).SetFlags(segment.FlagACK)
				c.Transmit(ack)
			}
		}

		if seg.Isset(segment.FlagFIN) {
			processFin(c)
			c.SetState(CloseWait)
			c.SignalDisconnect(DisconnectClosing)
			return OK
		}
		return OK
	}

	// Simultaneous open: both sides sent SYN before either saw the
	// other's. Re-send our SYN, now also acking theirs, and wait in
	// SYN-RECEIVED for it to be acked.
	synAck := c.NewOutgoingPacket()
	synAck.SetSeq(t.ISS).SetAck(t.RcvNxt).SetFlags(segment.FlagSYN | segment.FlagACK)
	c.Transmit(synAck)
	c.SetState(SynReceived)
	return OK
}
