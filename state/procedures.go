package state

import (
	"github.com/tcpcore/pseudotcp/pcperr"
	"github.com/tcpcore/pseudotcp/segment"
	"github.com/tcpcore/pseudotcp/tcb"
)

// sendReset builds and transmits the RST RFC 793 prescribes in response
// to an unacceptable segment arriving on a connection that is not (or no
// longer) synchronized: if the offending segment carried an ACK, the
// reset carries SEQ=SEG.ACK and no other control bits; otherwise
// SEQ=0 and the reset acks the offending segment's end sequence with
// RST+ACK. Used from Closed and Listen.
func sendReset(c Conn, seg *segment.Segment) {
	pkt := c.NewOutgoingPacket()
	if seg.Isset(segment.FlagACK) {
		pkt.SetSeq(seg.Ack).SetFlags(segment.FlagRST)
	} else {
		segLen := seg.DataLength()
		if seg.Isset(segment.FlagSYN) || seg.Isset(segment.FlagFIN) {
			segLen++
		}
		pkt.SetSeq(0).SetAck(seg.Seq.Add(segLen)).SetFlags(segment.FlagRST | segment.FlagACK)
	}
	c.Transmit(pkt)
}

// unallowedSynReset implements the RFC 793 "fourth, check the SYN bit"
// step for a synchronized connection: a SYN arriving inside the receive
// window after the connection has synchronized is an error. The
// response resets with SEQ=SND.NXT, signals RESET to the owner and
// tears the connection down.
func unallowedSynReset(c Conn) {
	t := c.TCB()
	pkt := c.NewOutgoingPacket()
	pkt.SetSeq(t.SndNxt).SetFlags(segment.FlagRST)
	c.Transmit(pkt)
	c.SignalDisconnect(DisconnectReset)
}

// processFin implements the common FIN-processing procedure: FIN
// consumes one sequence number, so RCV.NXT advances past it and the
// advance is acknowledged. The caller (each synchronized state's
// Handle) still decides which state FIN processing lands in, and
// whether to fire signal_disconnect, since that differs by state.
func processFin(c Conn) {
	t := c.TCB()
	t.RcvNxt = t.RcvNxt.Add(1)
	ack := c.NewOutgoingPacket()
	ack.SetSeq(t.SndNxt).SetAck(t.RcvNxt).SetFlags(segment.FlagACK)
	c.Transmit(ack)
}

// processSegment implements the shared body of RFC 793's SEGMENT
// ARRIVES processing for an already-synchronized connection: sequence
// acceptability, inbound RST teardown, the unallowed-SYN-in-window
// check, ACK acceptability, and delivery of any payload. It reports
// whether the segment was accepted for further (FIN) processing by the
// caller, and a Result the caller should propagate unless it has more
// specific work to do first.
func processSegment(c Conn, seg *segment.Segment) (accepted bool, result Result) {
	t := c.TCB()

	if !checkSeq(t, seg) {
		if !seg.Isset(segment.FlagRST) {
			ack := c.NewOutgoingPacket()
			ack.SetSeq(t.SndNxt).SetAck(t.RcvNxt).SetFlags(segment.FlagACK)
			c.Transmit(ack)
		}
		c.Drop(seg, "sequence number not acceptable")
		return false, OK
	}

	if seg.Isset(segment.FlagRST) {
		c.SignalDisconnect(DisconnectReset)
		c.SignalError(pcperr.ErrConnectionReset)
		return false, ResultClosed
	}

	if seg.Isset(segment.FlagSYN) && tcb.InWindow(seg.Seq, t.RcvNxt, t.RcvWnd) {
		unallowedSynReset(c)
		return false, ResultClosed
	}

	if !checkAck(c, seg) {
		ack := c.NewOutgoingPacket()
		ack.SetSeq(t.SndNxt).SetAck(t.RcvNxt).SetFlags(segment.FlagACK)
		c.Transmit(ack)
		c.Drop(seg, "ack of unsent data")
		return false, OK
	}

	if seg.HasData() {
		n := c.DeliverData(seg.Data(), seg.Isset(segment.FlagPSH))
		if n > 0 {
			t.RcvNxt = t.RcvNxt.Add(uint32(n))
			ack := c.NewOutgoingPacket()
			ack.SetSeq(t.SndNxt).SetAck(t.RcvNxt).SetFlags(segment.FlagACK)
			c.Transmit(ack)
		}
		if n < len(seg.Data()) {
			// Short of full acceptance (receiver backpressure): the
			// unaccepted tail stays unacknowledged and will be resent.
			return n > 0, OK
		}
	}

	return true, OK
}
