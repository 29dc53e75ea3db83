package state

import (
	"github.com/tcpcore/pseudotcp/segment"
	"github.com/tcpcore/pseudotcp/tcb"
)

// abortConnection is the common teardown several states' Abort/RST paths
// share: optionally emit a RST at SND.NXT, stop retransmission, signal
// the owner and fall back to Closed.
func abortConnection(c Conn, sendRST bool) {
	if sendRST {
		t := c.TCB()
		pkt := c.NewOutgoingPacket()
		pkt.SetSeq(t.SndNxt).SetFlags(segment.FlagRST)
		c.Transmit(pkt)
	}
	c.RTStop()
	c.SignalDisconnect(DisconnectClosing)
	c.SetState(Closed)
}

// sendFin emits our FIN at the current SND.NXT, consuming the sequence
// number FIN occupies the way process_fin does for an inbound one.
func sendFin(c Conn) {
	t := c.TCB()
	pkt := c.NewOutgoingPacket()
	pkt.SetSeq(t.SndNxt).SetAck(t.RcvNxt).SetFlags(segment.FlagFIN | segment.FlagACK)
	c.Transmit(pkt)
	t.SndNxt = t.SndNxt.Add(1)
}

// negotiateMSS keeps the smaller of our configured MSS and the peer's
// advertised one, per the usual "minimum of the two" TCP MSS rule.
func negotiateMSS(t *tcb.TCB, opt segment.Options) {
	if opt.MSS > 0 && (t.MSS == 0 || opt.MSS < t.MSS) {
		t.MSS = opt.MSS
	}
}
