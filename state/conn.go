package state

import (
	"net"

	"github.com/tcpcore/pseudotcp/segment"
	"github.com/tcpcore/pseudotcp/tcb"
)

// Conn is the slice of the connection facade that state variants need.
// It is implemented by *conn.Connection; defining it here (rather than
// importing package conn) keeps state free of a state<->conn import
// cycle, since conn.Connection necessarily imports state.
type Conn interface {
	TCB() *tcb.TCB
	Remote() net.Addr
	SetRemote(net.Addr)
	RemotePort() uint16
	SetRemotePort(uint16)

	// NewOutgoingPacket returns an Outgoing pre-filled with this
	// connection's addresses, ports and advertised window; the caller
	// only needs to set SEQ/ACK/flags/options/payload.
	NewOutgoingPacket() *segment.Outgoing
	Transmit(pkt *segment.Outgoing)
	Drop(seg *segment.Segment, reason string)

	// SetState swaps the active state and records the outgoing one as
	// PrevStateTag, per spec.md's "no string comparison" requirement.
	SetState(tag Tag)
	PrevStateTag() Tag
	Passive() bool

	SignalAccept() bool
	SignalConnect()
	SignalDisconnect(cause DisconnectCause)
	SignalError(err error)

	// DeliverData hands payload bytes to the read side; it returns the
	// number of bytes actually accepted (<=len(data) under backpressure).
	DeliverData(data []byte, psh bool) int
	HasPendingRead() bool

	Acknowledge(ack tcb.Seq)
	RTAckQueue(ack tcb.Seq)
	RTFlush()
	RTStop()
	StartTimeWait()

	HasSendableData() bool
	IsWriteQueued() bool
	PushWriteQueue()
	ResetWriteQueue()

	AddMSSOption(pkt *segment.Outgoing)

	RTTMActive() bool
	RTTMStop(acceptable bool)
	DupAckSeen(ack tcb.Seq)
}
