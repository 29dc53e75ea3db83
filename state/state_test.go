package state

import (
	"net"
	"testing"

	"github.com/tcpcore/pseudotcp/segment"
	"github.com/tcpcore/pseudotcp/tcb"
)

// fakeConn is a minimal, single-threaded double for Conn good enough to
// exercise state transitions without pulling in package conn (which
// imports package state).
type fakeConn struct {
	t            tcb.TCB
	remote       net.Addr
	remotePort   uint16
	tag          Tag
	prevTag      Tag
	transmitted  []*segment.Outgoing
	dropped      []string
	accepted     bool
	rejectAccept bool
	connected    bool
	disconnected DisconnectCause
	errs         []error
	delivered    []byte
	rtAcked      []tcb.Seq
	timeWait     bool
	dupAcks      []tcb.Seq
}

func (f *fakeConn) TCB() *tcb.TCB   { return &f.t }
func (f *fakeConn) Remote() net.Addr { return f.remote }
func (f *fakeConn) SetRemote(a net.Addr) { f.remote = a }
func (f *fakeConn) RemotePort() uint16 { return f.remotePort }
func (f *fakeConn) SetRemotePort(p uint16) { f.remotePort = p }

func (f *fakeConn) NewOutgoingPacket() *segment.Outgoing {
	return &segment.Outgoing{SrcPort: 1, DstPort: 2, ProtocolID: 6}
}
func (f *fakeConn) Transmit(pkt *segment.Outgoing) { f.transmitted = append(f.transmitted, pkt) }
func (f *fakeConn) Drop(seg *segment.Segment, reason string) { f.dropped = append(f.dropped, reason) }

func (f *fakeConn) SetState(tag Tag) { f.prevTag = f.tag; f.tag = tag }
func (f *fakeConn) PrevStateTag() Tag { return f.prevTag }
func (f *fakeConn) Passive() bool     { return true }

func (f *fakeConn) SignalAccept() bool            { f.accepted = true; return !f.rejectAccept }
func (f *fakeConn) SignalConnect()                { f.connected = true }
func (f *fakeConn) SignalDisconnect(c DisconnectCause) { f.disconnected = c }
func (f *fakeConn) SignalError(err error)         { f.errs = append(f.errs, err) }

func (f *fakeConn) DeliverData(data []byte, psh bool) int {
	f.delivered = append(f.delivered, data...)
	return len(data)
}
func (f *fakeConn) HasPendingRead() bool { return len(f.delivered) > 0 }

func (f *fakeConn) Acknowledge(ack tcb.Seq)    {}
func (f *fakeConn) RTAckQueue(ack tcb.Seq)     { f.rtAcked = append(f.rtAcked, ack) }
func (f *fakeConn) RTFlush()                  {}
func (f *fakeConn) RTStop()                   {}
func (f *fakeConn) StartTimeWait()            { f.timeWait = true }

func (f *fakeConn) HasSendableData() bool { return false }
func (f *fakeConn) IsWriteQueued() bool   { return false }
func (f *fakeConn) PushWriteQueue()       {}
func (f *fakeConn) ResetWriteQueue()      {}

func (f *fakeConn) AddMSSOption(pkt *segment.Outgoing) {}

func (f *fakeConn) RTTMActive() bool            { return false }
func (f *fakeConn) RTTMStop(acceptable bool)    {}
func (f *fakeConn) DupAckSeen(ack tcb.Seq)       { f.dupAcks = append(f.dupAcks, ack) }

func newFakeConn() *fakeConn {
	f := &fakeConn{}
	f.t.ISS = 1000
	f.t.SndUna = 1000
	f.t.SndNxt = 1001 // SYN sent, occupies one sequence number
	f.t.SndWnd = 4096
	f.t.RcvWnd = 4096
	return f
}

func TestSynSentSimultaneousOpen(t *testing.T) {
	c := newFakeConn()
	c.tag = SynSent

	seg := &segment.Segment{Seq: 5000, Flags: segment.FlagSYN}
	result := SynSentState.Handle(c, seg)
	if result != OK {
		t.Fatalf("got result %s, want OK", result)
	}
	if c.tag != SynReceived {
		t.Fatalf("got state %s, want SYN-RECEIVED", c.tag)
	}
	if c.t.IRS != 5000 || c.t.RcvNxt != 5001 {
		t.Errorf("IRS/RCV.NXT not set from peer's SYN: IRS=%s RCV.NXT=%s", c.t.IRS, c.t.RcvNxt)
	}
}

func TestSynSentNormalHandshake(t *testing.T) {
	c := newFakeConn()
	c.tag = SynSent

	seg := &segment.Segment{Seq: 5000, Ack: 1001, Flags: segment.FlagSYN | segment.FlagACK}
	result := SynSentState.Handle(c, seg)
	if result != OK {
		t.Fatalf("got result %s, want OK", result)
	}
	if c.tag != Established {
		t.Fatalf("got state %s, want ESTABLISHED", c.tag)
	}
	if !c.connected {
		t.Error("SignalConnect was not called")
	}
}

func TestSynReceivedReturnsToListenOnRSTFromPassiveOpen(t *testing.T) {
	c := newFakeConn()
	c.tag = SynReceived
	c.prevTag = Listen
	c.t.RcvNxt = 5001
	c.t.RcvWnd = 4096

	seg := &segment.Segment{Seq: 5001, Flags: segment.FlagRST}
	result := SynReceivedState.Handle(c, seg)
	if result != OK {
		t.Fatalf("got result %s, want OK", result)
	}
	if c.tag != Listen {
		t.Fatalf("got state %s, want LISTEN", c.tag)
	}
}

func TestSynReceivedRefusedOnRSTFromActiveOpen(t *testing.T) {
	c := newFakeConn()
	c.tag = SynReceived
	c.prevTag = SynSent
	c.t.RcvNxt = 5001
	c.t.RcvWnd = 4096

	seg := &segment.Segment{Seq: 5001, Flags: segment.FlagRST}
	result := SynReceivedState.Handle(c, seg)
	if result != ResultClosed {
		t.Fatalf("got result %s, want CLOSED", result)
	}
	if c.disconnected != DisconnectRefused {
		t.Errorf("got disconnect cause %s, want REFUSED", c.disconnected)
	}
}

func TestEstablishedFinMovesToCloseWait(t *testing.T) {
	c := newFakeConn()
	c.tag = Established
	c.t.RcvNxt = 5000
	c.t.RcvWnd = 4096

	seg := &segment.Segment{Seq: 5000, Ack: 1001, Flags: segment.FlagACK | segment.FlagFIN}
	result := EstablishedState.Handle(c, seg)
	if result != Close {
		t.Fatalf("got result %s, want CLOSE", result)
	}
	if c.tag != CloseWait {
		t.Fatalf("got state %s, want CLOSE-WAIT", c.tag)
	}
	if c.t.RcvNxt != 5001 {
		t.Errorf("got RCV.NXT %s, want 5001 (FIN consumes a sequence number)", c.t.RcvNxt)
	}
}

func TestFinWait1SimultaneousCloseGoesDirectToTimeWait(t *testing.T) {
	c := newFakeConn()
	c.tag = FinWait1
	c.t.RcvNxt = 5000
	c.t.RcvWnd = 4096
	c.t.SndNxt = 1002 // our FIN already sent, occupying 1001
	// The peer's FIN+ACK both acks our FIN and carries their own FIN.
	seg := &segment.Segment{Seq: 5000, Ack: 1002, Flags: segment.FlagACK | segment.FlagFIN}
	result := FinWait1State.Handle(c, seg)
	if result != Close {
		t.Fatalf("got result %s, want CLOSE", result)
	}
	if c.tag != TimeWait {
		t.Fatalf("got state %s, want TIME-WAIT", c.tag)
	}
	if !c.timeWait {
		t.Error("2MSL timer was not started")
	}
}

func TestFinWait1FinOnlyGoesToClosing(t *testing.T) {
	c := newFakeConn()
	c.tag = FinWait1
	c.t.RcvNxt = 5000
	c.t.RcvWnd = 4096
	c.t.SndNxt = 1002 // our FIN already sent, occupying 1001
	seg := &segment.Segment{Seq: 5000, Ack: 1001, Flags: segment.FlagACK | segment.FlagFIN}
	result := FinWait1State.Handle(c, seg)
	if result != Close {
		t.Fatalf("got result %s, want CLOSE", result)
	}
	if c.tag != Closing {
		t.Fatalf("got state %s, want CLOSING (our FIN not yet acked)", c.tag)
	}
}

func TestFinWait1AckOnlyGoesToFinWait2(t *testing.T) {
	c := newFakeConn()
	c.tag = FinWait1
	c.t.RcvNxt = 5000
	c.t.RcvWnd = 4096
	c.t.SndNxt = 1002 // our FIN already sent, occupying 1001
	seg := &segment.Segment{Seq: 5000, Ack: 1002, Flags: segment.FlagACK}
	result := FinWait1State.Handle(c, seg)
	if result != OK {
		t.Fatalf("got result %s, want OK", result)
	}
	if c.tag != FinWait2 {
		t.Fatalf("got state %s, want FIN-WAIT-2", c.tag)
	}
}

func TestLastAckProceedsThroughChecksBeforeClosing(t *testing.T) {
	c := newFakeConn()
	c.tag = LastAck
	c.t.RcvNxt = 5001 // peer's FIN already consumed
	c.t.RcvWnd = 4096
	c.t.SndNxt = 1001 // our FIN occupies 1000..1000, SND.UNA starts at 1000

	// Not yet acking our FIN: state must remain LAST-ACK.
	notYet := &segment.Segment{Seq: 5001, Ack: 1000, Flags: segment.FlagACK}
	if result := LastAckState.Handle(c, notYet); result != OK {
		t.Fatalf("got result %s, want OK before our FIN is acked", result)
	}
	if c.tag == Closed {
		t.Fatal("moved to CLOSED before our FIN was acknowledged")
	}

	ack := &segment.Segment{Seq: 5001, Ack: 1001, Flags: segment.FlagACK}
	result := LastAckState.Handle(c, ack)
	if result != ResultClosed {
		t.Fatalf("got result %s, want CLOSED once our FIN is acked", result)
	}
}

func TestClosedHandleSendsResetForUnexpectedSegment(t *testing.T) {
	c := newFakeConn()
	c.tag = Closed
	seg := &segment.Segment{Seq: 100, Flags: segment.FlagACK, Ack: 500}
	result := ClosedState.Handle(c, seg)
	if result != OK {
		t.Fatalf("got result %s, want OK", result)
	}
	if len(c.transmitted) != 1 || !c.transmitted[0].Flags().Has(segment.FlagRST) {
		t.Fatal("expected a single RST reply")
	}
	if c.transmitted[0].Seq() != 500 {
		t.Errorf("got reset SEQ=%s, want 500 (SEG.ACK)", c.transmitted[0].Seq())
	}
}

func TestListenHandleSynStartsHandshake(t *testing.T) {
	c := newFakeConn()
	c.tag = Listen
	c.t.RcvWnd = 4096
	seg := &segment.Segment{Seq: 7000, Flags: segment.FlagSYN, SrcAddr: &net.IPAddr{IP: net.ParseIP("10.0.0.1")}}
	result := ListenState.Handle(c, seg)
	if result != OK {
		t.Fatalf("got result %s, want OK", result)
	}
	if c.tag != SynReceived {
		t.Fatalf("got state %s, want SYN-RECEIVED", c.tag)
	}
	if c.t.IRS != 7000 || c.t.RcvNxt != 7001 {
		t.Errorf("IRS/RCV.NXT not derived from the SYN: IRS=%s RCV.NXT=%s", c.t.IRS, c.t.RcvNxt)
	}
	if len(c.transmitted) != 1 || !c.transmitted[0].Flags().Has(segment.FlagSYN|segment.FlagACK) {
		t.Fatal("expected a single SYN+ACK reply")
	}
	if !c.accepted {
		t.Error("SignalAccept was not called")
	}
}

func TestListenHandleSynRefusedBySignalAccept(t *testing.T) {
	c := newFakeConn()
	c.tag = Listen
	c.t.RcvWnd = 4096
	c.rejectAccept = true
	seg := &segment.Segment{Seq: 7000, Flags: segment.FlagSYN, SrcAddr: &net.IPAddr{IP: net.ParseIP("10.0.0.1")}}
	result := ListenState.Handle(c, seg)
	if result != ResultClosed {
		t.Fatalf("got result %s, want CLOSED", result)
	}
	if len(c.transmitted) != 0 {
		t.Error("no SYN+ACK should be sent when SignalAccept refuses the connection")
	}
}

func TestSynReceivedCompletingAckSignalsConnect(t *testing.T) {
	c := newFakeConn()
	c.tag = SynReceived
	c.t.RcvNxt = 5001
	c.t.RcvWnd = 4096
	c.t.SndUna = 1000
	c.t.SndNxt = 1001

	seg := &segment.Segment{Seq: 5001, Ack: 1001, Flags: segment.FlagACK}
	result := SynReceivedState.Handle(c, seg)
	if result != OK {
		t.Fatalf("got result %s, want OK", result)
	}
	if c.tag != Established {
		t.Fatalf("got state %s, want ESTABLISHED", c.tag)
	}
	if !c.connected {
		t.Error("SignalConnect was not called")
	}
}
