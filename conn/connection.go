// Package conn implements the Connection façade: it owns the TCB, the
// active state.State, the read/write/retransmit queues and the
// per-connection timers, and dispatches everything - inbound segments,
// user API calls, and timer fires alike - through one goroutine so the
// state machine only ever runs to completion, never concurrently with
// itself. This mirrors the teacher's lib/pconn.go handleIncomingPackets/
// handleOutgoingPackets goroutine-per-connection pattern, generalized
// from its flat handshake-then-stream loop to the full eleven-state
// dispatcher in package state.
package conn

import (
	"fmt"
	"log"
	"net"

	"github.com/tcpcore/pseudotcp/config"
	"github.com/tcpcore/pseudotcp/pcperr"
	"github.com/tcpcore/pseudotcp/poolsupport"
	"github.com/tcpcore/pseudotcp/rxqueue"
	"github.com/tcpcore/pseudotcp/segment"
	"github.com/tcpcore/pseudotcp/state"
	"github.com/tcpcore/pseudotcp/tcb"
	"github.com/tcpcore/pseudotcp/timers"
)

// Transport is the pluggable send side a Connection writes marshaled
// frames to; package iface supplies an implementation over stdlib raw IP
// sockets.
type Transport interface {
	Send(frame []byte, dst net.Addr) error
}

// Callbacks are the external events spec.md section 6 lists: the
// connection facade calls back into whatever owns it (a Service on
// accept, a dialer on connect) rather than blocking on them itself.
type Callbacks struct {
	SignalAccept     func(*Connection) bool
	SignalConnect    func(*Connection)
	SignalDisconnect func(*Connection, state.DisconnectCause)
	SignalError      func(*Connection, error)
}

type event struct {
	seg *segment.Segment
	fn  func()
}

// Connection is one TCP-like connection's full state: TCB, current
// state.State, queues, timers, and the goroutine serializing all of it.
type Connection struct {
	tcbv tcb.TCB
	cur  state.State
	prev state.Tag
	pass bool

	local, remote         net.Addr
	localPort, remotePort uint16
	protocolID            uint8

	transport Transport
	pool      *poolsupport.Pool
	cfg       *config.Config

	rttm *timers.RTTM
	rt   *timers.RetransmitTimer
	tw   *timers.TimeWaitTimer

	retransmit *rxqueue.RetransmitQueue
	writeQ     *rxqueue.WriteQueue
	readQ      *rxqueue.ReadQueue

	cb    Callbacks
	inbox chan event
	done  chan struct{}

	dupAckCount int
}

// New constructs a Connection in the Closed state. Callers still need to
// call Open (active or passive) before any segment can progress it.
func New(transport Transport, pool *poolsupport.Pool, cfg *config.Config, local, remote net.Addr, localPort, remotePort uint16, cb Callbacks) *Connection {
	c := &Connection{
		cur:         state.ClosedState,
		prev:        state.Closed,
		local:       local,
		remote:      remote,
		localPort:   localPort,
		remotePort:  remotePort,
		protocolID:  cfg.ProtocolID,
		transport:   transport,
		pool:        pool,
		cfg:         cfg,
		rttm:        timers.NewRTTM(),
		retransmit:  rxqueue.NewRetransmitQueue(),
		writeQ:      rxqueue.NewWriteQueue(cfg.WriteBufferSize),
		readQ:       rxqueue.NewReadQueue(cfg.ReadBufferSize),
		cb:          cb,
		inbox:       make(chan event, 64),
		done:        make(chan struct{}),
	}
	c.tcbv.RcvWnd = uint32(cfg.ReadBufferSize)
	if cfg.PreferredMSS > 0 {
		c.tcbv.MSS = uint16(cfg.PreferredMSS)
	}
	c.rt = timers.NewRetransmitTimer(c.rttm)
	c.tw = timers.NewTimeWaitTimer(cfg.MSL)
	go c.run()
	return c
}

func (c *Connection) run() {
	for ev := range c.inbox {
		if ev.seg != nil {
			if c.cur.Handle(c, ev.seg) == state.ResultClosed && c.cur.Tag() != state.Closed {
				c.SetState(state.Closed)
			}
		} else if ev.fn != nil {
			ev.fn()
		}
		if c.cur.Tag() == state.Closed {
			c.teardown()
			return
		}
	}
}

func (c *Connection) teardown() {
	c.rt.Stop()
	c.tw.Stop()
	c.retransmit.Reset()
	c.writeQ.Reset()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// Input hands an inbound segment to the dispatch goroutine. It does not
// block on processing; it only blocks if the inbox is momentarily full.
func (c *Connection) Input(seg *segment.Segment) {
	select {
	case c.inbox <- event{seg: seg}:
	case <-c.done:
	}
}

// call runs fn on the dispatch goroutine and waits for it to finish,
// the way Open/Send/Receive/Close/Abort all need to observe the state
// transition fn makes before returning to their caller.
func (c *Connection) call(fn func()) {
	result := make(chan struct{})
	wrapped := event{fn: func() { fn(); close(result) }}
	select {
	case c.inbox <- wrapped:
		<-result
	case <-c.done:
	}
}

// Done is closed once the connection reaches Closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Open starts a connection attempt (active) or begins listening for one
// (passive, active=false).
func (c *Connection) Open(active bool) error {
	var err error
	c.call(func() {
		c.pass = !active
		err = c.cur.Open(c, active)
	})
	return err
}

func (c *Connection) Send(buf []byte) (int, error) {
	var n int
	var err error
	c.call(func() {
		n, err = c.cur.Send(c, buf)
		if err == nil {
			accepted, perr := c.writeQ.Push(buf)
			if perr != nil {
				err = perr
				return
			}
			n = accepted
			c.pumpWriteQueue()
		}
	})
	return n, err
}

func (c *Connection) Receive(into []byte) (int, error) {
	var n int
	var err error
	c.call(func() {
		_, err = c.cur.Receive(c, into)
		if err == nil {
			n = c.readQ.Read(into)
		}
	})
	return n, err
}

func (c *Connection) Close() error {
	var err error
	c.call(func() { err = c.cur.Close(c) })
	return err
}

func (c *Connection) Abort() {
	c.call(func() { c.cur.Abort(c) })
}

// pumpWriteQueue segments whatever is queued, respecting the peer's
// advertised window and our negotiated MSS, and transmits it. Called
// only from the dispatch goroutine.
func (c *Connection) pumpWriteQueue() {
	t := &c.tcbv
	for {
		inFlight := uint32(t.SndNxt.Diff(t.SndUna))
		if inFlight >= t.SndWnd {
			return
		}
		room := t.SndWnd - inFlight
		chunk := int(room)
		if t.MSS > 0 && chunk > int(t.MSS) {
			chunk = int(t.MSS)
		}
		if chunk <= 0 {
			return
		}
		data := c.writeQ.Take(chunk)
		if len(data) == 0 {
			return
		}
		pkt := c.NewOutgoingPacket()
		pkt.SetSeq(t.SndNxt).SetFlags(segment.FlagACK | segment.FlagPSH).SetPayload(data)
		c.Transmit(pkt)
		t.SndNxt = t.SndNxt.Add(uint32(len(data)))
	}
}

// ---- state.Conn implementation ----

func (c *Connection) TCB() *tcb.TCB      { return &c.tcbv }
func (c *Connection) Remote() net.Addr   { return c.remote }

// RemoteAddr mirrors net.Conn's accessor, grounded on the teacher's
// lib.Connection.RemoteAddr used throughout test/echoserver and
// test/testclient to log which peer a connection belongs to.
func (c *Connection) RemoteAddr() net.Addr { return c.remote }
func (c *Connection) LocalAddr() net.Addr  { return c.local }
func (c *Connection) SetRemote(a net.Addr) { c.remote = a }
func (c *Connection) LocalPort() uint16  { return c.localPort }
func (c *Connection) RemotePort() uint16 { return c.remotePort }
func (c *Connection) SetRemotePort(p uint16) { c.remotePort = p }
func (c *Connection) Passive() bool      { return c.pass }
func (c *Connection) PrevStateTag() state.Tag { return c.prev }

func (c *Connection) SetState(tag state.Tag) {
	c.prev = c.cur.Tag()
	c.cur = state.ForTag(tag)
}

func (c *Connection) NewOutgoingPacket() *segment.Outgoing {
	pkt := &segment.Outgoing{
		SrcAddr: c.local, DstAddr: c.remote,
		SrcPort: c.localPort, DstPort: c.remotePort,
		ProtocolID: c.protocolID,
	}
	pkt.SetWindow(c.readQ.Window())
	return pkt
}

func (c *Connection) Transmit(pkt *segment.Outgoing) {
	el := c.pool.Get()
	defer c.pool.Put(el)
	payload := poolsupport.PayloadOf(el)

	buf := make([]byte, segment.PseudoHeaderLength+segment.HeaderLength+segment.OptionsMaxLength+len(pkt.Payload()))
	n, err := pkt.Marshal(buf)
	if err != nil {
		log.Println("conn: marshal outgoing segment:", err)
		return
	}
	frame := buf[segment.PseudoHeaderLength : segment.PseudoHeaderLength+n]
	if err := payload.Copy(frame); err != nil {
		log.Println("conn: buffer outgoing segment:", err)
		return
	}

	if err := c.transport.Send(payload.GetSlice(), c.remote); err != nil {
		log.Println("conn: send:", err)
		return
	}

	consumesSeq := pkt.Flags().Has(segment.FlagSYN) || pkt.Flags().Has(segment.FlagFIN) || len(pkt.Payload()) > 0
	if consumesSeq && !pkt.KeepAlive {
		raw := append([]byte(nil), frame...)
		c.retransmit.Add(pkt.Seq(), pkt, raw)
		if !c.rt.Active() {
			c.rt.Start(c.onRetransmitTimeout)
		}
	}
}

// onRetransmitTimeout fires on the timer goroutine; per spec.md section
// 5 it re-enters the state machine through the same channel every other
// event does, rather than touching the TCB directly.
func (c *Connection) onRetransmitTimeout() {
	select {
	case c.inbox <- event{fn: c.retransmitOldest}:
	case <-c.done:
	}
}

func (c *Connection) retransmitOldest() {
	raw, _, ok := c.retransmit.Oldest()
	if !ok {
		c.rt.Stop()
		return
	}
	if err := c.transport.Send(raw, c.remote); err != nil {
		log.Println("conn: retransmit:", err)
	}
	c.rt.Backoff(c.onRetransmitTimeout)
}

func (c *Connection) Drop(seg *segment.Segment, reason string) {
	if c.cfg != nil && c.cfg.Debug {
		log.Printf("conn: dropping %s: %s", seg, reason)
	}
}

func (c *Connection) SignalAccept() bool {
	if c.cb.SignalAccept != nil {
		return c.cb.SignalAccept(c)
	}
	return true
}

func (c *Connection) SignalConnect() {
	if c.cb.SignalConnect != nil {
		c.cb.SignalConnect(c)
	}
}

func (c *Connection) SignalDisconnect(cause state.DisconnectCause) {
	if c.cb.SignalDisconnect != nil {
		c.cb.SignalDisconnect(c, cause)
	}
}

func (c *Connection) SignalError(err error) {
	if c.cb.SignalError != nil {
		c.cb.SignalError(c, err)
	}
}

func (c *Connection) DeliverData(data []byte, psh bool) int {
	return c.readQ.Deliver(data)
}

func (c *Connection) HasPendingRead() bool { return c.readQ.Len() > 0 }

func (c *Connection) Acknowledge(ack tcb.Seq) {}

func (c *Connection) RTAckQueue(ack tcb.Seq) {
	c.retransmit.AckThrough(ack)
	c.dupAckCount = 0
	if c.retransmit.Empty() {
		c.rt.Stop()
	}
	c.pumpWriteQueue()
}

func (c *Connection) RTFlush() {
	if raw, _, ok := c.retransmit.Oldest(); ok {
		if err := c.transport.Send(raw, c.remote); err != nil {
			log.Println("conn: fast retransmit:", err)
		}
	}
}

func (c *Connection) RTStop() { c.rt.Stop() }

func (c *Connection) StartTimeWait() {
	c.tw.Start(func() {
		select {
		case c.inbox <- event{fn: func() { c.SetState(state.Closed) }}:
		case <-c.done:
		}
	})
}

func (c *Connection) HasSendableData() bool { return c.writeQ.Len() > 0 }
func (c *Connection) IsWriteQueued() bool   { return c.writeQ.Len() > 0 }
func (c *Connection) PushWriteQueue()       { c.pumpWriteQueue() }
func (c *Connection) ResetWriteQueue()      { c.writeQ.Reset() }

func (c *Connection) AddMSSOption(pkt *segment.Outgoing) {
	if c.cfg.PreferredMSS > 0 {
		pkt.SetOptions(segment.Options{MSS: uint16(c.cfg.PreferredMSS)})
	}
}

func (c *Connection) RTTMActive() bool { return c.rt.Active() }

func (c *Connection) RTTMStop(acceptable bool) {
	if !acceptable {
		return
	}
}

// DupAckSeen implements the RFC 5681 fast-retransmit trigger: three
// duplicate acks in a row resend the oldest unacknowledged segment
// instead of waiting out the full RTO.
func (c *Connection) DupAckSeen(ack tcb.Seq) {
	c.dupAckCount++
	if c.dupAckCount >= 3 {
		c.dupAckCount = 0
		c.RTFlush()
	}
}

func (c *Connection) String() string {
	return fmt.Sprintf("conn[%s:%d<->%s:%d state=%s]", c.local, c.localPort, c.remote, c.remotePort, c.cur.Tag())
}

var _ state.Conn = (*Connection)(nil)

// ErrNotOpen is returned by Send/Receive before Open has been called.
var ErrNotOpen = pcperr.ErrDoesNotExist
