// Package iface is the pluggable boundary between the state machine and
// the OS: a raw IP socket source of inbound frames and a sink for
// outbound ones. It is grounded directly on the teacher's
// lib/pconn.go, which dials with net.DialIP for the client side and
// listens with net.ListenIP for the server side, then reads/writes raw
// IP frames over net.IPConn/net.PacketConn - there is no cross-platform
// raw-socket library in the pack that does this more directly than
// stdlib net already does for IPv4.
package iface

import (
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/tcpcore/pseudotcp/segment"
)

// Sink is the receiving side of package conn: it accepts inbound
// segments that Serve has already checksum-verified.
type Sink interface {
	Input(seg *segment.Segment)
}

// IPTransport is a raw-IP socket bound to a single protocol number,
// shared by every Connection multiplexed over one (localIP) or
// (localIP,port) pair - the same arrangement as the teacher's one
// PcpProtocolConnection per local/remote IP pair.
type IPTransport struct {
	protocolID uint8
	local      *net.IPAddr

	clientConn *net.IPConn    // set when dialed (active / client role)
	serverConn net.PacketConn // set when listening (passive / server role)

	ipv4Conn *ipv4.PacketConn // TTL control messages, debug only
	debug    bool

	demux func(src net.Addr, srcPort, dstPort uint16) Sink
}

// DialIP opens a raw IP socket to remoteIP for client-role use, mirroring
// PcpProtocolConnection.dial's net.DialIP("ip4:tcp", localAddr, serverAddr).
func DialIP(protocolID uint8, local, remote *net.IPAddr) (*IPTransport, error) {
	network := fmt.Sprintf("ip4:%d", protocolID)
	conn, err := net.DialIP(network, local, remote)
	if err != nil {
		return nil, fmt.Errorf("iface: dial %s -> %s: %w", local, remote, err)
	}
	if err := setReceiveBuffer(conn, 1<<20); err != nil {
		log.Println("iface: SO_RCVBUF not raised:", err)
	}
	return &IPTransport{
		protocolID: protocolID, local: local, clientConn: conn,
		ipv4Conn: ipv4.NewPacketConn(conn),
	}, nil
}

// ListenIP opens a raw IP socket bound to local for server-role use,
// mirroring PcpProtocolConnection's net.ListenIP("ip4:tcp", serviceAddr).
func ListenIP(protocolID uint8, local *net.IPAddr) (*IPTransport, error) {
	network := fmt.Sprintf("ip4:%d", protocolID)
	conn, err := net.ListenIP(network, local)
	if err != nil {
		return nil, fmt.Errorf("iface: listen %s: %w", local, err)
	}
	if err := setReceiveBuffer(conn, 1<<20); err != nil {
		log.Println("iface: SO_RCVBUF not raised:", err)
	}
	return &IPTransport{
		protocolID: protocolID, local: local, serverConn: conn,
		ipv4Conn: ipv4.NewPacketConn(conn),
	}, nil
}

// SetDemux installs the lookup used to route an inbound frame to the
// Connection (or listener) that owns its (peer, ports) tuple.
func (t *IPTransport) SetDemux(demux func(src net.Addr, srcPort, dstPort uint16) Sink) {
	t.demux = demux
}

// SetDebug turns on per-frame TTL logging via the ipv4.PacketConn
// control message, useful for diagnosing a path that's silently
// dropping or rerouting frames.
func (t *IPTransport) SetDebug(on bool) {
	t.debug = on
	if t.ipv4Conn != nil {
		t.ipv4Conn.SetControlMessage(ipv4.FlagTTL, on)
	}
}

// Send implements conn.Transport: frame is the TCP header+options+
// payload (no pseudo-header) already checksummed by Outgoing.Marshal.
func (t *IPTransport) Send(frame []byte, dst net.Addr) error {
	var err error
	if t.clientConn != nil {
		_, err = t.clientConn.Write(frame)
	} else {
		err = fmt.Errorf("iface: server-role transport requires an explicit destination write")
		if pc, ok := t.serverConn.(interface {
			WriteTo([]byte, net.Addr) (int, error)
		}); ok {
			_, err = pc.WriteTo(frame, dst)
		}
	}
	return err
}

// Serve reads inbound frames until stop is closed, verifies their
// checksum, and routes them to whatever SetDemux resolves for their
// (peer, ports); it mirrors server/clientProcessingIncomingPacket's
// read-verify-dispatch loop.
func (t *IPTransport) Serve(stop <-chan struct{}) {
	buf := make([]byte, 65535)
	for {
		select {
		case <-stop:
			return
		default:
		}

		var n int
		var src net.Addr
		var err error
		if t.debug && t.ipv4Conn != nil {
			t.ipv4Conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			var cm *ipv4.ControlMessage
			n, cm, src, err = t.ipv4Conn.ReadFrom(buf)
			if err == nil && cm != nil {
				log.Printf("iface: frame from %s ttl=%d\n", src, cm.TTL)
			}
			if src == nil && t.clientConn != nil {
				src = t.clientConn.RemoteAddr()
			}
		} else if t.clientConn != nil {
			t.clientConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			n, err = t.clientConn.Read(buf)
			src = t.clientConn.RemoteAddr()
		} else {
			t.serverConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			n, src, err = t.serverConn.ReadFrom(buf)
		}
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			log.Println("iface: read:", err)
			continue
		}

		if n < segment.HeaderLength {
			continue
		}
		dstPort := binary.BigEndian.Uint16(buf[2:4])
		srcPort := binary.BigEndian.Uint16(buf[0:2])

		if !segment.VerifyChecksum(prependScratchPseudoHeader(buf[:n]), src, t.local, t.protocolID) {
			log.Println("iface: checksum verification failed, dropping frame")
			continue
		}

		seg, err := segment.Unmarshal(buf[:n], src, t.local)
		if err != nil {
			log.Println("iface: unmarshal:", err)
			continue
		}

		if t.demux == nil {
			continue
		}
		if sink := t.demux(src, srcPort, dstPort); sink != nil {
			sink.Input(seg)
		}
	}
}

// prependScratchPseudoHeader returns a buffer with PseudoHeaderLength
// zeroed scratch bytes in front of frame, the layout VerifyChecksum
// expects; it copies because the original buffer is reused across reads.
func prependScratchPseudoHeader(frame []byte) []byte {
	out := make([]byte, segment.PseudoHeaderLength+len(frame))
	copy(out[segment.PseudoHeaderLength:], frame)
	return out
}

func (t *IPTransport) Close() error {
	if t.clientConn != nil {
		return t.clientConn.Close()
	}
	if t.serverConn != nil {
		return t.serverConn.Close()
	}
	return nil
}
