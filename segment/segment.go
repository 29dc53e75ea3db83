// Package segment provides the wire-level view of a TCP segment: an
// immutable inbound Segment and a mutable Outgoing builder, plus
// marshal/unmarshal and checksum helpers. It is the state machine's only
// window onto the wire; everything above this package works in terms of
// tcb.Seq and Options.
package segment

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/tcpcore/pseudotcp/tcb"
)

const (
	HeaderLength       = 20 // fixed TCP header, options excluded
	OptionsMaxLength   = 40
	PseudoHeaderLength = 12
)

// Segment is an immutable view over a parsed inbound TCP segment. The
// state machine never mutates a Segment; outbound packets are built
// separately via Outgoing.
type Segment struct {
	SrcAddr, DstAddr net.Addr
	SrcPort, DstPort uint16
	Seq              tcb.Seq
	Ack              tcb.Seq
	Window           uint32
	Flags            Flag
	Options          Options
	Payload          []byte
}

// Isset reports whether the given control bit is set.
func (s *Segment) Isset(f Flag) bool { return s.Flags.Has(f) }

// HasData reports whether the segment carries any payload bytes.
func (s *Segment) HasData() bool { return len(s.Payload) > 0 }

// DataLength is the number of payload bytes, i.e. L in the check_seq table.
func (s *Segment) DataLength() uint32 { return uint32(len(s.Payload)) }

func (s *Segment) Data() []byte { return s.Payload }

func (s *Segment) String() string {
	return fmt.Sprintf("SEG[%s SEQ=%s ACK=%s WIN=%d LEN=%d]", s.Flags, s.Seq, s.Ack, s.Window, len(s.Payload))
}

// Outgoing is a mutable builder for a packet the state machine wants
// transmitted. It is obtained from conn.Connection via NewOutgoingPacket and
// handed to Transmit.
type Outgoing struct {
	SrcAddr, DstAddr net.Addr
	SrcPort, DstPort uint16
	seq              tcb.Seq
	ack              tcb.Seq
	flags            Flag
	window           uint32
	options          Options
	payload          []byte
	ProtocolID       uint8
	// KeepAlive marks a zero-length probe that must not be placed on the
	// retransmission queue.
	KeepAlive bool
}

func (o *Outgoing) SetSeq(seq tcb.Seq) *Outgoing { o.seq = seq; return o }
func (o *Outgoing) SetAck(ack tcb.Seq) *Outgoing { o.ack = ack; return o }
func (o *Outgoing) SetFlag(f Flag) *Outgoing     { o.flags |= f; return o }
func (o *Outgoing) SetFlags(f Flag) *Outgoing    { o.flags = f; return o }
func (o *Outgoing) SetWindow(w uint32) *Outgoing { o.window = w; return o }
func (o *Outgoing) SetOptions(opt Options) *Outgoing {
	o.options = opt
	return o
}
func (o *Outgoing) SetPayload(b []byte) *Outgoing { o.payload = b; return o }

func (o *Outgoing) Seq() tcb.Seq    { return o.seq }
func (o *Outgoing) Ack() tcb.Seq    { return o.ack }
func (o *Outgoing) Flags() Flag     { return o.flags }
func (o *Outgoing) Payload() []byte { return o.payload }

// Marshal writes the TCP segment (pseudo-header included, for checksumming)
// into buf and returns the length of the TCP frame (header+options+
// payload, pseudo-header excluded). buf must be at least PseudoHeaderLength
// bytes longer than the frame.
func (o *Outgoing) Marshal(buf []byte) (int, error) {
	optLen := o.options.byteLen()
	totalHeader := HeaderLength + optLen
	frameLen := totalHeader + len(o.payload)
	if frameLen+PseudoHeaderLength > len(buf) {
		return 0, fmt.Errorf("segment: buffer (%d) too small for frame (%d)+pseudo-header", len(buf), frameLen)
	}

	frame := buf[PseudoHeaderLength:]
	binary.BigEndian.PutUint16(frame[0:2], o.SrcPort)
	binary.BigEndian.PutUint16(frame[2:4], o.DstPort)
	binary.BigEndian.PutUint32(frame[4:8], uint32(o.seq))
	binary.BigEndian.PutUint32(frame[8:12], uint32(o.ack))
	frame[12] = uint8(totalHeader/4) << 4
	frame[13] = uint8(o.flags)
	binary.BigEndian.PutUint16(frame[14:16], clampWindow(o.window))
	binary.BigEndian.PutUint16(frame[16:18], 0) // checksum placeholder
	binary.BigEndian.PutUint16(frame[18:20], 0) // urgent pointer: unused

	marshalOptions(frame[HeaderLength:totalHeader], o.options)

	if len(o.payload) > 0 {
		copy(frame[totalHeader:], o.payload)
	}

	if err := assemblePseudoHeader(buf[:PseudoHeaderLength], o.SrcAddr, o.DstAddr, o.ProtocolID, uint16(frameLen)); err != nil {
		return 0, err
	}
	checksum := CalculateChecksum(buf[:PseudoHeaderLength+frameLen])
	binary.BigEndian.PutUint16(frame[16:18], checksum)

	return frameLen, nil
}

func clampWindow(w uint32) uint16 {
	if w > 0xFFFF {
		return 0xFFFF
	}
	return uint16(w)
}

// Unmarshal parses a TCP frame (header+options+payload, no pseudo-header)
// into a Segment.
func Unmarshal(data []byte, srcAddr, dstAddr net.Addr) (*Segment, error) {
	if len(data) < HeaderLength {
		return nil, fmt.Errorf("segment: frame length %d shorter than header", len(data))
	}
	seg := &Segment{SrcAddr: srcAddr, DstAddr: dstAddr}
	seg.SrcPort = binary.BigEndian.Uint16(data[0:2])
	seg.DstPort = binary.BigEndian.Uint16(data[2:4])
	seg.Seq = tcb.Seq(binary.BigEndian.Uint32(data[4:8]))
	seg.Ack = tcb.Seq(binary.BigEndian.Uint32(data[8:12]))

	dataOffset := (data[12] >> 4) * 4
	optLen := int(dataOffset) - HeaderLength
	if optLen < 0 {
		return nil, fmt.Errorf("segment: data offset implies negative options length")
	}
	seg.Flags = Flag(data[13])
	seg.Window = uint32(binary.BigEndian.Uint16(data[14:16]))

	if HeaderLength+optLen > len(data) {
		return nil, fmt.Errorf("segment: options length %d overruns frame", optLen)
	}
	seg.Options = parseOptions(data[HeaderLength : HeaderLength+optLen])

	if payload := data[HeaderLength+optLen:]; len(payload) > 0 {
		seg.Payload = append([]byte(nil), payload...)
	}
	return seg, nil
}

// assemblePseudoHeader writes the IP pseudo-header used in checksum
// calculation, matching RFC 793's pseudo-header layout.
func assemblePseudoHeader(buf []byte, srcAddr, dstAddr net.Addr, protocolID uint8, frameLen uint16) error {
	if len(buf) != PseudoHeaderLength {
		return fmt.Errorf("segment: pseudo-header buffer must be %d bytes", PseudoHeaderLength)
	}
	srcIP, err := addrToIPv4(srcAddr)
	if err != nil {
		return err
	}
	dstIP, err := addrToIPv4(dstAddr)
	if err != nil {
		return err
	}
	copy(buf[0:4], srcIP)
	copy(buf[4:8], dstIP)
	buf[8] = 0
	buf[9] = protocolID
	binary.BigEndian.PutUint16(buf[10:12], frameLen)
	return nil
}

func addrToIPv4(addr net.Addr) ([]byte, error) {
	var ip net.IP
	switch a := addr.(type) {
	case *net.IPAddr:
		ip = a.IP
	case *net.TCPAddr:
		ip = a.IP
	default:
		return nil, fmt.Errorf("segment: unsupported address type %T", addr)
	}
	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("segment: address %s is not IPv4", ip)
	}
	return v4, nil
}

// CalculateChecksum computes the one's-complement Internet checksum over
// buf (pseudo-header + TCP frame).
func CalculateChecksum(buf []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(buf); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(buf[i : i+2]))
	}
	if len(buf)%2 != 0 {
		sum += uint32(buf[len(buf)-1]) << 8
	}
	sum = (sum >> 16) + (sum & 0xFFFF)
	sum += sum >> 16
	return ^uint16(sum)
}

// VerifyChecksum recomputes the checksum of a received frame (with its
// PseudoHeaderLength-byte scratch area prefixed) and compares it to the
// value carried on the wire.
func VerifyChecksum(buf []byte, srcAddr, dstAddr net.Addr, protocolID uint8) bool {
	if len(buf) < HeaderLength+PseudoHeaderLength {
		return false
	}
	frame := buf[PseudoHeaderLength:]
	received := binary.BigEndian.Uint16(frame[16:18])
	binary.BigEndian.PutUint16(frame[16:18], 0)
	defer binary.BigEndian.PutUint16(frame[16:18], received)

	if err := assemblePseudoHeader(buf[:PseudoHeaderLength], srcAddr, dstAddr, protocolID, uint16(len(frame))); err != nil {
		return false
	}
	return CalculateChecksum(buf) == received
}
