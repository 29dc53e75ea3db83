package segment

import (
	"net"
	"testing"

	"github.com/tcpcore/pseudotcp/tcb"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	src := &net.IPAddr{IP: net.ParseIP("127.0.0.2")}
	dst := &net.IPAddr{IP: net.ParseIP("127.0.0.3")}

	out := &Outgoing{
		SrcAddr: src, DstAddr: dst,
		SrcPort: 7080, DstPort: 4000,
		ProtocolID: 6,
	}
	out.SetSeq(1000).SetAck(2000).SetFlags(FlagSYN | FlagACK).SetWindow(8192)
	out.SetOptions(Options{MSS: 1440})
	out.SetPayload([]byte("hello"))

	buf := make([]byte, 256)
	n, err := out.Marshal(buf)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if !VerifyChecksum(buf[:PseudoHeaderLength+n], src, dst, 6) {
		t.Fatal("checksum verification failed on round trip")
	}

	seg, err := Unmarshal(buf[PseudoHeaderLength:PseudoHeaderLength+n], src, dst)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if seg.Seq != 1000 || seg.Ack != 2000 {
		t.Errorf("got SEQ=%s ACK=%s, want 1000/2000", seg.Seq, seg.Ack)
	}
	if !seg.Isset(FlagSYN) || !seg.Isset(FlagACK) {
		t.Error("expected SYN and ACK flags set")
	}
	if string(seg.Payload) != "hello" {
		t.Errorf("got payload %q, want %q", seg.Payload, "hello")
	}
	if seg.Options.MSS != 1440 {
		t.Errorf("got MSS %d, want 1440", seg.Options.MSS)
	}
}

func TestVerifyChecksumDetectsCorruption(t *testing.T) {
	src := &net.IPAddr{IP: net.ParseIP("127.0.0.2")}
	dst := &net.IPAddr{IP: net.ParseIP("127.0.0.3")}
	out := &Outgoing{SrcAddr: src, DstAddr: dst, SrcPort: 1, DstPort: 2, ProtocolID: 6}
	out.SetSeq(tcb.Seq(1)).SetAck(tcb.Seq(2)).SetFlags(FlagACK)

	buf := make([]byte, 256)
	n, err := out.Marshal(buf)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	buf[PseudoHeaderLength+4] ^= 0xFF // corrupt the sequence number field

	if VerifyChecksum(buf[:PseudoHeaderLength+n], src, dst, 6) {
		t.Fatal("expected checksum verification to fail on corrupted frame")
	}
}

func TestUnknownOptionsAreTolerated(t *testing.T) {
	// A made-up option kind 99 with length 4, followed by an MSS option,
	// must not prevent the MSS option from being parsed.
	raw := []byte{99, 4, 0, 0, optKindMSS, 4, 0x05, 0xA0}
	opt := parseOptions(raw)
	if opt.MSS != 0x05A0 {
		t.Errorf("got MSS %d, want %d", opt.MSS, 0x05A0)
	}
}
