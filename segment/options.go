package segment

import "encoding/binary"

// TCP option kinds this stack recognizes on the wire. Only MSS is acted
// on; window scale, SACK-permitted and timestamp are parsed and carried so
// unrelated options never corrupt option-list walking, but per spec
// Non-goals they are not negotiated or acted upon here.
const (
	optKindEnd       = 0
	optKindNOP       = 1
	optKindMSS       = 2
	optKindWndScale  = 3
	optKindSackPerm  = 4
	optKindSack      = 5
	optKindTimestamp = 8
)

// Options carries the parsed TCP options of a segment, or the ones to
// attach to an outgoing one. Only MSS round-trips through the state
// machine; the rest are tolerated per spec.md section 6.
type Options struct {
	MSS              uint16
	WindowScaleShift uint8
	SackPermitted    bool
	TimestampPresent bool
	Timestamp        uint32
	TimestampEcho    uint32
}

// marshalOptions writes the enabled options into dst and returns the
// number of bytes written, rounded up to a 4-byte boundary with NOP
// padding the way RFC 793 requires TCP options to be aligned.
func marshalOptions(dst []byte, opt Options) int {
	n := 0
	if opt.MSS > 0 {
		dst[n] = optKindMSS
		dst[n+1] = 4
		binary.BigEndian.PutUint16(dst[n+2:n+4], opt.MSS)
		n += 4
	}
	if opt.WindowScaleShift > 0 {
		dst[n] = optKindWndScale
		dst[n+1] = 3
		dst[n+2] = opt.WindowScaleShift
		n += 3
	}
	if opt.SackPermitted {
		dst[n] = optKindSackPerm
		dst[n+1] = 2
		n += 2
	}
	if opt.TimestampPresent {
		dst[n] = optKindTimestamp
		dst[n+1] = 10
		binary.BigEndian.PutUint32(dst[n+2:n+6], opt.Timestamp)
		binary.BigEndian.PutUint32(dst[n+6:n+10], opt.TimestampEcho)
		n += 10
	}
	for n%4 != 0 {
		dst[n] = optKindNOP
		n++
	}
	return n
}

// parseOptions walks a TCP options byte range, skipping kinds it does not
// recognize (per spec.md section 6: "Unknown options are tolerated and
// skipped").
func parseOptions(raw []byte) Options {
	var opt Options
	i := 0
	for i < len(raw) {
		kind := raw[i]
		switch kind {
		case optKindEnd:
			return opt
		case optKindNOP:
			i++
			continue
		}
		if i+1 >= len(raw) {
			return opt
		}
		length := int(raw[i+1])
		if length < 2 || i+length > len(raw) {
			return opt
		}
		switch kind {
		case optKindMSS:
			if length == 4 {
				opt.MSS = binary.BigEndian.Uint16(raw[i+2 : i+4])
			}
		case optKindWndScale:
			if length == 3 {
				opt.WindowScaleShift = raw[i+2]
			}
		case optKindSackPerm:
			opt.SackPermitted = true
		case optKindTimestamp:
			if length == 10 {
				opt.TimestampPresent = true
				opt.Timestamp = binary.BigEndian.Uint32(raw[i+2 : i+6])
				opt.TimestampEcho = binary.BigEndian.Uint32(raw[i+6 : i+10])
			}
		}
		i += length
	}
	return opt
}

// byteLen reports how many header bytes opt would occupy once padded.
func (opt Options) byteLen() int {
	n := 0
	if opt.MSS > 0 {
		n += 4
	}
	if opt.WindowScaleShift > 0 {
		n += 3
	}
	if opt.SackPermitted {
		n += 2
	}
	if opt.TimestampPresent {
		n += 10
	}
	if n%4 != 0 {
		n += 4 - n%4
	}
	return n
}
