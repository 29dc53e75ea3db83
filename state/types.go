// Package state implements the eleven-state TCP dispatcher: the
// check_seq/check_ack/process_segment/process_fin/send_reset/
// unallowed_syn_reset common procedures and one file per state variant.
// State variants are stateless singletons; all per-connection data lives
// on the Conn a caller passes in.
package state

// Tag identifies one of the eleven TCP states. It replaces string/type
// comparison of state singletons (e.g. distinguishing SynReceived's RST
// origin) with a plain comparable value.
type Tag int

const (
	Closed Tag = iota
	Listen
	SynSent
	SynReceived
	Established
	FinWait1
	FinWait2
	CloseWait
	Closing
	LastAck
	TimeWait
)

func (t Tag) String() string {
	switch t {
	case Closed:
		return "CLOSED"
	case Listen:
		return "LISTEN"
	case SynSent:
		return "SYN-SENT"
	case SynReceived:
		return "SYN-RECEIVED"
	case Established:
		return "ESTABLISHED"
	case FinWait1:
		return "FIN-WAIT-1"
	case FinWait2:
		return "FIN-WAIT-2"
	case CloseWait:
		return "CLOSE-WAIT"
	case Closing:
		return "CLOSING"
	case LastAck:
		return "LAST-ACK"
	case TimeWait:
		return "TIME-WAIT"
	default:
		return "UNKNOWN"
	}
}

// Result is what Handle returns to tell the caller whether the connection
// should remain open, be retired immediately, or begin an orderly close.
type Result int

const (
	// OK: remain in the (possibly new) state, no teardown.
	OK Result = iota
	// Close: an orderly close was just initiated (e.g. a FIN was
	// processed and we moved to CloseWait) - the connection remains
	// live but the owner may want to react (e.g. stop accepting writes).
	Close
	// ResultClosed: the connection is done; the owner should retire it.
	ResultClosed
)

func (r Result) String() string {
	switch r {
	case OK:
		return "OK"
	case Close:
		return "CLOSE"
	case ResultClosed:
		return "CLOSED"
	default:
		return "?"
	}
}

// DisconnectCause classifies why signal_disconnect fired.
type DisconnectCause int

const (
	DisconnectClosing DisconnectCause = iota
	DisconnectReset
	DisconnectRefused
)

func (c DisconnectCause) String() string {
	switch c {
	case DisconnectClosing:
		return "CLOSING"
	case DisconnectReset:
		return "RESET"
	case DisconnectRefused:
		return "REFUSED"
	default:
		return "?"
	}
}
