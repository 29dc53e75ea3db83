package tcb

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// TCB holds the per-connection protocol variables from RFC 793 section 3.2,
// plus the bookkeeping RFC 5681 duplicate-ACK classification needs.
type TCB struct {
	// Send sequence variables.
	SndUna Seq // oldest unacknowledged sequence number
	SndNxt Seq // next sequence number to be sent
	SndWnd uint32
	SndWl1 Seq // seq number used for the last window update
	SndWl2 Seq // ack number used for the last window update
	ISS    Seq // initial send sequence number
	CWnd   uint32

	// Receive sequence variables.
	RcvNxt Seq
	RcvWnd uint32
	IRS    Seq // initial receive sequence number

	// MSS negotiated during the handshake (0 if none).
	MSS uint16

	// RFC 5681 duplicate-ACK bookkeeping: the greatest ack number seen
	// (condition d) and the window advertised on that ack (condition e).
	lastAck      Seq
	lastAdvWnd   uint32
	haveLastAck  bool
	OutstandingB uint32 // bytes outstanding (SND.NXT - SND.UNA at last check)
}

// GenerateISN produces a random initial sequence number. Production stacks
// usually derive ISNs from a clock plus connection-identity hash (RFC 793
// section 3.3); the state machine here only requires that ISNs vary, so a
// CSPRNG satisfies the contract without pulling in that policy.
func GenerateISN() (Seq, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("tcb: generate ISN: %w", err)
	}
	return Seq(binary.BigEndian.Uint32(buf[:])), nil
}

// Init seeds a fresh TCB for a new connection attempt: chooses an ISS,
// sets SND.UNA = SND.NXT = ISS, and seeds RCV.WND from rcvWnd.
func (t *TCB) Init(rcvWnd uint32) error {
	iss, err := GenerateISN()
	if err != nil {
		return err
	}
	t.ISS = iss
	t.SndUna = iss
	t.SndNxt = iss
	t.RcvWnd = rcvWnd
	t.haveLastAck = false
	return nil
}

// UpdateWindow applies the check_ack window-update guard: SND.WND is only
// advanced by segments at least as recent (in (SEQ,ACK) order) as the one
// that set it last.
func (t *TCB) UpdateWindow(segSeq, segAck Seq, segWin uint32) {
	if Less(t.SndWl1, segSeq) || (t.SndWl1 == segSeq && LessOrEqual(t.SndWl2, segAck)) {
		t.SndWnd = segWin
		t.SndWl1 = segSeq
		t.SndWl2 = segAck
	}
}

// IsDuplicateAck implements the RFC 5681 classification, conditions (a)-(e).
// outstanding is true if the sender has unacknowledged data at the time the
// ack arrives (condition a).
func (t *TCB) IsDuplicateAck(outstanding, hasData, hasSyn, hasFin bool, segAck Seq, segWin uint32) bool {
	if !outstanding || hasData || hasSyn || hasFin {
		return false
	}
	if !t.haveLastAck {
		return false
	}
	return segAck == t.lastAck && segWin == t.lastAdvWnd
}

// RecordAck stashes the greatest-seen ack and advertised window so later
// segments can be classified by IsDuplicateAck.
func (t *TCB) RecordAck(segAck Seq, segWin uint32) {
	t.lastAck = segAck
	t.lastAdvWnd = segWin
	t.haveLastAck = true
}

func (t *TCB) String() string {
	return fmt.Sprintf(
		"SND.UNA=%s SND.NXT=%s SND.WND=%d RCV.NXT=%s RCV.WND=%d ISS=%s IRS=%s",
		t.SndUna, t.SndNxt, t.SndWnd, t.RcvNxt, t.RcvWnd, t.ISS, t.IRS,
	)
}
