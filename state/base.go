package state

import (
	"github.com/tcpcore/pseudotcp/pcperr"
	"github.com/tcpcore/pseudotcp/segment"
)

// State is one of the eleven TCP states. Variants are stateless; the
// five operations match spec.md section 4: open/send/receive/close are
// called from the owning goroutine on explicit API calls, abort is
// called on a hard teardown, and handle dispatches one inbound segment.
type State interface {
	Tag() Tag
	Open(c Conn, active bool) error
	Send(c Conn, buf []byte) (int, error)
	Receive(c Conn, into []byte) (int, error)
	Close(c Conn) error
	Abort(c Conn)
	Handle(c Conn, seg *segment.Segment) Result
}

// base supplies the fallback behavior spec.md section 4 describes for
// operations a state does not explicitly override: OPEN always rejects
// an already-live connection, SEND/RECEIVE/CLOSE reject once a state
// hasn't opened one, and ABORT is a no-op on a connection with nothing
// to tear down. Concrete states embed base and override only what
// differs.
type base struct{}

func (base) Open(c Conn, active bool) error { return pcperr.ErrAlreadyExists }

func (base) Send(c Conn, buf []byte) (int, error) { return 0, pcperr.ErrClosing }

func (base) Receive(c Conn, into []byte) (int, error) { return 0, pcperr.ErrClosing }

func (base) Close(c Conn) error { return pcperr.ErrClosing }

func (base) Abort(c Conn) {}
