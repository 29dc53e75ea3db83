// Package poolsupport wraps github.com/Clouded-Sabre/ringpool so the
// outbound transmit path stages each marshaled frame in a reused pool
// buffer. The receive and retransmission queues do not use the pool.
package poolsupport

import (
	"fmt"

	rp "github.com/Clouded-Sabre/ringpool/lib"
)

var emptySlice []byte

// Payload is the ring pool element type: a reusable byte buffer sized to
// the configured MSS plus a maximal TCP header.
type Payload struct {
	buf []byte
	n   int
}

// NewPayload is the ring pool's element factory; params[0] is unused
// (ringpool's factory signature takes it for element-specific sizing,
// but every payload here is sized from the preferred MSS the pool itself
// was created with).
func NewPayload(params ...interface{}) rp.DataInterface {
	size := bufferLength
	if len(emptySlice) != size {
		emptySlice = make([]byte, size)
	}
	return &Payload{buf: make([]byte, size)}
}

func (p *Payload) SetContent(s string) {
	copy(p.buf, s)
	p.n = len(s)
}

func (p *Payload) Reset() {
	copy(p.buf, emptySlice)
	p.n = 0
}

func (p *Payload) PrintContent() {
	fmt.Println("payload:", string(p.buf[:p.n]))
}

func (p *Payload) Copy(src []byte) error {
	if len(src) > len(p.buf) {
		return fmt.Errorf("poolsupport: payload of %d bytes exceeds buffer capacity %d", len(src), len(p.buf))
	}
	copy(p.buf, src)
	p.n = len(src)
	return nil
}

func (p *Payload) GetSlice() []byte { return p.buf[:p.n] }

var bufferLength = 65536

// Pool wraps a ring pool of Payload buffers with a narrower surface the
// rest of the module actually needs.
type Pool struct {
	ring *rp.RingPool
}

// New creates a ring pool of size elements, each able to hold a frame of
// up to preferredMSS payload bytes plus a 60-byte TCP header (20 fixed,
// 40 options); buffers never grow, so Copy rejects anything larger. It
// matches the teacher's NewRingPool(name, size, factory, preferredMSS)
// signature.
func New(name string, size int, preferredMSS int) *Pool {
	if preferredMSS > 0 {
		bufferLength = preferredMSS + 60
	}
	return &Pool{ring: rp.NewRingPool(name, size, NewPayload, preferredMSS)}
}

// SetDebug toggles the ring pool's verbose logging.
func (p *Pool) SetDebug(on bool) { p.ring.Debug = on }

// Get acquires a pooled element. Callers must Put it back once done.
func (p *Pool) Get() *rp.Element { return p.ring.GetElement() }

// Put returns an element to the pool for reuse.
func (p *Pool) Put(e *rp.Element) { p.ring.ReturnElement(e) }

// PayloadOf extracts the Payload data carried by a pool element.
func PayloadOf(e *rp.Element) *Payload { return e.Data.(*Payload) }
