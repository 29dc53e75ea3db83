package engine

import (
	"fmt"
	"log"
	"sync"

	"github.com/tcpcore/pseudotcp/conn"
)

// Listener owns one local port. Package state's Connection models a
// single object transitioning Listen->SynReceived->Established rather
// than spawning a child per handshake, so a completed handshake retires
// the listening Connection; Listener replaces it with a fresh one in
// Listen so the port keeps accepting, the way lib.Service.Accept moves a
// completed temp connection out of tempConnMap and keeps the service's
// InputChannel open for the next one.
type Listener struct {
	stack     *Stack
	localPort uint16
	userCb    conn.Callbacks

	mu  sync.Mutex
	cur *conn.Connection

	ready chan *conn.Connection
	done  chan struct{}
}

// Listen starts accepting passive connections on localPort.
func (s *Stack) Listen(localPort uint16, cb conn.Callbacks) (*Listener, error) {
	if _, err := s.bind(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, exists := s.listeners[localPort]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("engine: port %d already listening", localPort)
	}
	s.mu.Unlock()

	l := &Listener{
		stack:     s,
		localPort: localPort,
		userCb:    cb,
		ready:     make(chan *conn.Connection, 1),
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	s.listeners[localPort] = l
	s.mu.Unlock()

	if s.filter != nil {
		if err := s.filter.AddTcpServerFiltering(s.localIP.IP.String(), int(localPort)); err != nil {
			log.Println("engine: RST filtering not installed:", err)
		}
	}

	if err := l.spawn(); err != nil {
		s.mu.Lock()
		delete(s.listeners, localPort)
		s.mu.Unlock()
		return nil, err
	}
	return l, nil
}

// current is read by Stack.route to find the Connection presently in
// Listen (or mid-handshake) state for this port.
func (l *Listener) current() *conn.Connection {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cur
}

// spawn creates a fresh passive Connection and opens it into Listen.
func (l *Listener) spawn() error {
	cb := conn.Callbacks{
		SignalAccept: l.userCb.SignalAccept,
		SignalConnect: func(c *conn.Connection) {
			if l.userCb.SignalConnect != nil {
				l.userCb.SignalConnect(c)
			}
			l.handoff(c)
		},
		SignalDisconnect: l.userCb.SignalDisconnect,
		SignalError:      l.userCb.SignalError,
	}

	c := conn.New(l.stack.transport, l.stack.pool, l.stack.cfg, l.stack.localIP, nil, l.localPort, 0, cb)
	l.mu.Lock()
	l.cur = c
	l.mu.Unlock()

	return c.Open(false)
}

// handoff is called once the listening Connection finishes its
// handshake: it registers the now-Established Connection under its real
// four-tuple, delivers it to Accept, and spins up a replacement listener.
func (l *Listener) handoff(c *conn.Connection) {
	ip, err := addrIP(c.Remote())
	if err != nil {
		log.Println("engine: accepted connection has no usable remote address:", err)
		return
	}

	key := connKey{remoteIP: ip.String(), remotePort: c.RemotePort(), localPort: l.localPort}

	l.stack.mu.Lock()
	l.stack.conns[key] = c
	l.stack.mu.Unlock()
	go l.stack.reap(c, key, 0, false)

	select {
	case l.ready <- c:
	default:
		log.Println("engine: accept backlog full, dropping ready connection notification")
	}

	if err := l.spawn(); err != nil {
		log.Println("engine: failed to respawn listener:", err)
	}
}

// Accept blocks until a connection completes its handshake.
func (l *Listener) Accept() (*conn.Connection, error) {
	select {
	case c := <-l.ready:
		return c, nil
	case <-l.done:
		return nil, fmt.Errorf("engine: listener closed")
	}
}

func (l *Listener) Close() error {
	l.stack.mu.Lock()
	delete(l.stack.listeners, l.localPort)
	l.stack.mu.Unlock()

	select {
	case <-l.done:
	default:
		close(l.done)
	}
	if c := l.current(); c != nil {
		c.Abort()
	}
	return nil
}
