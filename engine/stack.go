// Package engine is the top-level entry point a caller embeds: it plays
// the role of the teacher's lib.PcpCore, owning the payload pool, the
// RST-suppression filter, the ephemeral port pool, and the demux table
// that routes every inbound segment from one shared iface.IPTransport to
// the Connection that owns it. Grounded on lib/pcpcore.go's
// NewPcpCore/DialPcp/ListenPcp/Close.
package engine

import (
	"fmt"
	"log"
	"net"
	"sync"

	rs "github.com/Clouded-Sabre/rawsocket/lib"

	"github.com/tcpcore/pseudotcp/config"
	"github.com/tcpcore/pseudotcp/conn"
	"github.com/tcpcore/pseudotcp/filter"
	"github.com/tcpcore/pseudotcp/iface"
	"github.com/tcpcore/pseudotcp/poolsupport"
)

// connKey identifies one Connection by its four-tuple.
type connKey struct {
	remoteIP   string
	remotePort uint16
	localPort  uint16
}

// Stack is one local IP's worth of raw-socket transport, shared by every
// Connection dialed from or listening on it - the same "one
// PcpProtocolConnection per local IP" arrangement as the teacher's
// PcpCore.protoConnectionMap entries.
type Stack struct {
	cfg    *config.Config
	pool   *poolsupport.Pool
	rscore *rs.RSCore
	filter filter.Filter
	ports  *portPool

	localIP   *net.IPAddr
	transport *iface.IPTransport
	stop      chan struct{}

	mu        sync.Mutex
	conns     map[connKey]*conn.Connection
	listeners map[uint16]*Listener
	closed    bool
}

// New builds a Stack bound to localIP. rscore must already be
// constructed by the caller via rs.NewDefaultRsConfig/rs.NewRSCore: there is
// exactly one raw-socket permission/lock per system, so just as the
// teacher's PcpCore never constructs its own rs.RSCore, New only ever
// calls Close on the one handed to it, at Stack.Close.
func New(cfg *config.Config, localIP *net.IPAddr, rscore *rs.RSCore) (*Stack, error) {
	if rscore == nil {
		return nil, fmt.Errorf("engine: rscore must not be nil")
	}

	f, err := filter.NewFilter("pseudotcp")
	if err != nil {
		log.Println("engine: RST-suppression filter unavailable:", err)
		f = nil
	}

	pool := poolsupport.New("pseudotcp: ", cfg.PayloadPoolSize, cfg.PreferredMSS)
	pool.SetDebug(cfg.PoolDebug)

	return &Stack{
		cfg:       cfg,
		pool:      pool,
		rscore:    rscore,
		filter:    f,
		ports:     newPortPool(cfg.ClientPortLower, cfg.ClientPortUpper),
		localIP:   localIP,
		stop:      make(chan struct{}),
		conns:     make(map[connKey]*conn.Connection),
		listeners: make(map[uint16]*Listener),
	}, nil
}

// bind lazily opens the one shared raw IP socket this Stack sends and
// receives every segment over, the way the teacher's PcpProtocolConnection
// is created once per local IP and reused by every Service/Connection.
func (s *Stack) bind() (*iface.IPTransport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transport != nil {
		return s.transport, nil
	}

	t, err := iface.ListenIP(s.cfg.ProtocolID, s.localIP)
	if err != nil {
		return nil, err
	}
	t.SetDemux(s.route)
	s.transport = t
	go t.Serve(s.stop)
	return t, nil
}

// route is the iface.IPTransport demux callback: an established
// Connection's four-tuple takes priority over a Listener's bare local
// port so a listener's own handshake replies are delivered to the
// spawned Connection rather than looped back into Listen.
func (s *Stack) route(src net.Addr, srcPort, dstPort uint16) iface.Sink {
	ip, err := addrIP(src)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := connKey{remoteIP: ip.String(), remotePort: srcPort, localPort: dstPort}
	if c, ok := s.conns[key]; ok {
		return c
	}
	if l, ok := s.listeners[dstPort]; ok {
		return l.current()
	}
	return nil
}

func addrIP(a net.Addr) (net.IP, error) {
	switch v := a.(type) {
	case *net.IPAddr:
		return v.IP, nil
	case *net.TCPAddr:
		return v.IP, nil
	default:
		return nil, fmt.Errorf("engine: unsupported address type %T", a)
	}
}

// Dial opens an active connection to remoteIP:remotePort, allocating an
// ephemeral local port the way lib.PcpCore.DialPcp does via PortPool.
func (s *Stack) Dial(remoteIP string, remotePort uint16, cb conn.Callbacks) (*conn.Connection, error) {
	if _, err := s.bind(); err != nil {
		return nil, err
	}
	rIP, err := net.ResolveIPAddr("ip4", remoteIP)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve %s: %w", remoteIP, err)
	}

	localPort, err := s.ports.allocate()
	if err != nil {
		return nil, err
	}

	c := conn.New(s.transport, s.pool, s.cfg, s.localIP, rIP, localPort, remotePort, cb)

	s.mu.Lock()
	s.conns[connKey{remoteIP: rIP.IP.String(), remotePort: remotePort, localPort: localPort}] = c
	s.mu.Unlock()

	if s.filter != nil {
		if err := s.filter.AddTcpClientFiltering(rIP.IP.String(), int(remotePort)); err != nil {
			log.Println("engine: RST filtering not installed:", err)
		}
	}

	go s.reap(c, connKey{remoteIP: rIP.IP.String(), remotePort: remotePort, localPort: localPort}, localPort, true)

	if err := c.Open(true); err != nil {
		return nil, err
	}
	return c, nil
}

// reap removes a terminated Connection from the routing table and, for
// Dial'd connections, returns its ephemeral port to the pool.
func (s *Stack) reap(c *conn.Connection, key connKey, localPort uint16, releasePort bool) {
	<-c.Done()
	s.mu.Lock()
	delete(s.conns, key)
	s.mu.Unlock()
	if releasePort {
		s.ports.release(localPort)
	}
}

func (s *Stack) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*conn.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	close(s.stop)
	for _, c := range conns {
		c.Abort()
	}

	if s.transport != nil {
		s.transport.Close()
	}
	if s.filter != nil {
		s.filter.FinishFiltering()
	}
	if s.rscore != nil {
		return (*s.rscore).Close()
	}
	return nil
}
