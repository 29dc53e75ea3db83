// Package filter manages OS packet-filter rules that suppress the RST
// the kernel's own TCP/IP stack would otherwise send for a port our
// raw-socket connections own: the kernel never sees the handshake, so
// it treats every inbound segment as belonging to no socket and resets
// it unless the firewall is told to drop those RSTs for us.
//
// UDP ICMP-unreachable suppression is dropped from the teacher's
// original interface: this stack is TCP-only.
package filter

// Filter installs and removes the RST-suppression rule for one
// (addr, port) pair. Implementations are OS-specific (iptables on
// Linux, pf on macOS, WinDivert on Windows) and are selected at build
// time by NewFilter.
type Filter interface {
	// AddTcpClientFiltering drops outbound RSTs this host's kernel
	// would send toward dstAddr:dstPort for a connection it doesn't
	// know about.
	AddTcpClientFiltering(dstAddr string, dstPort int) error
	RemoveTcpClientFiltering(dstAddr string, dstPort int) error

	// AddTcpServerFiltering drops outbound RSTs this host's kernel
	// would send from a listening srcAddr:srcPort it doesn't know
	// about.
	AddTcpServerFiltering(srcAddr string, srcPort int) error
	RemoveTcpServerFiltering(srcAddr string, srcPort int) error

	// FinishFiltering flushes every rule this Filter instance added.
	FinishFiltering() error
}
