// Command echoserver is a test harness: it listens for connections and
// echoes back whatever it reads, the same role as the teacher's
// test/echoserver but driven through package engine instead of lib.PcpCore.
package main

import (
	"flag"
	"log"
	"net"
	"time"

	rs "github.com/Clouded-Sabre/rawsocket/lib"

	"github.com/tcpcore/pseudotcp/config"
	"github.com/tcpcore/pseudotcp/conn"
	"github.com/tcpcore/pseudotcp/engine"
	"github.com/tcpcore/pseudotcp/state"
)

func main() {
	serviceIP := flag.String("serviceIP", "127.0.0.2", "service IP address to listen on")
	port := flag.Int("port", 8901, "service port")
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.ReadConfig(*configPath)
	if err != nil {
		log.Fatalln("configuration file error:", err)
	}

	localIP, err := net.ResolveIPAddr("ip4", *serviceIP)
	if err != nil {
		log.Fatalln("resolve service IP:", err)
	}

	rscore, err := rs.NewRSCore(rs.NewDefaultRsConfig())
	if err != nil {
		log.Fatalln("failed to create rawsocket core:", err)
	}
	defer rscore.Close()

	stack, err := engine.New(cfg, localIP, &rscore)
	if err != nil {
		log.Fatalln("engine init:", err)
	}
	defer stack.Close()

	l, err := stack.Listen(uint16(*port), conn.Callbacks{
		SignalDisconnect: func(c *conn.Connection, cause state.DisconnectCause) {
			log.Printf("connection from %s closed: %s\n", c.RemoteAddr(), cause)
		},
	})
	if err != nil {
		log.Fatalln("listen:", err)
	}
	defer l.Close()

	log.Printf("echo server listening on %s:%d\n", *serviceIP, *port)

	for {
		c, err := l.Accept()
		if err != nil {
			log.Println("accept error:", err)
			continue
		}
		log.Printf("new connection from %s\n", c.RemoteAddr())
		go handleConn(c, cfg.PreferredMSS)
	}
}

func handleConn(c *conn.Connection, mss int) {
	defer c.Close()
	buf := make([]byte, mss)
	for {
		n, err := c.Receive(buf)
		if err != nil {
			log.Println("receive error:", err)
			return
		}
		if n == 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		log.Printf("echo server got: %s", string(buf[:n]))
		if _, err := c.Send(buf[:n]); err != nil {
			log.Println("send error:", err)
			return
		}
	}
}
