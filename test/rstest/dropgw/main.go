// Command dropgw is a drop-simulating gateway: it accepts connections and
// relays each one to a target address, randomly dropping a fraction of
// the bytes in both directions, the same role as the teacher's
// test/droptestgw but driven through package engine instead of lib.PcpCore.
package main

import (
	"errors"
	"flag"
	"io"
	"log"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	rs "github.com/Clouded-Sabre/rawsocket/lib"

	"github.com/tcpcore/pseudotcp/config"
	"github.com/tcpcore/pseudotcp/conn"
	"github.com/tcpcore/pseudotcp/engine"
)

var (
	gatewayIP   string
	gatewayPort int
	targetAddr  string
	dropRate    float64
)

func init() {
	flag.StringVar(&gatewayIP, "ip", "127.0.0.2", "gateway IP address")
	flag.IntVar(&gatewayPort, "port", 8901, "gateway port number")
	flag.StringVar(&targetAddr, "target", "127.0.0.1:80", "target server address")
	flag.Float64Var(&dropRate, "droprate", 0.1, "packet drop rate (0.0-1.0)")
	flag.Parse()
}

// connReader/connWriter adapt Connection's non-blocking Send/Receive to
// io.Reader/io.Writer so copyAndDrop can relay between the client and
// target pseudotcp legs as plain byte streams.
type connReader struct{ c *conn.Connection }

func (r connReader) Read(p []byte) (int, error) {
	for {
		n, err := r.c.Receive(p)
		if err != nil {
			return n, err
		}
		if n > 0 {
			return n, nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type connWriter struct{ c *conn.Connection }

func (w connWriter) Write(p []byte) (int, error) { return w.c.Send(p) }

// copyAndDrop reads from src and writes to dst, randomly dropping data
// based on rate instead of forwarding it.
func copyAndDrop(dst io.Writer, src io.Reader, rate float64, rng *rand.Rand, direction string) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		nr, er := src.Read(buf)
		if nr > 0 {
			if rng.Float64() < rate {
				log.Printf("dropped packet in %s direction (size: %d)\n", direction, nr)
			} else {
				nw, ew := dst.Write(buf[:nr])
				if ew != nil {
					return written, ew
				}
				written += int64(nw)
				if nr != nw {
					return written, io.ErrShortWrite
				}
			}
		}
		if er != nil {
			if er == io.EOF {
				return written, nil
			}
			return written, er
		}
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.ReadConfig(*configPath)
	if err != nil {
		log.Fatalln("configuration file error:", err)
	}

	localIP, err := net.ResolveIPAddr("ip4", gatewayIP)
	if err != nil {
		log.Fatalln("resolve gateway IP:", err)
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

	l, err := stack.Listen(uint16(gatewayPort), conn.Callbacks{})
	if err != nil {
		log.Fatalln("listen:", err)
	}
	defer l.Close()
	log.Printf("gateway started at %s:%d (drop rate: %.1f%%)", gatewayIP, gatewayPort, dropRate*100)

	host, portStr, err := net.SplitHostPort(targetAddr)
	if err != nil {
		log.Fatalln("invalid target address:", err)
	}
	targetPortU, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		log.Fatalln("invalid target port:", err)
	}
	targetPort := uint16(targetPortU)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	globalCloseChan := make(chan struct{})

	go func() {
		<-signalChan
		log.Println("received shutdown signal, closing gateway...")
		close(globalCloseChan)
		l.Close()
	}()

	var wg sync.WaitGroup
	for {
		c, err := l.Accept()
		if err != nil {
			select {
			case <-globalCloseChan:
				log.Println("listener closed, gateway shutting down.")
			default:
				log.Println("accept error:", err)
			}
			break
		}
		log.Println("new client connected:", c.RemoteAddr())
		wg.Add(1)
		go handleConnection(c, stack, host, targetPort, globalCloseChan, &wg)
	}
	wg.Wait()
	log.Println("all connections closed. gateway exiting...")
}

func handleConnection(client *conn.Connection, stack *engine.Stack, targetIP string, targetPort uint16, globalCloseChan chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		log.Printf("closing connection from %s\n", client.RemoteAddr())
		client.Close()
	}()

	server, err := stack.Dial(targetIP, targetPort, conn.Callbacks{})
	if err != nil {
		log.Printf("error connecting to target %s:%d: %v\n", targetIP, targetPort, err)
		return
	}
	defer server.Close()
	log.Printf("connected to target %s:%d for client %s\n", targetIP, targetPort, client.RemoteAddr())

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	done := make(chan struct{})
	var fwdWg sync.WaitGroup
	fwdWg.Add(2)

	go func() {
		defer fwdWg.Done()
		_, err := copyAndDrop(connWriter{server}, connReader{client}, dropRate, rng, "client-to-server")
		if err != nil && !errors.Is(err, io.EOF) {
			log.Printf("client-to-server forwarding error: %v\n", err)
		}
	}()
	go func() {
		defer fwdWg.Done()
		_, err := copyAndDrop(connWriter{client}, connReader{server}, dropRate, rng, "server-to-client")
		if err != nil && !errors.Is(err, io.EOF) {
			log.Printf("server-to-client forwarding error: %v\n", err)
		}
	}()
	go func() {
		fwdWg.Wait()
		close(done)
	}()

	select {
	case <-globalCloseChan:
	case <-done:
	}
}
