// Command echoclient dials an echoserver and verifies every message it
// sends comes back unchanged, the same role as the teacher's
// test/echoclient but driven through package engine instead of lib.PcpCore.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	rs "github.com/Clouded-Sabre/rawsocket/lib"

	"github.com/tcpcore/pseudotcp/config"
	"github.com/tcpcore/pseudotcp/conn"
	"github.com/tcpcore/pseudotcp/engine"
)

func main() {
	sourceIP := flag.String("sourceIP", "127.0.0.4", "source IP address")
	serverIP := flag.String("serverIP", "127.0.0.2", "server IP address")
	serverPort := flag.Int("serverPort", 8901, "server port")
	interval := flag.Duration("interval", 500*time.Millisecond, "interval between packets")
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.ReadConfig(*configPath)
	if err != nil {
		log.Fatalln("configuration file error:", err)
	}

	localIP, err := net.ResolveIPAddr("ip4", *sourceIP)
	if err != nil {
		log.Fatalln("resolve source IP:", err)
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

	c, err := stack.Dial(*serverIP, uint16(*serverPort), conn.Callbacks{})
	if err != nil {
		log.Fatalln("dial:", err)
	}
	defer c.Close()
	fmt.Println("echo client connected to server!")
	fmt.Printf("sending packets at %v interval (press Ctrl+C to exit)...\n", *interval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	buf := make([]byte, cfg.PreferredMSS)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	packetCount, successCount, failureCount := 0, 0, 0

	for {
		select {
		case <-sigChan:
			goto shutdown
		case <-ticker.C:
			packetCount++
			message := fmt.Sprintf("echo message %d", packetCount)

			if _, err := c.Send([]byte(message)); err != nil {
				log.Printf("[%d] send error: %v\n", packetCount, err)
				failureCount++
				continue
			}

			n, err := waitForReply(c, buf, *interval+100*time.Millisecond)
			if err != nil {
				log.Printf("[%d] receive error: %v\n", packetCount, err)
				failureCount++
				continue
			}

			response := string(buf[:n])
			if response == message {
				log.Printf("[%d] echo match: %s\n", packetCount, response)
				successCount++
			} else {
				log.Printf("[%d] echo mismatch, expected %q got %q\n", packetCount, message, response)
				failureCount++
			}
		}
	}

shutdown:
	fmt.Printf("\n=== echo client statistics ===\n")
	fmt.Printf("total packets sent: %d\n", packetCount)
	fmt.Printf("successful echoes: %d\n", successCount)
	fmt.Printf("failed echoes: %d\n", failureCount)
}

// waitForReply polls Receive (non-blocking by design, see rxqueue.ReadQueue)
// until data arrives or deadline elapses.
func waitForReply(c *conn.Connection, buf []byte, deadline time.Duration) (int, error) {
	giveUp := time.Now().Add(deadline)
	for {
		n, err := c.Receive(buf)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return n, nil
		}
		if time.Now().After(giveUp) {
			return 0, fmt.Errorf("read deadline exceeded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
