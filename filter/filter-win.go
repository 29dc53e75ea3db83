//go:build windows
// +build windows

package filter

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	divert "github.com/imgk/divert-go"
)

// filterImpl intercepts every TCP RST with WinDivert and silently
// drops the ones matching a registered (addr, port) rule, reinjecting
// everything else. The teacher's equivalent file named these methods
// AddAClientFilteringRule/AddAServerFilteringRule, which never actually
// satisfied the Filter interface; renamed here to match it.
type filterImpl struct {
	handle    *divert.Handle
	stopChan  chan struct{}
	isRunning bool
	ruleSet   map[string]bool
	mutex     sync.Mutex
}

func NewFilter(identifier string) (Filter, error) {
	return &filterImpl{
		ruleSet: make(map[string]bool),
	}, nil
}

func (f *filterImpl) AddTcpClientFiltering(dstAddr string, dstPort int) error {
	return f.addRule(fmt.Sprintf("%s:%d", dstAddr, dstPort))
}

func (f *filterImpl) RemoveTcpClientFiltering(dstAddr string, dstPort int) error {
	return f.removeRule(fmt.Sprintf("%s:%d", dstAddr, dstPort))
}

func (f *filterImpl) AddTcpServerFiltering(srcAddr string, srcPort int) error {
	return f.addRule(fmt.Sprintf("%s:%d", srcAddr, srcPort))
}

func (f *filterImpl) RemoveTcpServerFiltering(srcAddr string, srcPort int) error {
	return f.removeRule(fmt.Sprintf("%s:%d", srcAddr, srcPort))
}

func (f *filterImpl) addRule(ruleKey string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.ruleSet[ruleKey] {
		return nil
	}

	if !f.isRunning {
		h, err := divert.Open("tcp.Rst", divert.LayerNetwork, 0, 0)
		if err != nil {
			return err
		}
		f.handle = h
		f.stopChan = make(chan struct{})
		f.isRunning = true
		go f.runFilteringLoop()
	}

	f.ruleSet[ruleKey] = true
	return nil
}

func (f *filterImpl) removeRule(ruleKey string) error {
	f.mutex.Lock()

	if !f.ruleSet[ruleKey] {
		f.mutex.Unlock()
		return nil
	}
	delete(f.ruleSet, ruleKey)
	empty := len(f.ruleSet) == 0
	f.mutex.Unlock()

	if empty {
		return f.FinishFiltering()
	}
	return nil
}

// FinishFiltering stops the capture loop and clears every rule.
func (f *filterImpl) FinishFiltering() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if !f.isRunning {
		return errors.New("no active filtering rules")
	}

	close(f.stopChan)
	f.isRunning = false
	f.ruleSet = make(map[string]bool)
	return nil
}

func (f *filterImpl) runFilteringLoop() {
	defer func() {
		f.mutex.Lock()
		f.handle.Close()
		f.isRunning = false
		f.mutex.Unlock()
	}()

	buf := make([]byte, 1500)
	addr := divert.Address{}

	for {
		select {
		case <-f.stopChan:
			log.Println("filter: stopping WinDivert capture")
			return
		default:
			n, err := f.handle.Recv(buf, &addr)
			if err != nil {
				log.Println("filter: WinDivert recv:", err)
				continue
			}

			packet := gopacket.NewPacket(buf[:n], layers.LayerTypeIPv4, gopacket.Default)
			if packet == nil {
				continue
			}
			ipv4Layer := packet.Layer(layers.LayerTypeIPv4)
			if ipv4Layer == nil {
				continue
			}
			ipv4, _ := ipv4Layer.(*layers.IPv4)

			tcpLayer := packet.Layer(layers.LayerTypeTCP)
			if tcpLayer == nil {
				continue
			}
			tcp, _ := tcpLayer.(*layers.TCP)

			f.mutex.Lock()
			drop := f.ruleSet[fmt.Sprintf("%s:%d", ipv4.DstIP, tcp.DstPort)]
			f.mutex.Unlock()
			if drop {
				log.Printf("filter: dropping RST to %s:%d\n", ipv4.DstIP, tcp.DstPort)
				continue
			}

			if _, err := f.handle.Send(buf[:n], &addr); err != nil {
				log.Println("filter: WinDivert reinject:", err)
			}
		}
	}
}
