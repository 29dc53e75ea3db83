//go:build linux
// +build linux

package filter

import (
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
)

type filterImpl struct {
	comment string
}

func NewFilter(identifier string) (Filter, error) {
	if err := isIptablesEnabled(); err != nil {
		return nil, err
	}
	return &filterImpl{comment: identifier}, nil
}

func isIptablesEnabled() error {
	cmd := exec.Command("iptables", "-S")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("iptables is not enabled or available: %v\nOutput: %s", err, string(output))
	}
	return nil
}

// AddTcpClientFiltering adds an iptables rule to drop RST packets originating from the given IP and port.
func (f *filterImpl) AddTcpClientFiltering(dstAddr string, dstPort int) error {
	ruleCheck := fmt.Sprintf("-A OUTPUT -p tcp --tcp-flags RST RST -d %s --dport %d -m comment --comment \"%s\" -j DROP", dstAddr, dstPort, f.comment)

	cmd := exec.Command("iptables", "-S", "OUTPUT")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to list iptables rules: %v\nOutput: %s", err, string(output))
	}
	if strings.Contains(string(output), ruleCheck) {
		return nil
	}

	cmd = exec.Command("iptables", "-A", "OUTPUT", "-p", "tcp", "--tcp-flags", "RST", "RST", "-d", dstAddr, "--dport", strconv.Itoa(dstPort), "-m", "comment", "--comment", f.comment, "-j", "DROP")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to add iptables rule: %v", err)
	}
	log.Printf("added RST-drop rule for %s:%d\n", dstAddr, dstPort)
	return nil
}

func (f *filterImpl) RemoveTcpClientFiltering(dstAddr string, dstPort int) error {
	cmd := exec.Command("iptables", "-D", "OUTPUT", "-p", "tcp", "--tcp-flags", "RST", "RST", "-d", dstAddr, "--dport", strconv.Itoa(dstPort), "-m", "comment", "--comment", f.comment, "-j", "DROP")
	return cmd.Run()
}

// AddTcpServerFiltering adds an iptables rule to drop RST packets originating from the given listening IP and port.
func (f *filterImpl) AddTcpServerFiltering(srcAddr string, srcPort int) error {
	ruleCheck := fmt.Sprintf("-A OUTPUT -p tcp --tcp-flags RST RST -s %s --sport %d -m comment --comment %s -j DROP", srcAddr, srcPort, f.comment)

	cmd := exec.Command("iptables", "-S", "OUTPUT")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to list iptables rules: %v\nOutput: %s", err, string(output))
	}
	if strings.Contains(string(output), ruleCheck) {
		return nil
	}

	cmd = exec.Command("iptables", "-A", "OUTPUT", "-p", "tcp", "--tcp-flags", "RST", "RST", "-s", srcAddr, "--sport", strconv.Itoa(srcPort), "-m", "comment", "--comment", f.comment, "-j", "DROP")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to add iptables rule: %v", err)
	}
	log.Printf("added RST-drop rule for %s:%d\n", srcAddr, srcPort)
	return nil
}

func (f *filterImpl) RemoveTcpServerFiltering(srcAddr string, srcPort int) error {
	cmd := exec.Command("iptables", "-D", "OUTPUT", "-p", "tcp", "--tcp-flags", "RST", "RST", "-s", srcAddr, "--sport", strconv.Itoa(srcPort), "-m", "comment", "--comment", f.comment, "-j", "DROP")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to remove iptables rule: %v", err)
	}
	return nil
}

// FinishFiltering removes every rule tagged with this filter's comment.
func (f *filterImpl) FinishFiltering() error {
	cmd := exec.Command("iptables", "-S", "OUTPUT")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to list iptables rules: %v\nOutput: %s", err, string(output))
	}

	var deleteErrors []string
	for _, line := range strings.Split(string(output), "\n") {
		if strings.Contains(line, "--comment \""+f.comment+"\"") || strings.Contains(line, "--comment "+f.comment) {
			deleteCmd := strings.Replace(line, "-A", "-D", 1)
			cmd := exec.Command("sh", "-c", "iptables "+deleteCmd)
			if out, err := cmd.CombinedOutput(); err != nil {
				deleteErrors = append(deleteErrors, fmt.Sprintf("%s\nError: %s", deleteCmd, string(out)))
			}
		}
	}
	if len(deleteErrors) > 0 {
		return fmt.Errorf("some rules failed to delete:\n%s", strings.Join(deleteErrors, "\n"))
	}
	return nil
}
