//go:build darwin
// +build darwin

package filter

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// filterImpl is the implementation of the Filter interface for macOS.
type filterImpl struct {
	anchor string
}

func NewFilter(identifier string) (Filter, error) {
	enabled, err := isPFEnabled()
	if err != nil || !enabled {
		return nil, fmt.Errorf("PF service is not enabled: %v", err)
	}
	if err := isLibpcapInstalled(); err != nil {
		return nil, fmt.Errorf("libpcap check failed: %v", err)
	}
	if refExists, err := pfCheckAnchor(identifier); err != nil {
		return nil, fmt.Errorf("failed to check anchor reference in /etc/pf.conf: %v", err)
	} else if !refExists {
		return nil, fmt.Errorf("anchor reference to %s does not exist in /etc/pf.conf, add it", identifier)
	}

	return &filterImpl{anchor: identifier}, nil
}

// AddTcpClientFiltering adds a new RST-drop rule to the anchor while leaving existing rules intact.
func (f *filterImpl) AddTcpClientFiltering(dstAddr string, dstPort int) error {
	currentRules, err := getPfRules(f.anchor)
	if err != nil {
		return fmt.Errorf("failed to retrieve current rules: %v", err)
	}

	newRule := fmt.Sprintf("block drop out quick inet proto tcp from any to %s port = %d flags R/R", dstAddr, dstPort)
	if !containsRule(currentRules, newRule) {
		currentRules = append(currentRules, newRule)
	}

	rulesText := strings.Join(currentRules, "\n")
	if err := pfLoadRules(f.anchor, rulesText); err != nil {
		return fmt.Errorf("failed to load updated rules: %v", err)
	}
	return verifyRuleExactMatch(f.anchor, newRule)
}

func (f *filterImpl) RemoveTcpClientFiltering(dstAddr string, dstPort int) error {
	currentRules, err := getPfRules(f.anchor)
	if err != nil {
		return fmt.Errorf("failed to retrieve current rules: %v", err)
	}

	ruleToRemove := fmt.Sprintf("block drop out quick inet proto tcp from any to %s port = %d flags R/R", dstAddr, dstPort)
	var updatedRules []string
	for _, rule := range currentRules {
		if strings.TrimSpace(rule) != strings.TrimSpace(ruleToRemove) {
			updatedRules = append(updatedRules, rule)
		}
	}

	rulesText := strings.Join(updatedRules, "\n") + "\n"
	return pfLoadRules(f.anchor, rulesText)
}

// AddTcpServerFiltering is a no-op: raw-socket server role is Linux-only.
func (f *filterImpl) AddTcpServerFiltering(srcAddr string, srcPort int) error {
	return nil
}

func (f *filterImpl) RemoveTcpServerFiltering(srcAddr string, srcPort int) error {
	return nil
}

// FinishFiltering flushes all rules in the anchor.
func (f *filterImpl) FinishFiltering() error {
	cmdFlush := exec.Command("pfctl", "-a", f.anchor, "-F", "rules")
	output, err := cmdFlush.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to flush rules for anchor %s: %v\nCommand output: %s", f.anchor, err, string(output))
	}
	return nil
}

func isPFEnabled() (bool, error) {
	output, err := exec.Command("pfctl", "-s", "info").CombinedOutput()
	if err != nil {
		return false, fmt.Errorf("pfctl check failed: %v\nOutput: %s", err, string(output))
	}
	return strings.Contains(string(output), "Status: Enabled"), nil
}

func pfCheckAnchor(anchor string) (bool, error) {
	data, err := os.ReadFile("/etc/pf.conf")
	if err != nil {
		return false, fmt.Errorf("failed to read /etc/pf.conf: %v", err)
	}
	anchorRef := fmt.Sprintf("anchor \"%s\"", anchor)
	return strings.Contains(string(data), anchorRef), nil
}

func getPfRules(anchor string) ([]string, error) {
	cmd := exec.Command("pfctl", "-a", anchor, "-s", "rules")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to query PF rules: %v\nOutput: %s", err, string(output))
	}

	var rules []string
	for _, line := range strings.Split(string(output), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "block") {
			rules = append(rules, trimmed)
		}
	}
	return rules, nil
}

func pfLoadRules(anchor, rules string) error {
	cmd := exec.Command("sh", "-c", fmt.Sprintf("echo %q | sudo /sbin/pfctl -a %s -f -", rules, anchor))
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to load PF rules: %v\nCommand output: %s", err, string(output))
	}
	return nil
}

func verifyRuleExactMatch(anchor, expectedRule string) error {
	cmd := exec.Command("/sbin/pfctl", "-a", anchor, "-s", "rules")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to query PF rules: %v", err)
	}
	expected := strings.TrimSpace(expectedRule)
	current := strings.TrimSpace(string(output))
	if !strings.Contains(current, expected) {
		return fmt.Errorf("rule does not match\nCurrent rules:\n%s\nExpected:\n%s", current, expected)
	}
	return nil
}

func containsRule(rules []string, target string) bool {
	target = strings.TrimSpace(target)
	for _, rule := range rules {
		if strings.TrimSpace(rule) == target {
			return true
		}
	}
	return false
}

func isLibpcapInstalled() error {
	cmd := exec.Command("which", "tcpdump")
	output, err := cmd.CombinedOutput()
	if err != nil || strings.TrimSpace(string(output)) == "" {
		return fmt.Errorf("libpcap is not installed or tcpdump is not available: %v", err)
	}
	return nil
}
