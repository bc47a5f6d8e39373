package scanner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// CriticalPorts is the default scan set: every port the risk analyzer
// has a policy for.
var CriticalPorts = []int{
	21, 22, 23, 25, 80, 110, 143, 161, 443, 465, 500,
	587, 1433, 1521, 1723, 3306, 3389, 4500, 5432,
}

// NaabuScanner shells out to the naabu CLI for TCP port scanning.
type NaabuScanner struct {
	BinPath   string
	Rate      int
	Retries   int
	TimeoutMs int
	TempDir   string
}

func NewNaabuScanner(binPath string, rate, retries int) *NaabuScanner {
	if binPath == "" {
		if found, err := exec.LookPath("naabu"); err == nil {
			binPath = found
		}
	}
	if rate <= 0 {
		rate = 500
	}
	if retries <= 0 {
		retries = 2
	}
	return &NaabuScanner{
		BinPath:   binPath,
		Rate:      rate,
		Retries:   retries,
		TimeoutMs: 8000,
		TempDir:   os.TempDir(),
	}
}

// IsAvailable reports whether the naabu binary was found.
func (n *NaabuScanner) IsAvailable() bool {
	if n.BinPath == "" {
		return false
	}
	_, err := os.Stat(n.BinPath)
	return err == nil
}

// ScanHosts scans the given IPs on the given ports (CriticalPorts when
// nil) and returns open ports grouped by IP.
func (n *NaabuScanner) ScanHosts(ctx context.Context, ips []string, ports []int) (map[string][]int, error) {
	if !n.IsAvailable() {
		return nil, fmt.Errorf("naabu binary not found")
	}
	if len(ips) == 0 {
		return map[string][]int{}, nil
	}
	if len(ports) == 0 {
		ports = CriticalPorts
	}

	workDir, err := os.MkdirTemp(n.TempDir, "naabu-")
	if err != nil {
		return nil, fmt.Errorf("create scan workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	listPath := filepath.Join(workDir, "targets.txt")
	outPath := filepath.Join(workDir, "open.txt")
	if err := os.WriteFile(listPath, []byte(strings.Join(ips, "\n")+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("write target list: %w", err)
	}

	portList := make([]string, len(ports))
	for i, p := range ports {
		portList[i] = strconv.Itoa(p)
	}

	cmd := exec.CommandContext(ctx, n.BinPath,
		"-list", listPath,
		"-p", strings.Join(portList, ","),
		"-rate", strconv.Itoa(n.Rate),
		"-retries", strconv.Itoa(n.Retries),
		"-timeout", strconv.Itoa(n.TimeoutMs),
		"-silent",
		"-o", outPath,
	)
	if err := cmd.Run(); err != nil {
		// naabu may still have written partial results before failing
		if _, statErr := os.Stat(outPath); statErr != nil {
			return nil, fmt.Errorf("naabu scan: %w", err)
		}
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read naabu output: %w", err)
	}
	return ParseNaabuOutput(string(data)), nil
}

// ParseNaabuOutput parses "ip:port" lines into open ports grouped by IP.
// Malformed lines are skipped.
func ParseNaabuOutput(output string) map[string][]int {
	result := make(map[string][]int)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		ip, portStr, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		port, err := strconv.Atoi(strings.TrimSpace(portStr))
		if err != nil {
			continue
		}
		result[ip] = append(result[ip], port)
	}
	return result
}
