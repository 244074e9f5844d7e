// Package subprocess wraps external OS binaries for proxy discovery
// (ports.RawProxySource) and liveness probing, so discovery and validation can be
// delegated to a site-specific scraper/validator script instead of
// hardcoding scraping logic into this repository (spec.md §1, §2).
package subprocess

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

// RawSource implements ports.RawProxySource by running command and parsing
// its stdout, one proxy per line in "protocol://host:port" form.
type RawSource struct {
	command string
	args    []string
}

// NewRawSource builds a RawSource that runs command with args.
func NewRawSource(command string, args ...string) *RawSource {
	return &RawSource{command: command, args: args}
}

// Discover runs the configured command and parses its stdout.
func (s *RawSource) Discover(ctx context.Context) ([]domain.RawProxy, error) {
	if s.command == "" {
		return nil, nil
	}

	cmd := exec.CommandContext(ctx, s.command, s.args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &domain.StoreError{Op: "proxy_source_subprocess", Cause: fmt.Errorf("%w: %s", err, stderr.String())}
	}

	var proxies []domain.RawProxy
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		proxy, err := parseProxyLine(line)
		if err != nil {
			continue
		}
		proxies = append(proxies, proxy)
	}
	return proxies, scanner.Err()
}

func parseProxyLine(line string) (domain.RawProxy, error) {
	schemeHost := strings.SplitN(line, "://", 2)
	if len(schemeHost) != 2 {
		return domain.RawProxy{}, fmt.Errorf("malformed proxy line %q", line)
	}

	hostPort := strings.SplitN(schemeHost[1], ":", 2)
	if len(hostPort) != 2 {
		return domain.RawProxy{}, fmt.Errorf("malformed proxy line %q", line)
	}

	port, err := strconv.Atoi(hostPort[1])
	if err != nil {
		return domain.RawProxy{}, fmt.Errorf("malformed port in %q: %w", line, err)
	}

	return domain.RawProxy{
		Protocol: domain.Protocol(schemeHost[0]),
		Host:     hostPort[0],
		Port:     port,
	}, nil
}

// LivenessProbe runs command with the candidate proxy's URL as its last
// argument and parses a single JSON object from stdout: {"alive": bool,
// "exit_ip": string, "response_time_ms": int}. Its Probe returns those three
// fields rather than a ports.ProbeResult; the orchestrator wraps it to
// satisfy ports.LivenessProber.
type LivenessProbe struct {
	command string
	args    []string
}

// NewLivenessProbe builds a LivenessProbe that runs command with args plus
// the probed proxy's URL.
func NewLivenessProbe(command string, args ...string) *LivenessProbe {
	return &LivenessProbe{command: command, args: args}
}

type probeResult struct {
	ExitIP         string `json:"exit_ip"`
	Alive          bool   `json:"alive"`
	ResponseTimeMs int64  `json:"response_time_ms"`
}

// Probe runs the configured command against proxy.
func (p *LivenessProbe) Probe(ctx context.Context, proxy domain.RawProxy) (bool, string, int64, error) {
	if p.command == "" {
		return false, "", 0, nil
	}

	args := append(append([]string{}, p.args...), proxy.URL())
	cmd := exec.CommandContext(ctx, p.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return false, "", 0, nil // treat a failing validator invocation as a dead proxy
	}

	var result probeResult
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &result); err != nil {
		return false, "", 0, &domain.StoreError{Op: "proxy_probe_subprocess", Cause: err}
	}
	return result.Alive, result.ExitIP, result.ResponseTimeMs, nil
}
