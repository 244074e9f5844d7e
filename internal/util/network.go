package util

import (
	"fmt"
	"net"
	"strings"
)

// IsIPTrusted reports whether ip falls within any of trustedCIDRs.
func IsIPTrusted(ip net.IP, trustedCIDRs []*net.IPNet) bool {
	for _, cidr := range trustedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

func ParseTrustedCIDRs(cidrStrings []string) ([]*net.IPNet, error) {
	if len(cidrStrings) == 0 {
		return nil, nil
	}

	var cidrs []*net.IPNet
	for _, cidrStr := range cidrStrings {
		cidrStr = strings.TrimSpace(cidrStr)
		if cidrStr == "" {
			continue
		}

		_, network, err := net.ParseCIDR(cidrStr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", cidrStr, err)
		}
		cidrs = append(cidrs, network)
	}

	return cidrs, nil
}


// SameIPv4Slash24 reports whether two dotted-quad IPv4 addresses share the
// same /24 — the exit-IP sanity check mandated by spec.md §3/§4.7/§8 (property 7).
// Non-IPv4 input is never considered a match.
func SameIPv4Slash24(a, b string) bool {
	ipA := net.ParseIP(a)
	ipB := net.ParseIP(b)
	if ipA == nil || ipB == nil {
		return false
	}
	v4A := ipA.To4()
	v4B := ipB.To4()
	if v4A == nil || v4B == nil {
		return false
	}
	return v4A[0] == v4B[0] && v4A[1] == v4B[1] && v4A[2] == v4B[2]
}
