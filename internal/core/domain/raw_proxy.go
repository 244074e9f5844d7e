package domain

import "fmt"

// Protocol identifies the transport a proxy speaks, per spec.md §3.
type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolHTTPS  Protocol = "https"
	ProtocolSocks4 Protocol = "socks4"
	ProtocolSocks5 Protocol = "socks5"
)

// protocolRank orders protocols for the response-time tiebreaker recovered
// from original_source/proxies/mubeng_manager.py: socks5 > https > http > socks4.
var protocolRank = map[Protocol]int{
	ProtocolSocks5: 0,
	ProtocolHTTPS:  1,
	ProtocolHTTP:   2,
	ProtocolSocks4: 3,
}

// ProtocolRank returns the preference rank of a protocol (lower is preferred).
// Unknown protocols rank last.
func ProtocolRank(p Protocol) int {
	if r, ok := protocolRank[p]; ok {
		return r
	}
	return len(protocolRank)
}

// RawProxy is produced by the external RawProxySource (spec.md §3, §6).
type RawProxy struct {
	Host     string   `json:"host"`
	Protocol Protocol `json:"protocol"`
	Port     int      `json:"port"`
}

// URL renders the proxy as a dial-able URL, e.g. "socks5://1.2.3.4:1080".
func (r RawProxy) URL() string {
	return fmt.Sprintf("%s://%s:%d", r.Protocol, r.Host, r.Port)
}

// Key is the unique identity tuple (protocol, host, port) shared with LiveProxy.
func (r RawProxy) Key() string {
	return r.URL()
}
