package peer

import (
	"net"
	"net/url"
	"strconv"
)

// Address identifies a peer by the host:port of its membership RPC.
// Equality is exact string equality; no normalization is applied.
type Address string

func (a Address) String() string { return string(a) }

// Host returns the host part of the address, or the whole address when it
// has no port.
func (a Address) Host() string {
	host, _, err := net.SplitHostPort(string(a))
	if err != nil {
		return string(a)
	}
	return host
}

// HTTPEndpoint derives the peer's public request-serving URL, assuming it
// listens for HTTP on httpPort.
func (a Address) HTTPEndpoint(httpPort int) string {
	u := url.URL{Scheme: "http", Host: net.JoinHostPort(a.Host(), strconv.Itoa(httpPort))}
	return u.String()
}

// Addresses converts raw strings, dropping empty entries.
func Addresses(raw []string) []Address {
	out := make([]Address, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			out = append(out, Address(s))
		}
	}
	return out
}

// Strings converts addresses back to strings.
func Strings(addrs []Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = string(a)
	}
	return out
}
