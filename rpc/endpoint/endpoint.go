// Package endpoint parses the small URL grammar the RPC runtime binds and
// connects to: unix:// and tcp:// (v4 and v6) listen/dial addresses.
package endpoint

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/marmos91/gorpcd/rpc/rpcerr"
)

// Family identifies which socket address family an Endpoint describes.
type Family int

const (
	// Unix identifies a UNIX-domain socket path.
	Unix Family = iota
	// IPv4 identifies a TCP/IPv4 address+port.
	IPv4
	// IPv6 identifies a TCP/IPv6 address+port.
	IPv6
)

func (f Family) String() string {
	switch f {
	case Unix:
		return "unix"
	case IPv4:
		return "tcp4"
	case IPv6:
		return "tcp6"
	default:
		return "unknown"
	}
}

// Endpoint is a tagged variant over {UNIX path, IPv4 addr+port, IPv6
// addr+port}. It is immutable after Parse returns it.
type Endpoint struct {
	Family Family
	Path   string // set when Family == Unix
	IP     net.IP // set when Family == IPv4 or IPv6
	Port   uint16 // set when Family == IPv4 or IPv6
}

// Network returns the net.Listen/net.Dial network name for this endpoint
// ("unix", "tcp4", "tcp6").
func (e Endpoint) Network() string {
	return e.Family.String()
}

// Address returns the net.Listen/net.Dial address string for this
// endpoint: the raw path for UNIX, or "ip:port" for TCP.
func (e Endpoint) Address() string {
	switch e.Family {
	case Unix:
		return e.Path
	case IPv6:
		return net.JoinHostPort(e.IP.String(), strconv.Itoa(int(e.Port)))
	default:
		return net.JoinHostPort(e.IP.String(), strconv.Itoa(int(e.Port)))
	}
}

// String renders the endpoint back into its URL form (suffix-free).
func (e Endpoint) String() string {
	switch e.Family {
	case Unix:
		return "unix://" + e.Path
	case IPv6:
		return fmt.Sprintf("tcp://[%s]:%d", e.IP.String(), e.Port)
	default:
		return fmt.Sprintf("tcp://%s:%d", e.IP.String(), e.Port)
	}
}

// Parse converts a URL string into an Endpoint. Recognized forms:
//
//	unix:///<path>[:<suffix>]
//	tcp://<dotted-ipv4>:<port>[:<suffix>]
//	tcp://[<ipv6>]:<port>[:<suffix>]
//
// Any other scheme fails with rpcerr.ErrInvalidURL. A recognized scheme
// with an address that doesn't parse fails with rpcerr.ErrInvalidAddress.
func Parse(url string) (Endpoint, error) {
	switch {
	case strings.HasPrefix(url, "unix://"):
		return parseUnix(url[len("unix://"):])
	case strings.HasPrefix(url, "tcp://"):
		return parseTCP(url[len("tcp://"):])
	default:
		return Endpoint{}, fmt.Errorf("%w: %q", rpcerr.ErrInvalidURL, url)
	}
}

func parseUnix(rest string) (Endpoint, error) {
	if rest == "" {
		return Endpoint{}, fmt.Errorf("%w: empty unix path", rpcerr.ErrInvalidAddress)
	}

	// <path> runs up to the first ':' or end; everything after is an
	// ignored suffix.
	path := rest
	if idx := strings.IndexByte(rest, ':'); idx >= 0 {
		path = rest[:idx]
	}
	if path == "" || !strings.HasPrefix(path, "/") {
		return Endpoint{}, fmt.Errorf("%w: %q is not an absolute unix path", rpcerr.ErrInvalidAddress, path)
	}

	return Endpoint{Family: Unix, Path: path}, nil
}

func parseTCP(rest string) (Endpoint, error) {
	if strings.HasPrefix(rest, "[") {
		return parseIPv6(rest)
	}
	return parseIPv4(rest)
}

func parseIPv4(rest string) (Endpoint, error) {
	// <dotted-ipv4>:<port>[:<suffix>]
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) < 2 {
		return Endpoint{}, fmt.Errorf("%w: %q missing port", rpcerr.ErrInvalidAddress, rest)
	}

	ip := net.ParseIP(parts[0]).To4()
	if ip == nil {
		return Endpoint{}, fmt.Errorf("%w: %q is not a valid IPv4 address", rpcerr.ErrInvalidAddress, parts[0])
	}

	port, err := parsePort(parts[1])
	if err != nil {
		return Endpoint{}, err
	}

	return Endpoint{Family: IPv4, IP: ip, Port: port}, nil
}

func parseIPv6(rest string) (Endpoint, error) {
	// [<ipv6>]:<port>[:<suffix>]
	closeIdx := strings.IndexByte(rest, ']')
	if closeIdx < 0 {
		return Endpoint{}, fmt.Errorf("%w: %q missing closing bracket", rpcerr.ErrInvalidAddress, rest)
	}

	ipStr := rest[1:closeIdx]
	ip := net.ParseIP(ipStr)
	if ip == nil || ip.To4() != nil {
		return Endpoint{}, fmt.Errorf("%w: %q is not a valid IPv6 address", rpcerr.ErrInvalidAddress, ipStr)
	}

	remainder := rest[closeIdx+1:]
	if !strings.HasPrefix(remainder, ":") {
		return Endpoint{}, fmt.Errorf("%w: %q missing port", rpcerr.ErrInvalidAddress, rest)
	}
	remainder = remainder[1:]

	portStr := remainder
	if idx := strings.IndexByte(remainder, ':'); idx >= 0 {
		portStr = remainder[:idx]
	}

	port, err := parsePort(portStr)
	if err != nil {
		return Endpoint{}, err
	}

	return Endpoint{Family: IPv6, IP: ip, Port: port}, nil
}

func parsePort(s string) (uint16, error) {
	if s == "" {
		// Port defaults to 80 if grammar permits an empty port segment.
		return 80, nil
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a valid port", rpcerr.ErrInvalidAddress, s)
	}
	return uint16(n), nil
}

// Equal reports whether two endpoints describe the same bound address.
func Equal(a, b Endpoint) bool {
	if a.Family != b.Family {
		return false
	}
	switch a.Family {
	case Unix:
		return a.Path == b.Path
	default:
		return a.IP.Equal(b.IP) && a.Port == b.Port
	}
}
