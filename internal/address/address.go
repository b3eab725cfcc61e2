// Package address parses and formats the socket address strings courier
// accepts. Two forms are recognized:
//
//	inet:<family>@<host>/<port>:<flowLabel>
//	<family>.<host>.<port>.<flowLabel>
//
// with family 2 for IPv4 and 10 for IPv6. Ports are 0 or 1024 through
// 65535.
package address

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	errspkg "github.com/couriermq/courier/internal/errors"
	"github.com/couriermq/courier/internal/textcheck"
)

// Family is the numeric address family carried in address strings.
type Family int

const (
	IPv4 Family = 2
	IPv6 Family = 10
)

// String returns the family name.
func (f Family) String() string {
	switch f {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// Address is one parsed socket address. Construct it through Parse or
// FromNetAddr and treat it as immutable afterwards.
type Address struct {
	Host      string
	Port      uint16
	FlowLabel uint32
	Family    Family
}

// Parse reads either accepted address form.
func Parse(s string) (*Address, error) {
	if rest, ok := strings.CutPrefix(s, "inet:"); ok {
		return parseInetForm(rest)
	}
	return parseDottedForm(s)
}

// inet:<family>@<host>/<port>:<flowLabel>
func parseInetForm(rest string) (*Address, error) {
	famStr, rest, ok := strings.Cut(rest, "@")
	if !ok {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "address.Parse", "missing @ between family and host")
	}
	host, rest, ok := strings.Cut(rest, "/")
	if !ok {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "address.Parse", "missing / between host and port")
	}
	portStr, flowStr, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "address.Parse", "missing : between port and flow label")
	}
	return build(famStr, host, portStr, flowStr)
}

// <family>.<host>.<port>.<flowLabel>. The host may itself contain dots, so
// the family is the first segment, the flow label the last, the port the
// one before it, and everything between is the host.
func parseDottedForm(s string) (*Address, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 4 {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "address.Parse", "dotted form needs family.host.port.flowLabel, got %q", s)
	}
	famStr := parts[0]
	flowStr := parts[len(parts)-1]
	portStr := parts[len(parts)-2]
	host := strings.Join(parts[1:len(parts)-2], ".")
	return build(famStr, host, portStr, flowStr)
}

func build(famStr, host, portStr, flowStr string) (*Address, error) {
	if !textcheck.IsInteger(famStr) {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "address.Parse", "family %q is not a number", famStr)
	}
	famNum, _ := strconv.Atoi(famStr)
	family := Family(famNum)
	if family != IPv4 && family != IPv6 {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "address.Parse", "unknown family %d, want 2 or 10", famNum)
	}

	if host == "" {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "address.Parse", "host is required")
	}

	port, err := parsePort(portStr)
	if err != nil {
		return nil, err
	}

	if !textcheck.IsInteger(flowStr) || strings.HasPrefix(flowStr, "-") {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "address.Parse", "flow label %q is not a non-negative number", flowStr)
	}
	flow, err := strconv.ParseUint(flowStr, 10, 32)
	if err != nil {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "address.Parse", "flow label %q does not fit 32 bits", flowStr)
	}

	return &Address{Host: host, Port: port, FlowLabel: uint32(flow), Family: family}, nil
}

func parsePort(s string) (uint16, error) {
	if !textcheck.IsInteger(s) || strings.HasPrefix(s, "-") {
		return 0, errspkg.New(errspkg.KindInvalidArgument, "address.Parse", "port %q is not a non-negative number", s)
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, errspkg.New(errspkg.KindInvalidArgument, "address.Parse", "port %q does not fit 16 bits", s)
	}
	if n != 0 && n < 1024 {
		return 0, errspkg.New(errspkg.KindInvalidArgument, "address.Parse", "port %d is reserved, want 0 or 1024-65535", n)
	}
	return uint16(n), nil
}

// FromNetAddr captures the host, port, and family of a live net address.
// The port range rule is not applied here; the operating system hands out
// whatever ephemeral port it likes.
func FromNetAddr(a net.Addr) (*Address, error) {
	var ip net.IP
	var port int
	switch x := a.(type) {
	case *net.TCPAddr:
		ip, port = x.IP, x.Port
	case *net.UDPAddr:
		ip, port = x.IP, x.Port
	default:
		if a == nil {
			return nil, errspkg.New(errspkg.KindInvalidArgument, "address.FromNetAddr", "nil address")
		}
		host, portStr, err := net.SplitHostPort(a.String())
		if err != nil {
			return nil, errspkg.New(errspkg.KindInvalidArgument, "address.FromNetAddr", "unusable address %q", a.String())
		}
		n, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return nil, errspkg.New(errspkg.KindInvalidArgument, "address.FromNetAddr", "port %q does not fit 16 bits", portStr)
		}
		ip, port = net.ParseIP(host), int(n)
		if ip == nil {
			return nil, errspkg.New(errspkg.KindInvalidArgument, "address.FromNetAddr", "host %q is not an IP", host)
		}
	}

	if ip == nil {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "address.FromNetAddr", "address %q has no IP", a.String())
	}
	family := IPv6
	if ip.To4() != nil {
		family = IPv4
	}
	return &Address{Host: ip.String(), Port: uint16(port), Family: family}, nil
}

// String renders the address in the inet form.
func (a *Address) String() string {
	return fmt.Sprintf("inet:%d@%s/%d:%d", int(a.Family), a.Host, a.Port, a.FlowLabel)
}

// HostPort renders host and port the way net.Dial wants them.
func (a *Address) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// Equal reports whether two addresses name the same endpoint: same host,
// same port, same family. The flow label does not participate.
func (a *Address) Equal(b *Address) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Host == b.Host && a.Port == b.Port && a.Family == b.Family
}
