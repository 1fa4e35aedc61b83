package address

import (
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const DefaultHost = "0.0.0.0"

type Address struct {
	Host string
	Port uint16
}

// Parse splits the address into host and port. Missing host is replaced by DefaultHost,
// a missing port is an error.
func Parse(addr string) (Address, error) {
	colon := strings.LastIndexByte(addr, ':')
	if colon == -1 {
		return Address{}, errors.New("no port given")
	}

	host, rawPort := addr[:colon], addr[colon+1:]
	port, err := strconv.ParseUint(rawPort, 10, 16)
	if err != nil {
		return Address{}, errors.Errorf("invalid port: %s", rawPort)
	}

	if len(host) == 0 {
		host = DefaultHost
	}

	if len(host) > 1 && host[0] == '[' && host[len(host)-1] == ']' {
		host = host[1 : len(host)-1]
	}

	return Address{Host: host, Port: uint16(port)}, nil
}

// Sockaddr resolves the address into a form suitable for bind(2), returning the address
// family as well.
func (a Address) Sockaddr() (unix.Sockaddr, int, error) {
	ip, err := a.resolve()
	if err != nil {
		return nil, 0, err
	}

	if ip.Is4() || ip.Is4In6() {
		return &unix.SockaddrInet4{Port: int(a.Port), Addr: ip.Unmap().As4()}, unix.AF_INET, nil
	}

	return &unix.SockaddrInet6{Port: int(a.Port), Addr: ip.As16()}, unix.AF_INET6, nil
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

func (a Address) resolve() (netip.Addr, error) {
	if strings.EqualFold(a.Host, "localhost") {
		return netip.AddrFrom4([4]byte{127, 0, 0, 1}), nil
	}

	if ip, err := netip.ParseAddr(a.Host); err == nil {
		return ip, nil
	}

	ips, err := net.LookupIP(a.Host)
	if err != nil {
		return netip.Addr{}, errors.Wrapf(err, "resolving %s", a.Host)
	}

	for _, ip := range ips {
		if addr, ok := netip.AddrFromSlice(ip); ok {
			return addr, nil
		}
	}

	return netip.Addr{}, errors.Errorf("no usable address for %s", a.Host)
}

// Format renders a socket address as host:port. Unknown address kinds are rendered
// as an empty string.
func Format(sa unix.Sockaddr) string {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port)).String()
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port)).String()
	case *unix.SockaddrUnix:
		return sa.Name
	default:
		return ""
	}
}
