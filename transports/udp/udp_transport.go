// Package udp implements the UDP transport.
//
//   telehash.NewSwitch(telehash.Config{Transport: udp.Config{}})
package udp

import (
	"encoding/json"
	"errors"
	"io"
	"net"

	"github.com/telehash/gotelehash/transports"
)

func init() {
	transports.RegisterAddrDecoder(UDPv4, decodeAddress)
	transports.RegisterAddrDecoder(UDPv6, decodeAddress)
}

// Config for the UDP transport.
type Config struct {
	Network string // "udp4", "udp6"
	Addr    string
	Dest    string // CIDR format network range
}

type addr struct {
	net string
	net.UDPAddr
}

type transport struct {
	net   string
	laddr *net.UDPAddr
	dest  *net.IPNet
	c     *net.UDPConn
}

var (
	_ transports.Addr      = (*addr)(nil)
	_ transports.Transport = (*transport)(nil)
	_ transports.Config    = Config{}
)

const (
	UDPv4 = "udp4"
	UDPv6 = "udp6"
)

// Open opens the transport.
func (c Config) Open() (transports.Transport, error) {
	var (
		ipnet *net.IPNet
		laddr *net.UDPAddr
		err   error
	)

	if c.Network == "" || c.Network == "udp" {
		c.Network = UDPv4
	}
	if c.Addr == "" {
		c.Addr = ":0"
	}
	if c.Dest == "" {
		if c.Network == UDPv4 {
			c.Dest = "0.0.0.0/0"
		} else {
			c.Dest = "::0/0"
		}
	}

	if c.Network != UDPv4 && c.Network != UDPv6 {
		return nil, errors.New("udp: Network must be either `udp4` or `udp6`")
	}

	{ // parse and verify source address
		laddr, err = net.ResolveUDPAddr(c.Network, c.Addr)
		if err != nil {
			return nil, err
		}

		if c.Network == UDPv4 && laddr.IP != nil && laddr.IP.To4() == nil {
			return nil, errors.New("udp: expected a IPv4 address")
		}

		if c.Network == UDPv6 && laddr.IP != nil && laddr.IP.To4() != nil {
			return nil, errors.New("udp: expected a IPv6 address")
		}
	}

	{ // parse and verify destination network
		_, ipnet, err = net.ParseCIDR(c.Dest)
		if err != nil {
			return nil, err
		}

		if c.Network == UDPv4 && ipnet.IP.To4() == nil {
			return nil, errors.New("udp: expected a IPv4 network")
		}

		if c.Network == UDPv6 && ipnet.IP.To4() != nil {
			return nil, errors.New("udp: expected a IPv6 network")
		}
	}

	conn, err := net.ListenUDP(c.Network, laddr)
	if err != nil {
		return nil, err
	}

	laddr = conn.LocalAddr().(*net.UDPAddr)

	return &transport{c.Network, laddr, ipnet, conn}, nil
}

func (t *transport) ReadMessage(p []byte) (int, transports.Addr, error) {
	for {
		n, a, err := t.c.ReadFromUDP(p)
		if err != nil {
			if isClosedErr(err) {
				return 0, nil, transports.ErrClosed
			}
			return 0, nil, err
		}

		if !t.dest.Contains(a.IP) {
			continue
		}

		return n, &addr{net: t.net, UDPAddr: *a}, nil
	}
}

func (t *transport) WriteMessage(p []byte, dst transports.Addr) error {
	a, ok := dst.(*addr)
	if !ok || a == nil || a.net != t.net || !t.dest.Contains(a.IP) {
		return transports.ErrInvalidAddr
	}

	n, err := t.c.WriteToUDP(p, &a.UDPAddr)
	if err != nil {
		if isClosedErr(err) {
			return transports.ErrClosed
		}
		return err
	}

	if n != len(p) {
		return io.ErrShortWrite
	}

	return nil
}

func (t *transport) Close() error {
	err := t.c.Close()
	if err != nil && isClosedErr(err) {
		return transports.ErrClosed
	}
	return err
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

func (t *transport) LocalAddresses() []transports.Addr {
	var (
		port  int
		addrs []transports.Addr
	)

	{
		a := t.laddr
		port = a.Port
		if !a.IP.IsUnspecified() {
			if ip := t.filterIP(a.IP); ip != nil {
				addrs = append(addrs, &addr{
					net:     t.net,
					UDPAddr: net.UDPAddr{IP: ip, Port: a.Port, Zone: a.Zone},
				})
			}
			return addrs
		}
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return addrs
	}
	for _, iface := range ifaces {
		iaddrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, iaddr := range iaddrs {
			var (
				ip   net.IP
				zone string
			)

			switch x := iaddr.(type) {
			case *net.IPAddr:
				ip = x.IP
				zone = x.Zone
			case *net.IPNet:
				ip = x.IP
			}

			if ip == nil ||
				ip.IsMulticast() ||
				ip.IsUnspecified() ||
				ip.IsInterfaceLocalMulticast() ||
				ip.IsLinkLocalMulticast() {
				continue
			}

			if ip = t.filterIP(ip); ip != nil {
				addrs = append(addrs, &addr{
					net:     t.net,
					UDPAddr: net.UDPAddr{IP: ip, Port: port, Zone: zone},
				})
			}
		}
	}

	return addrs
}

func (t *transport) filterIP(ip net.IP) net.IP {
	switch t.net {
	case UDPv4:
		return ip.To4()
	case UDPv6:
		if ip.To4() == nil {
			return ip.To16()
		}
	}
	return nil
}

// NewAddr wraps a resolved UDP address.
func NewAddr(a *net.UDPAddr) transports.Addr {
	if a.IP.To4() != nil {
		return &addr{net: UDPv4, UDPAddr: net.UDPAddr{IP: a.IP.To4(), Port: a.Port}}
	}
	return &addr{net: UDPv6, UDPAddr: *a}
}

// ResolveAddr resolves host:port into a UDP address.
func ResolveAddr(network, hostport string) (transports.Addr, error) {
	a, err := net.ResolveUDPAddr(network, hostport)
	if err != nil {
		return nil, err
	}
	return NewAddr(a), nil
}

func (a *addr) Network() string {
	return a.net
}

func (a *addr) Equal(other transports.Addr) bool {
	b, ok := other.(*addr)
	if !ok || b == nil {
		return false
	}
	return a.net == b.net && a.Port == b.Port && a.IP.Equal(b.IP) && a.Zone == b.Zone
}

func (a *addr) MarshalJSON() ([]byte, error) {
	var desc = struct {
		Type string `json:"type"`
		IP   string `json:"ip"`
		Port int    `json:"port"`
	}{
		Type: a.net,
		IP:   a.IP.String(),
		Port: a.Port,
	}

	return json.Marshal(&desc)
}

func decodeAddress(data []byte) (transports.Addr, error) {
	var desc struct {
		Type string `json:"type"`
		IP   string `json:"ip"`
		Port int    `json:"port"`
	}

	err := json.Unmarshal(data, &desc)
	if err != nil {
		return nil, transports.ErrInvalidAddr
	}

	ip := net.ParseIP(desc.IP)
	if ip == nil || ip.IsUnspecified() {
		return nil, transports.ErrInvalidAddr
	}

	if desc.Port <= 0 || desc.Port >= 65535 {
		return nil, transports.ErrInvalidAddr
	}

	switch desc.Type {
	case UDPv4:
		if ip = ip.To4(); ip == nil {
			return nil, transports.ErrInvalidAddr
		}
	case UDPv6:
		if ip.To4() != nil {
			return nil, transports.ErrInvalidAddr
		}
	default:
		return nil, transports.ErrInvalidAddr
	}

	return &addr{net: desc.Type, UDPAddr: net.UDPAddr{IP: ip, Port: desc.Port}}, nil
}
