//go:build unix

// Package sock holds the small nonblocking-socket plumbing shared by the udp
// and tcp actor packages: socket creation, sockaddr conversion, and
// would-block classification.
package sock

import (
	"errors"
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// UDP creates a nonblocking UDP socket bound to addr, returning the fd and
// the actually bound address (resolving port 0).
func UDP(addr netip.AddrPort) (int, netip.AddrPort, error) {
	fd, err := socket(addr, unix.SOCK_DGRAM)
	if err != nil {
		return -1, netip.AddrPort{}, err
	}

	if err := unix.Bind(fd, ToSockaddr(addr)); err != nil {
		unix.Close(fd)
		return -1, netip.AddrPort{}, fmt.Errorf("bind %s: %w", addr, err)
	}

	bound, err := LocalAddr(fd)
	if err != nil {
		unix.Close(fd)
		return -1, netip.AddrPort{}, err
	}
	return fd, bound, nil
}

// Listen creates a nonblocking TCP listener socket bound to addr.
func Listen(addr netip.AddrPort, backlog int) (int, netip.AddrPort, error) {
	fd, err := socket(addr, unix.SOCK_STREAM)
	if err != nil {
		return -1, netip.AddrPort{}, err
	}

	// Listeners restart; don't fight the previous incarnation's TIME_WAIT.
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, netip.AddrPort{}, fmt.Errorf("set SO_REUSEADDR: %w", err)
	}

	if err := unix.Bind(fd, ToSockaddr(addr)); err != nil {
		unix.Close(fd)
		return -1, netip.AddrPort{}, fmt.Errorf("bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, netip.AddrPort{}, fmt.Errorf("listen %s: %w", addr, err)
	}

	bound, err := LocalAddr(fd)
	if err != nil {
		unix.Close(fd)
		return -1, netip.AddrPort{}, err
	}
	return fd, bound, nil
}

// Accept accepts one pending connection, returning a nonblocking fd and the
// peer address. A would-block error means no connection is pending.
func Accept(fd int) (int, netip.AddrPort, error) {
	nfd, sa, err := unix.Accept(fd)
	if err != nil {
		return -1, netip.AddrPort{}, err
	}

	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return -1, netip.AddrPort{}, fmt.Errorf("set accepted nonblocking: %w", err)
	}
	unix.CloseOnExec(nfd)

	return nfd, FromSockaddr(sa), nil
}

// LocalAddr reports the locally bound address of a socket.
func LocalAddr(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("getsockname: %w", err)
	}
	return FromSockaddr(sa), nil
}

// WouldBlock reports whether err is the would-block class: the resource has
// no more to offer right now. Always "no event", never a failure.
func WouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// Interrupted reports whether err is a retryable interruption.
func Interrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}

func socket(addr netip.AddrPort, kind int) (int, error) {
	family := unix.AF_INET
	if addr.Addr().Is6() && !addr.Addr().Is4In6() {
		family = unix.AF_INET6
	}

	fd, err := unix.Socket(family, kind, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set nonblocking: %w", err)
	}
	unix.CloseOnExec(fd)
	return fd, nil
}

// ToSockaddr converts an AddrPort for the raw socket calls.
func ToSockaddr(addr netip.AddrPort) unix.Sockaddr {
	ip := addr.Addr()
	if ip.Is4() || ip.Is4In6() {
		return &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.Unmap().As4()}
	}
	return &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}
}

// FromSockaddr converts a peer address returned by the raw socket calls.
func FromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr).Unmap(), uint16(sa.Port))
	default:
		return netip.AddrPort{}
	}
}
