//go:build linux

package poll

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// epollPoller implements osPoller on epoll(7). Registrations are
// level-triggered: actors drain until EAGAIN, and the latched ready state
// covers anything they leave behind.
type epollPoller struct {
	epfd    int
	scratch []unix.EpollEvent
}

func newOSPoller() (osPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &epollPoller{epfd: epfd}, nil
}

// epollEvent packs the registration token into the event payload; the kernel
// hands it back verbatim with every notification.
func epollEvent(token Token, interest Interest) unix.EpollEvent {
	ev := unix.EpollEvent{
		Fd:  int32(uint32(token)),
		Pad: int32(uint32(token >> 32)),
	}
	if interest.readable() {
		ev.Events |= unix.EPOLLIN
	}
	if interest.writable() {
		ev.Events |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) add(fd int, token Token, interest Interest) error {
	ev := epollEvent(token, interest)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add: %w", err)
	}
	return nil
}

func (p *epollPoller) modify(fd int, token Token, interest Interest) error {
	ev := epollEvent(token, interest)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl mod: %w", err)
	}
	return nil
}

func (p *epollPoller) remove(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll_ctl del: %w", err)
	}
	return nil
}

func (p *epollPoller) wait(events []event, timeoutMillis int) (int, error) {
	if len(p.scratch) < len(events) {
		p.scratch = make([]unix.EpollEvent, len(events))
	}
	buf := p.scratch[:len(events)]

	n, err := unix.EpollWait(p.epfd, buf, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll_wait: %w", err)
	}

	for i := 0; i < n; i++ {
		ev := buf[i]
		token := Token(uint32(ev.Fd)) | Token(uint32(ev.Pad))<<32
		events[i] = event{
			token: token,
			// Hang-ups and errors surface as readable so the owning actor
			// observes EOF or the socket error on its next read attempt.
			readable: ev.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLRDHUP|unix.EPOLLERR) != 0,
			writable: ev.Events&(unix.EPOLLOUT|unix.EPOLLERR) != 0,
		}
	}
	return n, nil
}

func (p *epollPoller) close() error {
	if p.epfd >= 0 {
		if err := unix.Close(p.epfd); err != nil {
			return fmt.Errorf("close epoll fd: %w", err)
		}
		p.epfd = -1
	}
	return nil
}
