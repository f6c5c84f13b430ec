//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package poll

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// kqueuePoller implements osPoller on kqueue(2). Read and write filters are
// registered separately; both are level-triggered (no EV_CLEAR), matching the
// drain-until-EAGAIN contract actors are written against.
type kqueuePoller struct {
	kq      int
	tokens  map[int]Token
	scratch []unix.Kevent_t
}

func newOSPoller() (osPoller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}
	unix.CloseOnExec(kq)
	return &kqueuePoller{kq: kq, tokens: make(map[int]Token)}, nil
}

func (p *kqueuePoller) apply(fd int, interest Interest) error {
	if err := p.applyFilter(fd, unix.EVFILT_READ, interest.readable()); err != nil {
		return err
	}
	return p.applyFilter(fd, unix.EVFILT_WRITE, interest.writable())
}

func (p *kqueuePoller) applyFilter(fd, filter int, wanted bool) error {
	flags := unix.EV_ADD
	if !wanted {
		flags = unix.EV_DELETE
	}

	var change unix.Kevent_t
	unix.SetKevent(&change, fd, filter, flags)

	_, err := unix.Kevent(p.kq, []unix.Kevent_t{change}, nil, nil)
	// Deleting a filter that was never added is fine.
	if err != nil && !(flags == unix.EV_DELETE && err == unix.ENOENT) {
		return fmt.Errorf("kevent change: %w", err)
	}
	return nil
}

func (p *kqueuePoller) add(fd int, token Token, interest Interest) error {
	if err := p.apply(fd, interest); err != nil {
		return err
	}
	p.tokens[fd] = token
	return nil
}

func (p *kqueuePoller) modify(fd int, token Token, interest Interest) error {
	if err := p.apply(fd, interest); err != nil {
		return err
	}
	p.tokens[fd] = token
	return nil
}

func (p *kqueuePoller) remove(fd int) error {
	err := p.apply(fd, 0)
	delete(p.tokens, fd)
	return err
}

func (p *kqueuePoller) wait(events []event, timeoutMillis int) (int, error) {
	if len(p.scratch) < len(events) {
		p.scratch = make([]unix.Kevent_t, len(events))
	}
	buf := p.scratch[:len(events)]

	timeout := unix.NsecToTimespec(int64(timeoutMillis) * 1e6)
	n, err := unix.Kevent(p.kq, nil, buf, &timeout)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("kevent wait: %w", err)
	}

	out := 0
	for i := 0; i < n; i++ {
		kev := buf[i]
		token, ok := p.tokens[int(kev.Ident)]
		if !ok {
			continue
		}
		ev := event{token: token}
		switch kev.Filter {
		case unix.EVFILT_READ:
			ev.readable = true
		case unix.EVFILT_WRITE:
			ev.writable = true
		default:
			continue
		}
		// EOF surfaces through the read filter; actors observe it as a zero
		// read on their next attempt.
		events[out] = ev
		out++
	}
	return out, nil
}

func (p *kqueuePoller) close() error {
	if p.kq >= 0 {
		if err := unix.Close(p.kq); err != nil {
			return fmt.Errorf("close kqueue fd: %w", err)
		}
		p.kq = -1
	}
	return nil
}
