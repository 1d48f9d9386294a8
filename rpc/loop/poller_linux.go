//go:build linux

package loop

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// epollPoller backs Poller with Linux epoll, the same readiness
// primitive golang.org/x/sys/unix exposes to the rest of the example
// pack's raw-syscall networking code.
type epollPoller struct {
	epfd int
}

// NewPoller creates an epoll-backed Poller.
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &epollPoller{epfd: epfd}, nil
}

func (p *epollPoller) Add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl(ADD, %d): %w", fd, err)
	}
	return nil
}

func (p *epollPoller) Remove(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll_ctl(DEL, %d): %w", fd, err)
	}
	return nil
}

func (p *epollPoller) Wait() ([]int, error) {
	events := make([]unix.EpollEvent, 64)
	for {
		n, err := unix.EpollWait(p.epfd, events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("epoll_wait: %w", err)
		}

		ready := make([]int, 0, n)
		for i := 0; i < n; i++ {
			ready = append(ready, int(events[i].Fd))
		}
		return ready, nil
	}
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}

// selfPipe creates a non-blocking pipe used purely to wake the loop out
// of Wait() after the pending list has mutated out of band.
func selfPipe() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return 0, 0, fmt.Errorf("pipe2: %w", err)
	}
	return fds[0], fds[1], nil
}
