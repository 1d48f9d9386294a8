package loop

// Poller is the readiness primitive the event loop polls. The Linux
// implementation backs it with epoll; Wait blocks with no timeout —
// every wake-up comes from a registered fd becoming readable.
type Poller interface {
	// Add registers fd for readability notifications.
	Add(fd int) error
	// Remove deregisters fd. Safe to call even if fd was never added.
	Remove(fd int) error
	// Wait blocks until at least one registered fd is ready, returning
	// the set of ready fds in arbitrary order.
	Wait() ([]int, error)
	// Close releases the poller's own resources (e.g. the epoll fd).
	Close() error
}
