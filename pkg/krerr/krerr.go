// Package krerr defines the sentinel error kinds shared across the kernel
// route synchronization core (spec.md §7). Soft errors are returned and
// logged at warn level by the caller; FatalInvariant is panicked so a
// supervisor can restart the process with a fresh kernel sync.
package krerr

import "errors"

var (
	// ErrInvalidMessage marks a malformed inbound netlink message. The
	// individual message is dropped and logged at warn level.
	ErrInvalidMessage = errors.New("krsc: invalid netlink message")

	// ErrUnknownTable marks an inbound message referring to a routing
	// table the registry does not track. Dropped silently — this is too
	// noisy during config reloads to warrant a log line.
	ErrUnknownTable = errors.New("krsc: unknown routing table")

	// ErrNotFound marks a delete/match operation whose target is absent.
	ErrNotFound = errors.New("krsc: route not found")

	// ErrMultipathCorruption marks a broken multipath successor chain.
	// The operation aborts and leaves state as-is; this is a bug
	// indicator and callers should log it, not retry it.
	ErrMultipathCorruption = errors.New("krsc: multipath chain corrupted")

	// ErrUnsupported marks an address family/AID the core does not
	// handle for the attempted operation.
	ErrUnsupported = errors.New("krsc: unsupported address family")

	// ErrTransport marks a netlink send failure. The caller must not
	// mark the route kernel-inserted; it is not retried synchronously.
	ErrTransport = errors.New("krsc: netlink transport error")
)

// FatalInvariant panics with a diagnostic message. Used for invariant
// violations that cannot be represented as recoverable state: a
// non-contiguous v6 netmask, or an address family the ordered-index
// comparator was never meant to see.
func FatalInvariant(msg string) {
	panic("krsc: fatal invariant violated: " + msg)
}
