// Package addr provides address-family-tagged prefix and nexthop values for
// the kernel route synchronization core: masking, prefix comparison, and the
// classful helpers the reconciler needs to classify inbound kernel routes.
package addr

import "fmt"

// Family tags the address family of a Prefix or nexthop value.
type Family uint8

const (
	Unspec Family = iota
	V4
	V6
	VPNv4
	VPNv6
)

// String renders the family the way log lines and show-* output expect.
func (f Family) String() string {
	switch f {
	case V4:
		return "inet"
	case V6:
		return "inet6"
	case VPNv4:
		return "vpn-ipv4"
	case VPNv6:
		return "vpn-ipv6"
	default:
		return "unspec"
	}
}

// MaxPrefixlen returns the widest valid prefix length for the family: 32 for
// v4 families, 128 for v6 families.
func (f Family) MaxPrefixlen() int {
	switch f {
	case V4, VPNv4:
		return 32
	case V6, VPNv6:
		return 128
	default:
		return 0
	}
}

// ErrUnsupportedFamily is returned by operations that only handle v4/v6.
type ErrUnsupportedFamily struct {
	Family Family
}

func (e ErrUnsupportedFamily) Error() string {
	return fmt.Sprintf("addr: unsupported address family %s", e.Family)
}
