package addr

import (
	"bytes"
	"fmt"
	"net"
)

// Prefix is an address-family-tagged network prefix: the raw address bytes
// (4 for v4 families, 16 for v6 families), a bit length, a v6 scope id, and
// an optional MPLS label stack for the vpn families. It is a value type —
// callers never receive a pointer into shared storage (spec.md §9, "static
// buffer in to-full conversions").
type Prefix struct {
	Family   Family
	Bytes    []byte // network-order address bytes, length 4 or 16
	Length   int    // prefix length in bits
	ScopeID  uint32 // v6 only
	MPLSLabelStack [][]byte // vpn families only; each entry a 3-byte label
}

// NexthopAddr is the same shape as Prefix but without a prefix length; used
// for route nexthops and registered BGP nexthops.
type NexthopAddr struct {
	Family  Family
	Bytes   []byte
	ScopeID uint32
}

func (n NexthopAddr) IsUnspec() bool {
	return n.Family == Unspec || len(n.Bytes) == 0
}

// Equal reports whether two nexthops are the same address (and, for v6,
// the same scope id) — used by kroute_matchgw.
func (n NexthopAddr) Equal(o NexthopAddr) bool {
	if n.Family != o.Family {
		return false
	}
	if n.Family == V6 || n.Family == VPNv6 {
		if n.ScopeID != o.ScopeID {
			return false
		}
	}
	return bytes.Equal(n.Bytes, o.Bytes)
}

func (n NexthopAddr) String() string {
	if n.IsUnspec() {
		return "<unspec>"
	}
	return net.IP(n.Bytes).String()
}

func (p Prefix) String() string {
	if len(p.Bytes) == 0 {
		return fmt.Sprintf("<unspec>/%d", p.Length)
	}
	return fmt.Sprintf("%s/%d", net.IP(p.Bytes).String(), p.Length)
}

// ParsePrefix parses CIDR notation ("10.0.0.0/24", "2001:db8::/32") into a
// Prefix, masking any host bits the caller left set. Used by configuration
// loading for network statements that name an explicit prefix.
func ParsePrefix(s string) (Prefix, error) {
	ip, ipNet, err := net.ParseCIDR(s)
	if err != nil {
		return Prefix{}, fmt.Errorf("addr: invalid prefix %q: %w", s, err)
	}
	ones, _ := ipNet.Mask.Size()
	family := V4
	b4 := ip.To4()
	bytes := []byte(b4)
	if b4 == nil {
		family = V6
		bytes = []byte(ip.To16())
	}
	return Mask(Prefix{Family: family, Bytes: bytes, Length: ones}, ones), nil
}

// Mask returns prefix truncated to n bits, zero-filling the tail. Mirrors
// applymask() in kroute-linux.c.
func Mask(p Prefix, n int) Prefix {
	out := Prefix{Family: p.Family, Length: n, ScopeID: p.ScopeID}
	out.Bytes = maskBytes(p.Bytes, n)
	return out
}

// MaskNexthop is Mask's analogue for bare addresses (used by the nexthop
// resolver's longest-prefix-match walk).
func MaskNexthop(a NexthopAddr, n int) NexthopAddr {
	return NexthopAddr{Family: a.Family, Bytes: maskBytes(a.Bytes, n), ScopeID: a.ScopeID}
}

func maskBytes(src []byte, n int) []byte {
	out := make([]byte, len(src))
	copy(out, src)
	if n < 0 {
		n = 0
	}
	fullBytes := n / 8
	rem := n % 8
	if fullBytes >= len(out) {
		return out
	}
	for i := fullBytes; i < len(out); i++ {
		if i == fullBytes && rem > 0 {
			out[i] &= ^byte(0xFF >> uint(rem))
			continue
		}
		out[i] = 0
	}
	return out
}

// Compare returns 0 iff the first n bits of a and b agree (prefix_compare).
// A length of 0 always compares equal regardless of content.
func Compare(a, b []byte, n int) int {
	if n <= 0 {
		return 0
	}
	am := maskBytes(a, n)
	bm := maskBytes(b, n)
	return bytes.Compare(am, bm)
}

// PrefixCompare is the Prefix-typed convenience wrapper around Compare used
// by the nexthop resolver and route insertion to test prefix containment.
func PrefixCompare(p Prefix, nh NexthopAddr, n int) int {
	return Compare(p.Bytes, nh.Bytes, n)
}

// PrefixlenOfMask derives a prefix length from a dotted/hex netmask the way
// mask2prefixlen4/mask2prefixlen6 do. For v6, a non-contiguous mask is a
// FatalInvariant per spec.md §7 — the caller panics with a diagnostic
// rather than silently guessing, since such a mask can never arise from a
// well-formed kernel notification.
func PrefixlenOfMask(family Family, mask []byte) (int, error) {
	switch family {
	case V4:
		return prefixlenOfMask4(mask)
	case V6:
		return prefixlenOfMask6(mask)
	default:
		return 0, ErrUnsupportedFamily{Family: family}
	}
}

// prefixlenOfMask4 mirrors mask2prefixlen4: 33 minus the position (1-based,
// from the low end) of the lowest set bit of the mask interpreted as a
// big-endian uint32.
func prefixlenOfMask4(mask []byte) (int, error) {
	if len(mask) != 4 {
		return 0, fmt.Errorf("addr: v4 mask must be 4 bytes, got %d", len(mask))
	}
	var v uint32
	for _, b := range mask {
		v = v<<8 | uint32(b)
	}
	if v == 0 {
		return 0, nil
	}
	for i := 0; i < 32; i++ {
		if v&(1<<uint(i)) != 0 {
			return 32 - i, nil
		}
	}
	return 0, nil
}

// prefixlenOfMask6 counts contiguous leading one-bits and panics (the Go
// analogue of the original's fatalx) if a non-contiguous mask appears.
func prefixlenOfMask6(mask []byte) (int, error) {
	if len(mask) != 16 {
		return 0, fmt.Errorf("addr: v6 mask must be 16 bytes, got %d", len(mask))
	}
	length := 0
	seenZero := false
	for _, b := range mask {
		for bit := 7; bit >= 0; bit-- {
			set := b&(1<<uint(bit)) != 0
			if set {
				if seenZero {
					panic(fmt.Sprintf("addr: non-contiguous v6 netmask % x", mask))
				}
				length++
			} else {
				seenZero = true
			}
		}
	}
	return length, nil
}

// ClassfulPrefixlen reports the classful prefix length for a v4 address:
// 8/16/24/32 for class A/B/C/E, and 4 for class D (multicast) — kept at 4
// rather than "not applicable" for wire compatibility with legacy callers
// that expect a numeric prefixlen (spec.md §4.1).
func ClassfulPrefixlen(v4 uint32) int {
	switch {
	case v4 >= 0xf0000000: // class E
		return 32
	case v4 >= 0xe0000000: // class D, multicast
		return 4
	case v4 >= 0xc0000000: // class C
		return 24
	case v4 >= 0x80000000: // class B
		return 16
	default: // class A
		return 8
	}
}
