package addr

import (
	"bytes"
	"testing"
)

func TestParsePrefixMasksHostBits(t *testing.T) {
	p, err := ParsePrefix("10.1.2.3/24")
	if err != nil {
		t.Fatalf("ParsePrefix: %v", err)
	}
	if p.Family != V4 || p.Length != 24 {
		t.Fatalf("got %+v, want V4 /24", p)
	}
	if !bytes.Equal(p.Bytes, []byte{10, 1, 2, 0}) {
		t.Fatalf("got bytes %v, want host bits masked", p.Bytes)
	}
}

func TestParsePrefixV6(t *testing.T) {
	p, err := ParsePrefix("2001:db8::/32")
	if err != nil {
		t.Fatalf("ParsePrefix: %v", err)
	}
	if p.Family != V6 || p.Length != 32 {
		t.Fatalf("got %+v, want V6 /32", p)
	}
}

func TestParsePrefixRejectsGarbage(t *testing.T) {
	if _, err := ParsePrefix("not-a-prefix"); err == nil {
		t.Fatal("expected an error for invalid CIDR")
	}
}

func TestMaskZerosTail(t *testing.T) {
	p := Prefix{Family: V4, Bytes: []byte{10, 1, 2, 3}, Length: 32}
	m := Mask(p, 24)
	want := []byte{10, 1, 2, 0}
	for i := range want {
		if m.Bytes[i] != want[i] {
			t.Fatalf("Mask(/24) = %v, want %v", m.Bytes, want)
		}
	}
}

func TestMaskPartialByte(t *testing.T) {
	p := Prefix{Family: V4, Bytes: []byte{10, 1, 255, 3}, Length: 32}
	m := Mask(p, 20)
	if m.Bytes[2] != 0xF0 {
		t.Fatalf("Mask(/20) third byte = %08b, want %08b", m.Bytes[2], 0xF0)
	}
}

func TestCompareRespectsLength(t *testing.T) {
	a := []byte{10, 0, 0, 1}
	b := []byte{10, 0, 0, 254}
	if Compare(a, b, 24) != 0 {
		t.Fatalf("expected equal on first 24 bits")
	}
	if Compare(a, b, 32) == 0 {
		t.Fatalf("expected different on all 32 bits")
	}
}

func TestCompareZeroLengthAlwaysEqual(t *testing.T) {
	a := []byte{1, 2, 3, 4}
	b := []byte{255, 255, 255, 255}
	if Compare(a, b, 0) != 0 {
		t.Fatalf("zero-length compare must always be equal")
	}
}

func TestPrefixlenOfMask4(t *testing.T) {
	cases := []struct {
		mask []byte
		want int
	}{
		{[]byte{255, 255, 255, 255}, 32},
		{[]byte{255, 255, 255, 0}, 24},
		{[]byte{255, 255, 0, 0}, 16},
		{[]byte{0, 0, 0, 0}, 0},
	}
	for _, c := range cases {
		got, err := PrefixlenOfMask(V4, c.mask)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != c.want {
			t.Errorf("PrefixlenOfMask(%v) = %d, want %d", c.mask, got, c.want)
		}
	}
}

func TestPrefixlenOfMask6NonContiguousPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on non-contiguous v6 mask")
		}
	}()
	bad := make([]byte, 16)
	bad[0] = 0b10101010
	_, _ = PrefixlenOfMask(V6, bad)
}

func TestClassfulPrefixlenBoundaries(t *testing.T) {
	cases := []struct {
		v4   uint32
		want int
	}{
		{0x7FFFFFFF, 8},  // just below class B boundary
		{0x80000000, 16}, // class B starts
		{0xBFFFFFFF, 16},
		{0xC0000000, 24}, // class C starts
		{0xDFFFFFFF, 24},
		{0xE0000000, 4}, // class D (multicast) starts
		{0xEFFFFFFF, 4},
		{0xF0000000, 32}, // class E starts
		{0xFFFFFFFF, 32},
	}
	for _, c := range cases {
		if got := ClassfulPrefixlen(c.v4); got != c.want {
			t.Errorf("ClassfulPrefixlen(0x%08x) = %d, want %d", c.v4, got, c.want)
		}
	}
}
