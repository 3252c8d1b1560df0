package utils

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrMalformedAddress is returned for anything that is not a dotted-quad IPv4 address.
var ErrMalformedAddress = errors.New("malformed IPv4 address")

// ParseIPv4 converts a dotted-quad address into its 32-bit value. Exactly four
// decimal octets in the range 0-255 are accepted.
func ParseIPv4(s string) (uint32, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
	}
	var v uint32
	for _, p := range parts {
		if p == "" || len(p) > 3 || p[0] < '0' || p[0] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return 0, fmt.Errorf("%w: %q", ErrMalformedAddress, s)
		}
		v = v<<8 | uint32(n)
	}
	return v, nil
}

// IntToIP formats a 32-bit value as a dotted-quad string.
func IntToIP(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// IntToNetIP is IntToIP for callers that need a net.IP.
func IntToNetIP(v uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, v)
	return ip
}

// MaskBits returns the network mask for a prefix length. Lengths outside 0-32 are clamped.
func MaskBits(bits int) uint32 {
	bits = ClampBits(bits)
	if bits == 0 {
		return 0
	}
	return uint32(0xFFFFFFFF) << (32 - bits)
}

// ClampBits limits a prefix length to 0-32.
func ClampBits(bits int) int {
	switch {
	case bits < 0:
		return 0
	case bits > 32:
		return 32
	}
	return bits
}

// Mask truncates an address to its network prefix and returns the canonical
// masked address, e.g. Mask("10.0.0.7", 24) == "10.0.0.0".
func Mask(addr string, bits int) (string, error) {
	v, err := ParseIPv4(addr)
	if err != nil {
		return "", err
	}
	return IntToIP(v & MaskBits(bits)), nil
}

// CompareIPv4 orders two dotted-quad strings numerically. Malformed addresses
// sort after well-formed ones and lexically among themselves.
func CompareIPv4(a, b string) int {
	va, errA := ParseIPv4(a)
	vb, errB := ParseIPv4(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return 1
	case errB != nil:
		return -1
	case va < vb:
		return -1
	case va > vb:
		return 1
	}
	return 0
}
