package types

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
)

// InstanceTag identifies one logical endpoint among several clients that
// share a single account. Tag 0 means "no instance" and addresses every
// endpoint.
type InstanceTag uint32

const (
	// ZeroTag is the unaddressed/broadcast instance tag
	ZeroTag InstanceTag = 0

	// SmallestTag is the lowest valid non-zero instance tag.
	// Values 1..0xff are reserved by the protocol.
	SmallestTag InstanceTag = 0x100

	// MaxTagDigits is the maximum number of hex digits of a tag on the wire
	MaxTagDigits = 8
)

var (
	ErrTagTooLong = errors.New("instance tag too large")
	ErrTagSyntax  = errors.New("instance tag is not hexadecimal")
)

// IsZero returns true for the unaddressed tag
func (t InstanceTag) IsZero() bool {
	return t == ZeroTag
}

// Valid returns true if the tag is zero or at least SmallestTag
func (t InstanceTag) Valid() bool {
	return t == ZeroTag || t >= SmallestTag
}

// String returns the wire representation (8 lowercase hex digits)
func (t InstanceTag) String() string {
	return fmt.Sprintf("%08x", uint32(t))
}

// ParseInstanceTag parses a hexadecimal instance tag.
// At most MaxTagDigits digits are accepted; signs and prefixes are not.
func ParseInstanceTag(s string) (InstanceTag, error) {
	if len(s) > MaxTagDigits {
		return ZeroTag, fmt.Errorf("%w: %q", ErrTagTooLong, s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return ZeroTag, fmt.Errorf("%w: %q", ErrTagSyntax, s)
	}
	return InstanceTag(v), nil
}

// NewRandomInstanceTag allocates a random valid non-zero instance tag
func NewRandomInstanceTag() (InstanceTag, error) {
	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return ZeroTag, fmt.Errorf("failed to read random tag: %w", err)
		}
		tag := InstanceTag(binary.BigEndian.Uint32(buf[:]))
		if tag >= SmallestTag {
			return tag, nil
		}
	}
}
