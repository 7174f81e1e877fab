// Package types defines the core domain types for suipack: package ids,
// decoded packages, provenance metadata and the error taxonomy.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the byte length of a Sui address or object id.
const AddressLength = 32

// Address is a 32-byte account address or object id.
type Address [AddressLength]byte

// ParseAddress parses a hex address with or without the 0x prefix.
// Short forms such as "0x2" are left-padded with zeros.
func ParseAddress(s string) (Address, error) {
	var a Address
	h := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if h == "" || len(h) > 2*AddressLength {
		return a, fmt.Errorf("invalid address %q: expected 1 to %d hex digits", s, 2*AddressLength)
	}
	if len(h)%2 == 1 {
		h = "0" + h
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	copy(a[AddressLength-len(b):], b)
	return a, nil
}

// MustParseAddress is ParseAddress for constants; it panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Hex returns the 64 lowercase hex digits without prefix.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// String returns the canonical "0x" + 64 hex digit form. Addresses are never
// shortened.
func (a Address) String() string {
	return "0x" + a.Hex()
}

// Bytes returns the address bytes.
func (a Address) Bytes() []byte {
	return a[:]
}

// Compare orders addresses by their bytes.
func (a Address) Compare(b Address) int {
	return bytes.Compare(a[:], b[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
