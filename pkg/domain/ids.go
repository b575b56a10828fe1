package domain

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// StateID is the fixed-size identifier of a workflow state.
// Human-readable names are stored right-padded with zero bytes.
type StateID [32]byte

// Role is an opaque role identifier with the same encoding as StateID.
type Role [32]byte

// Address identifies an account or an external reference (hook target, validator).
type Address [20]byte

// TransitionID names a transition independently of its endpoints.
type TransitionID uint64

// ZeroAddress is the null reference.
var ZeroAddress Address

// NewStateID builds a StateID from a short ASCII name (at most 32 bytes).
// Longer names are truncated.
func NewStateID(name string) StateID {
	var s StateID
	copy(s[:], name)
	return s
}

// IsZero reports whether the id is unset.
func (s StateID) IsZero() bool {
	return s == StateID{}
}

func (s StateID) String() string {
	return word32String(s)
}

// MarshalText encodes the id as its printable name, falling back to hex.
func (s StateID) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts either a 0x-prefixed 32-byte hex string or a plain name.
func (s *StateID) UnmarshalText(text []byte) error {
	w, err := parseWord32(string(text))
	if err != nil {
		return fmt.Errorf("state id: %w", err)
	}
	*s = StateID(w)
	return nil
}

// ParseStateID is the string form of UnmarshalText.
func ParseStateID(v string) (StateID, error) {
	var s StateID
	err := s.UnmarshalText([]byte(v))
	return s, err
}

// NewRole builds a Role from a short ASCII name.
func NewRole(name string) Role {
	var r Role
	copy(r[:], name)
	return r
}

// IsZero reports whether the role is the zero role.
func (r Role) IsZero() bool {
	return r == Role{}
}

func (r Role) String() string {
	return word32String(r)
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	w, err := parseWord32(string(text))
	if err != nil {
		return fmt.Errorf("role: %w", err)
	}
	*r = Role(w)
	return nil
}

// ParseRole is the string form of UnmarshalText.
func ParseRole(v string) (Role, error) {
	var r Role
	err := r.UnmarshalText([]byte(v))
	return r, err
}

// IsZero reports whether the address is the null reference.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Hex returns the 0x-prefixed lowercase hex encoding.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return a.Hex()
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a 20-byte hex address, with or without the 0x prefix.
func ParseAddress(v string) (Address, error) {
	var a Address
	raw := strings.TrimPrefix(strings.TrimPrefix(v, "0x"), "0X")
	if len(raw) != 2*len(a) {
		return a, fmt.Errorf("address %q: want %d hex characters, got %d", v, 2*len(a), len(raw))
	}
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return a, fmt.Errorf("address %q: %w", v, err)
	}
	return a, nil
}

// MustAddress is ParseAddress for constants and tests.
func MustAddress(v string) Address {
	a, err := ParseAddress(v)
	if err != nil {
		panic(err)
	}
	return a
}

func word32String(w [32]byte) string {
	trimmed := bytes.TrimRight(w[:], "\x00")
	if len(trimmed) == 0 {
		return ""
	}
	for _, b := range trimmed {
		if b > unicode.MaxASCII || !unicode.IsPrint(rune(b)) {
			return "0x" + hex.EncodeToString(w[:])
		}
	}
	return string(trimmed)
}

func parseWord32(v string) ([32]byte, error) {
	var w [32]byte
	if strings.HasPrefix(v, "0x") && len(v) == 2+2*len(w) {
		if _, err := hex.Decode(w[:], []byte(v[2:])); err != nil {
			return w, err
		}
		return w, nil
	}
	if len(v) > len(w) {
		return w, fmt.Errorf("name %q longer than %d bytes", v, len(w))
	}
	copy(w[:], v)
	return w, nil
}
