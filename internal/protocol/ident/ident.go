// Package ident owns the four-byte identifier contract shared by packet
// types, field names, and parameter names.
package ident

import "errors"

// Len is the fixed wire width of an identifier.
const Len = 4

var (
	ErrInvalidIdentifier = errors.New("ident: invalid identifier")
	ErrTooLong           = errors.New("ident: identifier longer than 4 bytes")
)

// ID is a 4-byte identifier, right-padded with spaces on the wire. The zero
// value is four zero bytes, which Validate rejects; New pads with spaces.
type ID [Len]byte

func isValidByte(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == ' '
}

// New validates and pads s into an ID. Inputs longer than 4 bytes, or
// containing any byte outside [A-Z0-9 ], are rejected.
func New(s string) (ID, error) {
	if len(s) > Len {
		return ID{}, ErrTooLong
	}
	var id ID
	for i := 0; i < Len; i++ {
		if i < len(s) {
			id[i] = s[i]
		} else {
			id[i] = ' '
		}
	}
	if err := id.Validate(); err != nil {
		return ID{}, err
	}
	return id, nil
}

// FromBytes interprets a raw 4-byte wire slice as an ID without padding.
func FromBytes(b []byte) (ID, error) {
	if len(b) != Len {
		return ID{}, ErrInvalidIdentifier
	}
	var id ID
	copy(id[:], b)
	if err := id.Validate(); err != nil {
		return ID{}, err
	}
	return id, nil
}

// Validate reports whether every byte of id is in [A-Z0-9 ].
func (id ID) Validate() error {
	for _, b := range id {
		if !isValidByte(b) {
			return ErrInvalidIdentifier
		}
	}
	return nil
}

// Bytes returns the raw 4-byte wire form.
func (id ID) Bytes() []byte {
	out := make([]byte, Len)
	copy(out, id[:])
	return out
}

// String returns the canonical display form with trailing spaces stripped.
func (id ID) String() string {
	end := Len
	for end > 0 && id[end-1] == ' ' {
		end--
	}
	return string(id[:end])
}
