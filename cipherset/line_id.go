package cipherset

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// ErrInvalidLineID is returned when parsing an invalid line id.
var ErrInvalidLineID = errors.New("cipherset: invalid line id")

// LineID identifies one direction of a line. Each side picks its own.
type LineID [16]byte

// ZeroLineID is the zero value of LineID
var ZeroLineID LineID

// NewLineID returns a random line id.
func NewLineID() (LineID, error) {
	var id LineID
	_, err := rand.Read(id[:])
	if err != nil {
		return ZeroLineID, Fail("line id", err)
	}
	return id, nil
}

// ParseLineID parses a hex encoded line id.
func ParseLineID(s string) (LineID, error) {
	var id LineID

	if hex.DecodedLen(len(s)) != len(id) {
		return ZeroLineID, ErrInvalidLineID
	}

	_, err := hex.Decode(id[:], []byte(s))
	if err != nil {
		return ZeroLineID, ErrInvalidLineID
	}

	return id, nil
}

func (id LineID) String() string {
	return hex.EncodeToString(id[:])
}

func (id LineID) IsZero() bool {
	return id == ZeroLineID
}
