package utils

import (
	"crypto/rand"
	"errors"
	"math/big"
	"net/url"
	"strings"
)

// RoomCodeLength is the length of generated room codes.
const RoomCodeLength = 6

const roomCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

var ErrInvalidRoomCode = errors.New("invalid room code")

// NewRoomCode returns a random code drawn from [0-9A-Z].
func NewRoomCode() (string, error) {
	var b strings.Builder
	b.Grow(RoomCodeLength)
	alphabetSize := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := 0; i < RoomCodeLength; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b.WriteByte(roomCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// ParseRoomCode accepts a bare code or a room link ending in /r/<code>
// and returns the upper-cased code.
func ParseRoomCode(input string) (string, error) {
	input = strings.TrimSpace(input)
	if strings.Contains(input, "/") {
		u, err := url.Parse(input)
		if err != nil {
			return "", ErrInvalidRoomCode
		}
		path := strings.TrimSuffix(u.Path, "/")
		idx := strings.LastIndex(path, "/")
		if idx < 0 {
			return "", ErrInvalidRoomCode
		}
		input = path[idx+1:]
	}

	code := strings.ToUpper(input)
	if code == "" || len(code) > 64 {
		return "", ErrInvalidRoomCode
	}
	for _, c := range code {
		if !strings.ContainsRune(roomCodeAlphabet, c) {
			return "", ErrInvalidRoomCode
		}
	}
	return code, nil
}
