// Package codec decodes the fixed-layout little-endian payloads emitted by the
// pump.fun program: "Program data:" event lines and bonding-curve account blobs.
//
// Every read is bounds-checked. A read that does not fit reports ok == false
// and leaves the reader unusable; nothing in this package panics on bad input.
package codec

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"pumpfun-engine/internal/domain"
)

const (
	DiscriminatorSize = 8
	PubKeySize        = 32
)

// Reader consumes fields sequentially from a byte slice.
type Reader struct {
	buf    []byte
	off    int
	failed bool
}

// NewReader returns a reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	if r.failed {
		return 0
	}
	return len(r.buf) - r.off
}

// Failed reports whether any previous read ran out of bounds.
func (r *Reader) Failed() bool {
	return r.failed
}

func (r *Reader) take(n int) ([]byte, bool) {
	if r.failed || n < 0 || r.Remaining() < n {
		r.failed = true
		return nil, false
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, true
}

// Discriminator reads the 8-byte event/account discriminator.
func (r *Reader) Discriminator() ([DiscriminatorSize]byte, bool) {
	var d [DiscriminatorSize]byte
	b, ok := r.take(DiscriminatorSize)
	if !ok {
		return d, false
	}
	copy(d[:], b)
	return d, true
}

// U64 reads a little-endian unsigned 64-bit integer.
func (r *Reader) U64() (uint64, bool) {
	b, ok := r.take(8)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

// I64 reads a little-endian signed 64-bit integer.
func (r *Reader) I64() (int64, bool) {
	v, ok := r.U64()
	return int64(v), ok
}

// Scaled reads a u64 and divides it by 10^decimals.
func (r *Reader) Scaled(decimals uint8) (decimal.Decimal, bool) {
	v, ok := r.U64()
	if !ok {
		return decimal.Zero, false
	}
	return domain.Scaled(v, decimals), true
}

// Bool reads a single byte that must be 0 or 1.
func (r *Reader) Bool() (bool, bool) {
	b, ok := r.take(1)
	if !ok {
		return false, false
	}
	switch b[0] {
	case 0:
		return false, true
	case 1:
		return true, true
	default:
		r.failed = true
		return false, false
	}
}

// PubKey reads a 32-byte public key and renders it as base58.
func (r *Reader) PubKey() (string, bool) {
	b, ok := r.take(PubKeySize)
	if !ok {
		return "", false
	}
	return base58.Encode(b), true
}

// String reads a borsh string: 4-byte little-endian length, then that many
// UTF-8 bytes. Lengths above max are rejected.
func (r *Reader) String(max int) (string, bool) {
	lb, ok := r.take(4)
	if !ok {
		return "", false
	}
	n := binary.LittleEndian.Uint32(lb)
	if int64(n) > int64(max) {
		r.failed = true
		return "", false
	}
	b, ok := r.take(int(n))
	if !ok {
		return "", false
	}
	if !utf8.Valid(b) {
		r.failed = true
		return "", false
	}
	return string(b), true
}
