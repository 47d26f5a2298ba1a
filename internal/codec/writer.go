package codec

import (
	"encoding/binary"

	"github.com/mr-tron/base58"
)

// Writer appends little-endian fields. It is the inverse of Reader and is
// used to assemble instruction data.
type Writer struct {
	buf []byte
	err error
}

// NewWriter returns an empty writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoded buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Err returns the first encoding error, if any.
func (w *Writer) Err() error {
	return w.err
}

// Discriminator appends an 8-byte discriminator.
func (w *Writer) Discriminator(d [DiscriminatorSize]byte) *Writer {
	w.buf = append(w.buf, d[:]...)
	return w
}

// U64 appends a little-endian u64.
func (w *Writer) U64(v uint64) *Writer {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	return w
}

// I64 appends a little-endian i64.
func (w *Writer) I64(v int64) *Writer {
	return w.U64(uint64(v))
}

// Bool appends a single-byte bool.
func (w *Writer) Bool(v bool) *Writer {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
	return w
}

// PubKey appends a base58 public key as 32 raw bytes.
func (w *Writer) PubKey(key string) *Writer {
	b, err := base58.Decode(key)
	if err == nil && len(b) != PubKeySize {
		err = errInvalidKeyLength
	}
	if err != nil {
		if w.err == nil {
			w.err = err
		}
		b = make([]byte, PubKeySize)
	}
	w.buf = append(w.buf, b...)
	return w
}

// String appends a borsh string.
func (w *Writer) String(s string) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(s)))
	w.buf = append(w.buf, s...)
	return w
}
