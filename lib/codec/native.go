package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrSize is returned for buffers that do not match the record size of a codec
var ErrSize = errors.New("codec: buffer size mismatch")

// --------------------------------------------------------------------------
// Native integer codecs (little endian)
// --------------------------------------------------------------------------

type nativeCodec[T comparable] struct {
	name   string
	size   int
	put    func([]byte, T)
	decode func([]byte) T
}

// Uint64 returns the codec for 64 bit unsigned integer records
func Uint64() Codec[uint64] {
	return &nativeCodec[uint64]{
		name:   "uint64",
		size:   8,
		put:    binary.LittleEndian.PutUint64,
		decode: binary.LittleEndian.Uint64,
	}
}

// Uint32 returns the codec for 32 bit unsigned integer records
func Uint32() Codec[uint32] {
	return &nativeCodec[uint32]{
		name:   "uint32",
		size:   4,
		put:    binary.LittleEndian.PutUint32,
		decode: binary.LittleEndian.Uint32,
	}
}

// Int64 returns the codec for 64 bit signed integer records
func Int64() Codec[int64] {
	return &nativeCodec[int64]{
		name: "int64",
		size: 8,
		put: func(b []byte, v int64) {
			binary.LittleEndian.PutUint64(b, uint64(v))
		},
		decode: func(b []byte) int64 {
			return int64(binary.LittleEndian.Uint64(b))
		},
	}
}

func (c *nativeCodec[T]) Name() string { return c.name }

func (c *nativeCodec[T]) Size() int { return c.size }

func (c *nativeCodec[T]) Encode(dst []byte, v T) error {
	if len(dst) != c.size {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrSize, c.name, c.size, len(dst))
	}
	c.put(dst, v)
	return nil
}

func (c *nativeCodec[T]) Decode(src []byte) (T, error) {
	if len(src) != c.size {
		var zero T
		return zero, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrSize, c.name, c.size, len(src))
	}
	return c.decode(src), nil
}
