package codec

import "fmt"

// Codec is the interface for all record codecs. A codec maps a record of type T
// to exactly Size() bytes and back.
type Codec[T comparable] interface {
	// Name returns a stable name of the record type. It is persisted with every
	// dataset, so reopening a dataset with another codec can be detected.
	Name() string
	// Size returns the fixed encoded size of one record in bytes
	Size() int
	// Encode writes v into dst, len(dst) must be Size()
	Encode(dst []byte, v T) error
	// Decode reads one record from src, len(src) must be Size()
	Decode(src []byte) (T, error)
}

// EncodeAll encodes items back to back into a new buffer
func EncodeAll[T comparable](c Codec[T], items []T) ([]byte, error) {
	size := c.Size()
	buf := make([]byte, len(items)*size)
	for i, item := range items {
		if err := c.Encode(buf[i*size:(i+1)*size], item); err != nil {
			return nil, fmt.Errorf("encode item %d: %w", i, err)
		}
	}
	return buf, nil
}

// DecodeAll decodes a buffer of whole records
func DecodeAll[T comparable](c Codec[T], buf []byte) ([]T, error) {
	size := c.Size()
	if len(buf)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes are not a multiple of %d", ErrSize, len(buf), size)
	}
	items := make([]T, len(buf)/size)
	for i := range items {
		item, err := c.Decode(buf[i*size : (i+1)*size])
		if err != nil {
			return nil, fmt.Errorf("decode item %d: %w", i, err)
		}
		items[i] = item
	}
	return items, nil
}
