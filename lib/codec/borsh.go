package codec

import (
	"fmt"
	"reflect"

	"github.com/near/borsh-go"
)

type borshCodec[T comparable] struct {
	name string
	size int
}

// Borsh returns a codec for fixed layout records (structs and arrays of bools,
// sized integers and floats) using the borsh binary format. Types without a
// fixed encoded size are rejected.
func Borsh[T comparable]() (Codec[T], error) {
	typ := reflect.TypeFor[T]()
	size, err := fixedSize(typ)
	if err != nil {
		return nil, fmt.Errorf("codec: %s has no fixed layout: %w", typ, err)
	}
	if size == 0 {
		return nil, fmt.Errorf("codec: %s encodes to zero bytes", typ)
	}
	return &borshCodec[T]{
		name: "borsh:" + typ.String(),
		size: size,
	}, nil
}

// MustBorsh is like Borsh but panics if the type has no fixed layout
func MustBorsh[T comparable]() Codec[T] {
	c, err := Borsh[T]()
	if err != nil {
		panic(err)
	}
	return c
}

func (c *borshCodec[T]) Name() string { return c.name }

func (c *borshCodec[T]) Size() int { return c.size }

func (c *borshCodec[T]) Encode(dst []byte, v T) error {
	if len(dst) != c.size {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrSize, c.name, c.size, len(dst))
	}
	data, err := borsh.Serialize(v)
	if err != nil {
		return fmt.Errorf("codec: encode %s: %w", c.name, err)
	}
	if len(data) != c.size {
		return fmt.Errorf("%w: %s encoded to %d bytes, expected %d", ErrSize, c.name, len(data), c.size)
	}
	copy(dst, data)
	return nil
}

func (c *borshCodec[T]) Decode(src []byte) (T, error) {
	var v T
	if len(src) != c.size {
		return v, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrSize, c.name, c.size, len(src))
	}
	if err := borsh.Deserialize(&v, src); err != nil {
		return v, fmt.Errorf("codec: decode %s: %w", c.name, err)
	}
	return v, nil
}

// fixedSize returns the borsh encoded size of a type, if it does not depend on the value
func fixedSize(typ reflect.Type) (int, error) {
	switch typ.Kind() {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return 1, nil
	case reflect.Int16, reflect.Uint16:
		return 2, nil
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 4, nil
	case reflect.Int64, reflect.Uint64, reflect.Float64:
		return 8, nil
	case reflect.Array:
		elem, err := fixedSize(typ.Elem())
		if err != nil {
			return 0, err
		}
		return typ.Len() * elem, nil
	case reflect.Struct:
		size := 0
		for i := 0; i < typ.NumField(); i++ {
			field := typ.Field(i)
			if field.Tag.Get("borsh_skip") == "true" {
				continue
			}
			if !field.IsExported() {
				return 0, fmt.Errorf("unexported field %s", field.Name)
			}
			n, err := fixedSize(field.Type)
			if err != nil {
				return 0, fmt.Errorf("field %s: %w", field.Name, err)
			}
			size += n
		}
		return size, nil
	default:
		// int, uint and uintptr depend on the platform, the rest on the value
		return 0, fmt.Errorf("kind %s", typ.Kind())
	}
}
