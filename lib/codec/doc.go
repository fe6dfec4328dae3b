// Package codec maps typed records to fixed size byte spans. Storage backends
// only ever see encoded records, collections use a Codec to translate.
//
// Implementations:
//
//   - Uint64, Uint32, Int64: native integers in little endian byte order.
//   - Borsh: any struct or array built from bools, sized integers and floats,
//     encoded with the borsh format (github.com/near/borsh-go). The encoded size
//     is derived from the type once and checked on every Encode.
//
// Thread Safety:
//
//	All codecs are stateless and safe for concurrent use.
//
// Usage:
//
//	type kmer [3]uint64
//	c := codec.MustBorsh[kmer]()
//	buf := make([]byte, c.Size())
//	_ = c.Encode(buf, kmer{1, 2, 3})
package codec
