package codec

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type kmer [3]uint64

type mixed struct {
	A int8
	N int32
	X float32
	B bool
}

type skipping struct {
	V     uint16
	Cache string `borsh_skip:"true"`
}

// roundTrip encodes and decodes a value with the given codec
func roundTrip[T comparable](t *testing.T, c Codec[T], v T) {
	t.Helper()
	buf := make([]byte, c.Size())
	if err := c.Encode(buf, v); err != nil {
		t.Fatalf("%s: encode %v failed: %v", c.Name(), v, err)
	}
	got, err := c.Decode(buf)
	if err != nil {
		t.Fatalf("%s: decode failed: %v", c.Name(), err)
	}
	if got != v {
		t.Errorf("%s: expected %v, got %v", c.Name(), v, got)
	}
}

func TestNativeRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 2, 1 << 40, ^uint64(0)} {
		roundTrip(t, Uint64(), v)
	}
	for _, v := range []uint32{0, 7, ^uint32(0)} {
		roundTrip(t, Uint32(), v)
	}
	for _, v := range []int64{0, -1, 1 << 62, -1 << 63} {
		roundTrip(t, Int64(), v)
	}
}

func TestNativeLayout(t *testing.T) {
	buf := make([]byte, 8)
	if err := Uint64().Encode(buf, 0x0102030405060708); err != nil {
		t.Fatal(err)
	}
	want := []byte{8, 7, 6, 5, 4, 3, 2, 1}
	if diff := cmp.Diff(want, buf); diff != "" {
		t.Errorf("unexpected little endian layout (-want +got):\n%s", diff)
	}
}

func TestBorshRoundTrip(t *testing.T) {
	kc := MustBorsh[kmer]()
	if kc.Size() != 24 {
		t.Errorf("Expected kmer size 24, got %d", kc.Size())
	}
	roundTrip(t, kc, kmer{1, 2, 3})
	roundTrip(t, kc, kmer{^uint64(0), 0, 42})

	mc := MustBorsh[mixed]()
	if mc.Size() != 10 {
		t.Errorf("Expected mixed size 10, got %d", mc.Size())
	}
	roundTrip(t, mc, mixed{A: -3, N: 1 << 20, X: 1.5, B: true})

	sc := MustBorsh[skipping]()
	if sc.Size() != 2 {
		t.Errorf("Expected skipping size 2, got %d", sc.Size())
	}
	roundTrip(t, sc, skipping{V: 513})
}

func TestBorshRejectsVariableLayout(t *testing.T) {
	errs := map[string]error{}
	_, errs["string"] = Borsh[string]()
	_, errs["int"] = Borsh[int]()
	_, errs["pointer"] = Borsh[*uint64]()
	_, errs["struct with string"] = Borsh[struct{ S string }]()
	_, errs["unexported field"] = Borsh[struct{ a uint8 }]()
	_, errs["empty struct"] = Borsh[struct{}]()

	for name, err := range errs {
		if err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestSizeMismatch(t *testing.T) {
	if err := Uint64().Encode(make([]byte, 4), 1); !errors.Is(err, ErrSize) {
		t.Errorf("Expected ErrSize for short encode buffer, got %v", err)
	}
	if _, err := Uint32().Decode(make([]byte, 8)); !errors.Is(err, ErrSize) {
		t.Errorf("Expected ErrSize for long decode buffer, got %v", err)
	}
	if _, err := MustBorsh[kmer]().Decode(make([]byte, 8)); !errors.Is(err, ErrSize) {
		t.Errorf("Expected ErrSize for borsh decode buffer, got %v", err)
	}
	if _, err := DecodeAll(Uint64(), make([]byte, 12)); !errors.Is(err, ErrSize) {
		t.Errorf("Expected ErrSize for partial record, got %v", err)
	}
}

func TestEncodeDecodeAll(t *testing.T) {
	items := []uint64{5, 4, 3, 2, 1}
	buf, err := EncodeAll(Uint64(), items)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != 40 {
		t.Errorf("Expected 40 bytes, got %d", len(buf))
	}
	got, err := DecodeAll(Uint64(), buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(items, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestNamesAreDistinct(t *testing.T) {
	names := map[string]bool{}
	for _, name := range []string{
		Uint64().Name(), Uint32().Name(), Int64().Name(),
		MustBorsh[kmer]().Name(), MustBorsh[mixed]().Name(), MustBorsh[[3]uint64]().Name(),
	} {
		if names[name] {
			t.Errorf("duplicate codec name %s", name)
		}
		names[name] = true
	}
}
