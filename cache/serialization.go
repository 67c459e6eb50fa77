package cache

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CBOR modes. Encoding is canonical so equal entries produce equal bytes;
// decoding is bounded so a corrupted or hostile backend value cannot
// exhaust memory.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

//nolint:gochecknoinits // CBOR modes must exist before any store is used
func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoding mode: %v", err))
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: 10000,
		MaxMapPairs:      10000,
		MaxNestedLevels:  16,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoding mode: %v", err))
	}
}

// EncodeEntry serializes an entry for byte-oriented backends.
func EncodeEntry(e *Entry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("cbor marshal failed: nil entry")
	}
	data, err := encMode.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("cbor marshal failed: %w", err)
	}
	return data, nil
}

// DecodeEntry is the inverse of EncodeEntry.
func DecodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := decMode.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("cbor unmarshal failed: %w", err)
	}
	return &e, nil
}
