// Package cbor encodes and decodes the records kept by the ledger store, by wrapping
// github.com/fxamacker/cbor.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 section 4.2), so that a record always
// serializes to the same bytes and its signature and multihash are stable. The decoder rejects
// duplicate map keys and indefinite lengths.
package cbor

import (
	"github.com/fxamacker/cbor/v2"
)

const MaxArrayElements = 1024 * 64
const MaxMapPairs = 1024

var (
	encOptions = cbor.EncOptions{
		IndefLength: cbor.IndefLengthForbidden,
		Sort:        cbor.SortCoreDeterministic,
		TagsMd:      cbor.TagsForbidden,
	}

	decOptions = cbor.DecOptions{
		IndefLength:      cbor.IndefLengthForbidden,
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: MaxArrayElements,
		MaxMapPairs:      MaxMapPairs,
		TagsMd:           cbor.TagsForbidden,
	}

	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = encOptions.EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = decOptions.DecMode(); err != nil {
		panic(err)
	}
}

// Marshal encodes src into a CBOR-encoded byte slice.
func Marshal(src interface{}) ([]byte, error) {
	return encMode.Marshal(src)
}

// Unmarshal decodes CBOR in data into dst.
func Unmarshal(data []byte, dst interface{}) error {
	return decMode.Unmarshal(data, dst)
}
