package reflection

import (
	"github.com/viant/structology/conv"
)

// FromMap fills out (a pointer) from a loosely-typed map, the way parameter
// objects frequently arrive from dynamic callers (foreach-bound maps,
// JSON-decoded request bodies). structology/conv does the decoding rather
// than a hand-rolled JSON round-trip.
func FromMap(values map[string]interface{}, out interface{}) error {
	return conv.NewConverter(conv.DefaultOptions()).Convert(values, out)
}
