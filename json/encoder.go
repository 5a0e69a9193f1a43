// Wraps Velocidex/json so ordered dicts are written in insertion
// order. Exported mapping rows and the manifest depend on that order.
package json

import (
	"bytes"

	"github.com/Velocidex/json"
	"github.com/Velocidex/ordereddict"
)

func newEncOpts() *json.EncOpts {
	opts := json.NewEncOpts()
	opts.WithCallback(ordereddict.NewDict(), encodeDict)
	return opts
}

func encodeDict(v interface{}, opts *json.EncOpts) ([]byte, error) {
	dict, ok := v.(*ordereddict.Dict)
	if !ok {
		return nil, json.EncoderCallbackSkip
	}

	out := &bytes.Buffer{}
	out.WriteByte('{')
	for idx, k := range dict.Keys() {
		if idx > 0 {
			out.WriteByte(',')
		}

		key, err := json.MarshalWithOptions(k, opts)
		if err != nil {
			return nil, err
		}
		out.Write(key)
		out.WriteByte(':')

		value, _ := dict.Get(k)
		serialized, err := json.MarshalWithOptions(value, opts)
		if err != nil {
			return nil, err
		}
		out.Write(serialized)
	}
	out.WriteByte('}')

	return out.Bytes(), nil
}
