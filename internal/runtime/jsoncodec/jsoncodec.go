// Package jsoncodec is the JSON codec shared by the file-backed transports and
// the status endpoint.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var api = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// MarshalLine encodes v followed by a newline, ready to be appended to a
// JSON-lines file.
func MarshalLine(v any) ([]byte, error) {
	b, err := api.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// UnmarshalString decodes a JSON document held in a string column or header.
func UnmarshalString(data string, v any) error {
	return api.UnmarshalFromString(data, v)
}

func Encode(w io.Writer, v any) error {
	return api.NewEncoder(w).Encode(v)
}
