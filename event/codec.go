package event

import (
	"encoding/json"

	"github.com/c360/tradeline/errors"
)

// Marshal encodes a value for transmission on the bus.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WrapInvalid(err, "event", "Marshal", "encode")
	}
	return data, nil
}

// Unmarshal decodes bus data into v.
func Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.WrapInvalid(err, "event", "Unmarshal", "decode")
	}
	return nil
}
