package messaging

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Value is serialized message payload. It owns its bytes, so it can be safely
// transferred between threads after creation.
type Value struct {
	data []byte
}

// Serialize makes structured clone of v. Values that can't be encoded fail with ErrDataClone.
func Serialize(v interface{}) (*Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(ErrDataClone, "%T: %v", v, err)
	}
	return &Value{data}, nil
}

func MustSerialize(v interface{}) *Value {
	val, err := Serialize(v)
	if err != nil {
		panic(err)
	}
	return val
}

func (v *Value) Deserialize(into interface{}) error {
	return errors.WithStack(json.Unmarshal(v.data, into))
}

func (v *Value) Bytes() []byte {
	return append([]byte(nil), v.data...)
}

func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	return string(v.data)
}
