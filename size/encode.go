/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package size

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

func (s Size) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Size) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s Size) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(s))
	return b, nil
}

func (s *Size) UnmarshalBinary(data []byte) error {
	if len(data) != 8 {
		return fmt.Errorf("size: invalid binary length %d, want 8", len(data))
	}
	*s = Size(binary.BigEndian.Uint64(data))
	return nil
}

func (s Size) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Size) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case float64:
		*s = SizeFromFloat64(v)
		return nil
	default:
		return fmt.Errorf("size: unsupported JSON node type %T", raw)
	}
}

func (s Size) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

func (s *Size) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case int:
		*s = Size(v)
		return nil
	case int64:
		*s = Size(v)
		return nil
	case float64:
		*s = SizeFromFloat64(v)
		return nil
	default:
		return fmt.Errorf("size: unsupported YAML node type %T", raw)
	}
}

func (s Size) MarshalTOML() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Size) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case int64:
		*s = Size(v)
		return nil
	default:
		return fmt.Errorf("size: unsupported TOML node type %T", data)
	}
}

func (s Size) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(s.String())
}

func (s *Size) UnmarshalCBOR(data []byte) error {
	var str string
	if err := cbor.Unmarshal(data, &str); err != nil {
		return err
	}
	return s.UnmarshalText([]byte(str))
}

// Marshal and Unmarshal are convenience aliases over the JSON codec, used by
// callers that store a Size through a generic io.Writer/io.Reader pair
// without committing to a specific serialization format.
func (s Size) Marshal() ([]byte, error) {
	return s.MarshalJSON()
}

func (s *Size) Unmarshal(data []byte) error {
	return s.UnmarshalJSON(data)
}
