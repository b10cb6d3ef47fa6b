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

// Package size provides a human-readable byte-quantity type used across the
// module's configuration surfaces: paged-buffer page size, output-stream
// memory bounds, log file rotation thresholds and buffered-reader sizes.
package size

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Size is a byte quantity backed by an unsigned 64 bit integer. Arithmetic
// helpers saturate at math.MaxUint64 rather than wrapping.
type Size uint64

const (
	SizeNul  Size = 0
	SizeUnit Size = 1

	SizeKilo = SizeUnit * 1000
	SizeMega = SizeKilo * 1000
	SizeGiga = SizeMega * 1000
	SizeTera = SizeGiga * 1000
	SizePeta = SizeTera * 1000
	SizeExa  = SizePeta * 1000
)

var units = []struct {
	suffix string
	size   Size
}{
	{"E", SizeExa},
	{"P", SizePeta},
	{"T", SizeTera},
	{"G", SizeGiga},
	{"M", SizeMega},
	{"K", SizeKilo},
}

// binary suffix aliases accepted by Parse, interpreted with the same
// decimal scale as their SI counterpart: this package does not distinguish
// KiB from KB, only the string spelling used in configuration documents.
var binaryAliases = map[string]Size{
	"Ki": SizeKilo,
	"Mi": SizeMega,
	"Gi": SizeGiga,
	"Ti": SizeTera,
	"Pi": SizePeta,
	"Ei": SizeExa,
}

func SizeFromInt64(v int64) Size {
	if v < 0 {
		return SizeNul
	}
	return Size(v)
}

func SizeFromFloat64(v float64) Size {
	if v < 0 {
		return SizeNul
	}
	if v >= math.MaxUint64 {
		return Size(math.MaxUint64)
	}
	return Size(math.Ceil(v))
}

func toFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case Size:
		return float64(n)
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

func (s Size) Int() int       { return int(s) }
func (s Size) Int32() int32   { return int32(s) }
func (s Size) Int64() int64   { return int64(s) }
func (s Size) Uint() uint     { return uint(s) }
func (s Size) Uint32() uint32 { return uint32(s) }
func (s Size) Uint64() uint64 { return uint64(s) }
func (s Size) Float32() float32 {
	return float32(s)
}
func (s Size) Float64() float64 {
	return float64(s)
}

// Unit returns the largest SI unit that divides the size evenly, SizeUnit
// when the size is smaller than SizeKilo or does not divide evenly.
func (s Size) Unit() Size {
	for _, u := range units {
		if s >= u.size && uint64(s)%uint64(u.size) == 0 {
			return u.size
		}
	}
	return SizeUnit
}

// Code returns the suffix letter for the size's Unit(), empty for SizeUnit.
func (s Size) Code() string {
	u := s.Unit()
	for _, e := range units {
		if e.size == u {
			return e.suffix
		}
	}
	return ""
}

func (s Size) KiloBytes() float64 { return float64(s) / float64(SizeKilo) }
func (s Size) MegaBytes() float64 { return float64(s) / float64(SizeMega) }
func (s Size) GigaBytes() float64 { return float64(s) / float64(SizeGiga) }
func (s Size) TeraBytes() float64 { return float64(s) / float64(SizeTera) }
func (s Size) PetaBytes() float64 { return float64(s) / float64(SizePeta) }
func (s Size) ExaBytes() float64  { return float64(s) / float64(SizeExa) }

// Floor rounds the size down to the nearest multiple of unit.
func (s Size) Floor(unit Size) Size {
	if unit == 0 {
		return s
	}
	return s - Size(uint64(s)%uint64(unit))
}

// Format renders the size using the given unit suffix pattern, e.g. "%.2f
// %s" produces "1.50 M" for a 1.5 SizeMega value.
func (s Size) Format(pattern string) string {
	u := s.Unit()
	val := float64(s) / float64(u)
	suffix := s.Code()
	return fmt.Sprintf(pattern, val, suffix)
}

func (s Size) String() string {
	if s == SizeNul {
		return "0"
	}

	u := s.Unit()
	if u == SizeUnit {
		return strconv.FormatUint(uint64(s), 10)
	}

	val := float64(s) / float64(u)
	code := s.Code()

	if val == math.Trunc(val) {
		return fmt.Sprintf("%d%s", int64(val), code)
	}
	return fmt.Sprintf("%.2f%s", val, code)
}

// Mul multiplies the size in place by v, rounding up (ceil) and saturating
// at math.MaxUint64. Negative multipliers are treated as zero.
func (s *Size) Mul(v interface{}) {
	_ = s.MulErr(v)
}

// MulErr behaves like Mul but additionally reports whether the result
// overflowed and was saturated.
func (s *Size) MulErr(v interface{}) error {
	f := toFloat64(v)
	if f < 0 {
		f = 0
	}

	res := math.Ceil(float64(*s) * f)
	if res >= math.MaxUint64 {
		*s = Size(math.MaxUint64)
		return fmt.Errorf("size: multiplication overflowed uint64 range")
	}

	*s = Size(res)
	return nil
}

// Div divides the size in place by v, rounding up (ceil).
func (s *Size) Div(v interface{}) {
	_ = s.DivErr(v)
}

func (s *Size) DivErr(v interface{}) error {
	f := toFloat64(v)
	if f == 0 {
		return fmt.Errorf("size: division by zero")
	}

	res := math.Ceil(float64(*s) / f)
	if res < 0 {
		res = 0
	}
	if res >= math.MaxUint64 {
		*s = Size(math.MaxUint64)
		return fmt.Errorf("size: division overflowed uint64 range")
	}

	*s = Size(res)
	return nil
}

// Add adds v to the size in place, saturating at math.MaxUint64.
func (s *Size) Add(v interface{}) {
	_ = s.AddErr(v)
}

func (s *Size) AddErr(v interface{}) error {
	f := toFloat64(v)
	res := float64(*s) + f

	if res >= math.MaxUint64 {
		*s = Size(math.MaxUint64)
		return fmt.Errorf("size: addition overflowed uint64 range")
	}
	if res < 0 {
		res = 0
	}

	*s = Size(res)
	return nil
}

// Sub subtracts v from the size in place, floored at zero.
func (s *Size) Sub(v interface{}) {
	_ = s.SubErr(v)
}

func (s *Size) SubErr(v interface{}) error {
	f := toFloat64(v)
	res := float64(*s) - f

	if res < 0 {
		*s = SizeNul
		return fmt.Errorf("size: subtraction underflowed below zero")
	}

	*s = Size(res)
	return nil
}

// Parse reads a string such as "16K", "4Mi", "1.5G" or a bare integer byte
// count into a Size.
func Parse(s string) (Size, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SizeNul, nil
	}

	for suffix, unit := range binaryAliases {
		if strings.HasSuffix(s, suffix) {
			numPart := strings.TrimSuffix(s, suffix)
			f, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, fmt.Errorf("size: invalid numeric value %q: %w", numPart, err)
			}
			return SizeFromFloat64(f * float64(unit)), nil
		}
	}

	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			numPart := strings.TrimSuffix(s, u.suffix)
			f, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, fmt.Errorf("size: invalid numeric value %q: %w", numPart, err)
			}
			return SizeFromFloat64(f * float64(u.size)), nil
		}
	}

	s = strings.TrimSuffix(s, "B")

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("size: cannot parse %q as a size: %w", s, err)
	}

	return SizeFromFloat64(f), nil
}
