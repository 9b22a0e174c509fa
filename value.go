package dbx

import (
	"bytes"
	"fmt"
	"time"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindText
	KindBytes
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindTime:
		return "time"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is the canonical representation of one stored datum, independent of
// any backend's native type system. Numeric variants are fixed at 64 bits so
// no precision is lost between backends with differing native widths.
// Timestamps are held as instants (UTC); whether a backend stores them as
// integers, native timestamps, or text is that backend adapter's concern.
//
// A Value is immutable once constructed. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	bs   []byte
	t    time.Time
}

func Null() Value            { return Value{} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func Text(s string) Value    { return Value{kind: KindText, s: s} }
func Time(t time.Time) Value { return Value{kind: KindTime, t: t.UTC()} }

// Bytes copies b so later mutation of the caller's slice cannot leak into
// the Value.
func Bytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, bs: cp}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, kindMismatch(KindBool, v.kind)
	}
	return v.b, nil
}

func (v Value) AsInt() (int64, error) {
	if v.kind != KindInt {
		return 0, kindMismatch(KindInt, v.kind)
	}
	return v.i, nil
}

func (v Value) AsFloat() (float64, error) {
	if v.kind != KindFloat {
		return 0, kindMismatch(KindFloat, v.kind)
	}
	return v.f, nil
}

func (v Value) AsText() (string, error) {
	if v.kind != KindText {
		return "", kindMismatch(KindText, v.kind)
	}
	return v.s, nil
}

func (v Value) AsBytes() ([]byte, error) {
	if v.kind != KindBytes {
		return nil, kindMismatch(KindBytes, v.kind)
	}
	cp := make([]byte, len(v.bs))
	copy(cp, v.bs)
	return cp, nil
}

func (v Value) AsTime() (time.Time, error) {
	if v.kind != KindTime {
		return time.Time{}, kindMismatch(KindTime, v.kind)
	}
	return v.t, nil
}

// Equal reports whether two Values hold the same kind and payload.
// Timestamps compare as instants.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindText:
		return v.s == o.s
	case KindBytes:
		return bytes.Equal(v.bs, o.bs)
	case KindTime:
		return v.t.Equal(o.t)
	}
	return false
}

// String renders the Value for logs and error messages. Bytes are shown as
// a length to keep log lines bounded.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindText:
		return fmt.Sprintf("%q", v.s)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.bs))
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	}
	return "invalid"
}

func kindMismatch(want, got Kind) error {
	return fmt.Errorf("%w: want %s, got %s", ErrTypeMismatch, want, got)
}
