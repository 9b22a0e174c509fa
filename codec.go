package dbx

import (
	"fmt"
	"math"
	"reflect"
	"sync"
	"time"
)

// FieldCodec overrides the default per-kind conversion rules for one column.
// Hooks are the mechanism for backend-declared column types that disagree
// with the Go field type, e.g. a time.Time stored in a text column.
type FieldCodec interface {
	// Encode converts the (possibly pointer) struct field into a Value.
	Encode(src reflect.Value) (Value, error)

	// Decode writes v into the addressable struct field dst.
	Decode(v Value, dst reflect.Value) error
}

// Codec converts entities to and from FieldMaps using reflection over the
// entity's own fields. No per-type registration or generated code is
// involved; a struct type is usable the moment it is declared.
//
// Fields bind by `db:"name"` tag first, otherwise by lower-cased field name.
// `db:"-"` omits a field; anonymous structs flatten, and `db:",inline"`
// forces flattening for named nested structs. Pointer fields model
// optionality: nil encodes to Null and Null decodes to nil.
//
// Per-type field indexes are cached in a sync.Map, so reflection walks the
// type once per process.
type Codec struct {
	indexCache sync.Map // reflect.Type -> *entityIndex
	hooks      map[string]FieldCodec
	loose      bool
}

// CodecOption configures a Codec at construction.
type CodecOption func(*Codec)

// WithFieldCodec installs a hook for one column name (lower-case). The hook
// takes precedence over the default per-kind rule in both directions.
func WithFieldCodec(column string, fc FieldCodec) CodecOption {
	return func(c *Codec) { c.hooks[toLowerAscii(column)] = fc }
}

// WithLooseFields makes RowToEntity drop row columns the entity does not
// declare instead of failing with ErrUnknownField. Missing required fields
// still fail with ErrMissingField.
func WithLooseFields() CodecOption {
	return func(c *Codec) { c.loose = true }
}

func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{hooks: make(map[string]FieldCodec)}
	for _, o := range opts {
		o(c)
	}
	return c
}

// --- package-level lazy default codec ---

var (
	defaultCodec     *Codec
	defaultCodecOnce sync.Once
)

// DefaultCodec returns the shared hook-free Codec.
func DefaultCodec() *Codec {
	defaultCodecOnce.Do(func() { defaultCodec = NewCodec() })
	return defaultCodec
}

// EntityToMap enumerates the entity's fields in declaration order and
// produces one Value per field. entity must be a struct or pointer to one.
func (c *Codec) EntityToMap(entity any) (*FieldMap, error) {
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("%w: nil entity", ErrTypeMismatch)
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct || rv.Type() == timeType {
		return nil, fmt.Errorf("%w: entity must be a struct, got %s", ErrTypeMismatch, rv.Type())
	}

	idx := c.index(rv.Type())
	m := NewFieldMap()
	for _, f := range idx.fields {
		fv, present := fieldByPath(rv, f.path)
		var v Value
		if !present {
			v = Null() // nil embedded pointer on the way down
		} else if fc := c.hooks[f.name]; fc != nil {
			var err error
			if v, err = fc.Encode(fv); err != nil {
				return nil, fmt.Errorf("field %q: %w", f.name, err)
			}
		} else {
			var err error
			if v, err = encodeValue(fv); err != nil {
				return nil, fmt.Errorf("field %q: %w", f.name, err)
			}
		}
		if err := m.Set(f.name, v); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RowToEntity reconstructs a T from a decoded row. Every declared field
// must be present in the row (ErrMissingField otherwise); row columns the
// type does not declare are ErrUnknownField unless the codec is loose.
func RowToEntity[T any](c *Codec, row *FieldMap) (T, error) {
	var zero T
	rt := reflect.TypeOf((*T)(nil)).Elem()
	if rt.Kind() != reflect.Struct || rt == timeType {
		return zero, fmt.Errorf("%w: entity must be a struct, got %s", ErrTypeMismatch, rt)
	}
	idx := c.index(rt)

	// Column names arrive as the driver reported them; normalize the same
	// way the index normalizes field names.
	norm := make(map[string]Value, row.Len())
	for _, k := range row.Keys() {
		v, _ := row.Get(k)
		nk := normalizeColAscii(k)
		if !c.loose {
			if _, ok := idx.byName[nk]; !ok {
				return zero, fmt.Errorf("%w: %q", ErrUnknownField, k)
			}
		}
		norm[nk] = v
	}

	rv := reflect.New(rt)
	root := rv.Elem()
	for _, f := range idx.fields {
		v, ok := norm[f.name]
		if !ok {
			return zero, fmt.Errorf("%w: %q", ErrMissingField, f.name)
		}
		dst := fieldByPathAlloc(root, f.path)
		if fc := c.hooks[f.name]; fc != nil {
			if err := fc.Decode(v, dst); err != nil {
				return zero, fmt.Errorf("field %q: %w", f.name, err)
			}
			continue
		}
		if err := decodeValue(v, dst); err != nil {
			return zero, fmt.Errorf("field %q: %w", f.name, err)
		}
	}
	return root.Interface().(T), nil
}

// ---------------- Entity indexing & tags ----------------

type entityField struct {
	name string // normalized column name
	path []int  // struct index path, pointers allowed in the middle
}

type entityIndex struct {
	fields []entityField
	byName map[string]struct{}
}

func (c *Codec) index(rt reflect.Type) *entityIndex {
	if v, ok := c.indexCache.Load(rt); ok {
		return v.(*entityIndex)
	}
	idx := buildEntityIndex(rt)
	c.indexCache.Store(rt, idx)
	return idx
}

func buildEntityIndex(rt reflect.Type) *entityIndex {
	idx := &entityIndex{byName: make(map[string]struct{})}

	var walk func(t reflect.Type, base []int, forceInline bool)
	walk = func(t reflect.Type, base []int, forceInline bool) {
		t = derefPtr(t)
		if t.Kind() != reflect.Struct {
			return
		}
		n := t.NumField()
		for i := 0; i < n; i++ {
			sf := t.Field(i)
			if sf.PkgPath != "" && !sf.Anonymous { // unexported, non-anonymous
				continue
			}
			tag := sf.Tag.Get("db")
			name, inline, omit := parseTag(tag)
			if omit {
				continue
			}
			ft := sf.Type
			path := append(append([]int(nil), base...), i)

			if inline || (sf.Anonymous && (forceInline || tag == "")) {
				if isStructType(ft) && derefPtr(ft) != timeType {
					walk(ft, path, inline)
					continue
				}
			}
			if name == "" {
				name = sf.Name
			}
			lc := toLowerAscii(name)
			if _, ok := idx.byName[lc]; !ok {
				idx.byName[lc] = struct{}{}
				idx.fields = append(idx.fields, entityField{name: lc, path: path})
			}
		}
	}
	walk(rt, nil, false)
	return idx
}

// parseTag supports: "-", "col", ",inline", "col,inline", "inline,col".
func parseTag(tag string) (name string, inline bool, omit bool) {
	if tag == "-" {
		return "", false, true
	}
	if tag == "" {
		return "", false, false
	}
	start := 0
	for i := 0; i <= len(tag); i++ {
		if i == len(tag) || tag[i] == ',' {
			part := tag[start:i]
			if part == "inline" {
				inline = true
			} else if part != "" && name == "" {
				name = part
			}
			start = i + 1
		}
	}
	return name, inline, false
}

// ---------------- Default conversion rules ----------------

var timeType = reflect.TypeOf(time.Time{})

// encodeValue applies the fixed per-kind encoding rules: nil pointer →
// Null, present pointer → inner rule, 64-bit numeric widening, and a loud
// failure for anything the Value model cannot represent.
func encodeValue(rv reflect.Value) (Value, error) {
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Null(), nil
		}
		rv = rv.Elem()
	}
	if rv.Type() == timeType {
		return Time(rv.Interface().(time.Time)), nil
	}
	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: uint value %d overflows int64", ErrTypeMismatch, u)
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.String:
		return Text(rv.String()), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Bytes(rv.Bytes()), nil
		}
	}
	return Value{}, fmt.Errorf("%w: cannot encode Go type %s", ErrTypeMismatch, rv.Type())
}

// decodeValue applies the inverse rules. dst must be addressable. Null only
// decodes into pointer fields; everything else is a mismatch, never a
// silent zero.
func decodeValue(v Value, dst reflect.Value) error {
	if dst.Kind() == reflect.Pointer {
		if v.IsNull() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return decodeValue(v, dst.Elem())
	}
	if v.IsNull() {
		return fmt.Errorf("%w: null into non-optional %s", ErrTypeMismatch, dst.Type())
	}
	if dst.Type() == timeType {
		t, err := v.AsTime()
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	}
	switch dst.Kind() {
	case reflect.Bool:
		b, err := v.AsBool()
		if err != nil {
			return err
		}
		dst.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := v.AsInt()
		if err != nil {
			return err
		}
		if dst.OverflowInt(i) {
			return fmt.Errorf("%w: %d overflows %s", ErrTypeMismatch, i, dst.Type())
		}
		dst.SetInt(i)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, err := v.AsInt()
		if err != nil {
			return err
		}
		if i < 0 || dst.OverflowUint(uint64(i)) {
			return fmt.Errorf("%w: %d overflows %s", ErrTypeMismatch, i, dst.Type())
		}
		dst.SetUint(uint64(i))
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := v.AsFloat()
		if err != nil {
			return err
		}
		if dst.OverflowFloat(f) {
			return fmt.Errorf("%w: %g overflows %s", ErrTypeMismatch, f, dst.Type())
		}
		dst.SetFloat(f)
		return nil
	case reflect.String:
		s, err := v.AsText()
		if err != nil {
			return err
		}
		dst.SetString(s)
		return nil
	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			b, err := v.AsBytes()
			if err != nil {
				return err
			}
			dst.SetBytes(b)
			return nil
		}
	}
	return fmt.Errorf("%w: cannot decode into Go type %s", ErrTypeMismatch, dst.Type())
}

// ---------------- Shipped hooks ----------------

type textTimeCodec struct {
	layout string
}

// TextTime maps a time.Time (or *time.Time) field onto a text column using
// RFC 3339 with nanoseconds. Backends that have no native timestamp type
// (see Dialect.TextTimestamps) need this hook on every timestamp column.
var TextTime FieldCodec = &textTimeCodec{layout: time.RFC3339Nano}

// TextTimeLayout is TextTime with a caller-chosen layout.
func TextTimeLayout(layout string) FieldCodec {
	return &textTimeCodec{layout: layout}
}

func (tc *textTimeCodec) Encode(src reflect.Value) (Value, error) {
	for src.Kind() == reflect.Pointer {
		if src.IsNil() {
			return Null(), nil
		}
		src = src.Elem()
	}
	if src.Type() != timeType {
		return Value{}, fmt.Errorf("%w: TextTime hook on non-time field %s", ErrTypeMismatch, src.Type())
	}
	return Text(src.Interface().(time.Time).UTC().Format(tc.layout)), nil
}

func (tc *textTimeCodec) Decode(v Value, dst reflect.Value) error {
	if dst.Kind() == reflect.Pointer {
		if v.IsNull() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return tc.Decode(v, dst.Elem())
	}
	if dst.Type() != timeType {
		return fmt.Errorf("%w: TextTime hook on non-time field %s", ErrTypeMismatch, dst.Type())
	}
	switch v.Kind() {
	case KindTime:
		// Backend turned out to have a native timestamp after all.
		t, _ := v.AsTime()
		dst.Set(reflect.ValueOf(t))
		return nil
	case KindText:
		s, _ := v.AsText()
		t, err := time.Parse(tc.layout, s)
		if err != nil {
			return fmt.Errorf("%w: %q is not a %s timestamp", ErrTypeMismatch, s, tc.layout)
		}
		dst.Set(reflect.ValueOf(t.UTC()))
		return nil
	default:
		return kindMismatch(KindText, v.Kind())
	}
}

type intBoolCodec struct{}

// IntBool maps a bool (or *bool) field onto an integer 0/1 column. SQLite
// and MySQL report boolean columns as integers, so reading them back would
// otherwise fail the strict kind check.
var IntBool FieldCodec = intBoolCodec{}

func (intBoolCodec) Encode(src reflect.Value) (Value, error) {
	for src.Kind() == reflect.Pointer {
		if src.IsNil() {
			return Null(), nil
		}
		src = src.Elem()
	}
	if src.Kind() != reflect.Bool {
		return Value{}, fmt.Errorf("%w: IntBool hook on non-bool field %s", ErrTypeMismatch, src.Type())
	}
	if src.Bool() {
		return Int(1), nil
	}
	return Int(0), nil
}

func (ib intBoolCodec) Decode(v Value, dst reflect.Value) error {
	if dst.Kind() == reflect.Pointer {
		if v.IsNull() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return ib.Decode(v, dst.Elem())
	}
	if dst.Kind() != reflect.Bool {
		return fmt.Errorf("%w: IntBool hook on non-bool field %s", ErrTypeMismatch, dst.Type())
	}
	switch v.Kind() {
	case KindBool:
		b, _ := v.AsBool()
		dst.SetBool(b)
		return nil
	case KindInt:
		i, _ := v.AsInt()
		if i != 0 && i != 1 {
			return fmt.Errorf("%w: %d is not a boolean", ErrTypeMismatch, i)
		}
		dst.SetBool(i == 1)
		return nil
	default:
		return kindMismatch(KindBool, v.Kind())
	}
}

// ---------------- reflect walkers ----------------

func isStructType(t reflect.Type) bool { return derefPtr(t).Kind() == reflect.Struct }

func derefPtr(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// fieldByPath walks fpath read-only. present is false when a nil pointer is
// crossed before the leaf.
func fieldByPath(root reflect.Value, fpath []int) (v reflect.Value, present bool) {
	v = root
	for _, i := range fpath {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v, true
}

// fieldByPathAlloc walks fpath, allocating nil pointers so the final field
// is addressable.
func fieldByPathAlloc(root reflect.Value, fpath []int) reflect.Value {
	v := root
	for _, i := range fpath {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v
}

// ---------------- Column normalization (ASCII fast-path) ----------------

func normalizeColAscii(s string) string {
	if l := len(s); l >= 2 {
		switch s[0] {
		case '"':
			if s[l-1] == '"' {
				s = s[1 : l-1]
			}
		case '`':
			if s[l-1] == '`' {
				s = s[1 : l-1]
			}
		case '[':
			if s[l-1] == ']' {
				s = s[1 : l-1]
			}
		}
	}
	return toLowerAscii(s)
}

func toLowerAscii(s string) string {
	var need bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			need = true
			break
		}
	}
	if !need {
		return s
	}
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c = c + ('a' - 'A')
		}
		b[i] = c
	}
	return string(b)
}
