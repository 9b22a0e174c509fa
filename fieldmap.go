package dbx

import "fmt"

// FieldMap is an ordered mapping from column name to Value, representing one
// entity's persisted state for the duration of a single operation. Keys are
// unique; insertion order is preserved so built statements are
// deterministic.
type FieldMap struct {
	keys []string
	vals map[string]Value
}

func NewFieldMap() *FieldMap {
	return &FieldMap{vals: make(map[string]Value)}
}

// Set appends name with v. Setting a name twice is ErrDuplicateField; a
// FieldMap mirrors an entity's own field set, which cannot repeat.
func (m *FieldMap) Set(name string, v Value) error {
	if _, ok := m.vals[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateField, name)
	}
	m.keys = append(m.keys, name)
	m.vals[name] = v
	return nil
}

func (m *FieldMap) Get(name string) (Value, bool) {
	v, ok := m.vals[name]
	return v, ok
}

func (m *FieldMap) Len() int { return len(m.keys) }

// Keys returns the column names in insertion order. The slice is a copy.
func (m *FieldMap) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Values returns the values in insertion order.
func (m *FieldMap) Values() []Value {
	out := make([]Value, len(m.keys))
	for i, k := range m.keys {
		out[i] = m.vals[k]
	}
	return out
}

// Each visits every field in insertion order, stopping at the first error.
func (m *FieldMap) Each(fn func(name string, v Value) error) error {
	for _, k := range m.keys {
		if err := fn(k, m.vals[k]); err != nil {
			return err
		}
	}
	return nil
}

// Fields builds a FieldMap from alternating name, Value arguments:
//
//	m, err := dbx.Fields("id", dbx.Int(1), "email", dbx.Text("a@b"))
func Fields(pairs ...any) (*FieldMap, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dbx: Fields: odd argument count %d", len(pairs))
	}
	m := NewFieldMap()
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dbx: Fields: argument %d is not a string name", i)
		}
		v, ok := pairs[i+1].(Value)
		if !ok {
			return nil, fmt.Errorf("dbx: Fields: argument %d is not a Value", i+1)
		}
		if err := m.Set(name, v); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustFields is Fields for static literals; it panics on malformed input.
func MustFields(pairs ...any) *FieldMap {
	m, err := Fields(pairs...)
	if err != nil {
		panic(err)
	}
	return m
}
