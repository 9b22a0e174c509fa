package dbx

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

type Audit struct {
	CreatedAt time.Time `db:"created_at"`
}

type testUser struct {
	ID     int64  `db:"id"`
	Email  string `db:"email"`
	Age    *int64 `db:"age"`
	Admin  bool
	Secret string `db:"-"`
	Blob   []byte `db:"blob"`
	Audit  `db:",inline"`
}

func TestEntityToMapDeclarationOrder(t *testing.T) {
	u := testUser{ID: 1, Email: "a@b", Admin: true, Secret: "hidden", Blob: []byte{9}}
	m, err := DefaultCodec().EntityToMap(u)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"id", "email", "age", "admin", "blob", "created_at"}
	if got := m.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if _, ok := m.Get("secret"); ok {
		t.Error(`db:"-" field was encoded`)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	age := int64(30)
	in := testUser{
		ID:    7,
		Email: "x@y",
		Age:   &age,
		Admin: true,
		Blob:  []byte{1, 2, 3},
		Audit: Audit{CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
	}
	m, err := DefaultCodec().EntityToMap(&in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := RowToEntity[testUser](DefaultCodec(), m)
	if err != nil {
		t.Fatal(err)
	}
	// The omitted field cannot come back.
	in.Secret = ""
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip:\n in  %+v\n out %+v", in, out)
	}
}

func TestNilPointerEncodesNull(t *testing.T) {
	m, err := DefaultCodec().EntityToMap(testUser{ID: 1, Email: "a"})
	if err != nil {
		t.Fatal(err)
	}
	v, ok := m.Get("age")
	if !ok || !v.IsNull() {
		t.Errorf("age = %v, want NULL", v)
	}
}

func TestNullDecodesOnlyIntoPointers(t *testing.T) {
	row := MustFields(
		"id", Null(),
		"email", Text("a"),
		"age", Null(),
		"admin", Bool(false),
		"blob", Bytes(nil),
		"created_at", Time(time.Now()),
	)
	_, err := RowToEntity[testUser](DefaultCodec(), row)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("null into int64 err = %v, want ErrTypeMismatch", err)
	}
}

func TestMissingFieldFails(t *testing.T) {
	row := MustFields("id", Int(1))
	_, err := RowToEntity[testUser](DefaultCodec(), row)
	if !errors.Is(err, ErrMissingField) {
		t.Errorf("err = %v, want ErrMissingField", err)
	}
}

func TestUnknownFieldStrictAndLoose(t *testing.T) {
	row := MustFields(
		"id", Int(1),
		"email", Text("a"),
		"age", Null(),
		"admin", Bool(false),
		"blob", Bytes(nil),
		"created_at", Time(time.Now()),
		"stray", Int(9),
	)
	if _, err := RowToEntity[testUser](DefaultCodec(), row); !errors.Is(err, ErrUnknownField) {
		t.Errorf("strict err = %v, want ErrUnknownField", err)
	}
	loose := NewCodec(WithLooseFields())
	if _, err := RowToEntity[testUser](loose, row); err != nil {
		t.Errorf("loose err = %v, want nil", err)
	}
}

func TestQuotedColumnNamesNormalize(t *testing.T) {
	type row struct {
		ID int64 `db:"id"`
	}
	m := MustFields(`"ID"`, Int(3))
	got, err := RowToEntity[row](DefaultCodec(), m)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != 3 {
		t.Errorf("ID = %d", got.ID)
	}
}

func TestIntOverflowOnDecode(t *testing.T) {
	type row struct {
		N int8 `db:"n"`
	}
	m := MustFields("n", Int(300))
	_, err := RowToEntity[row](DefaultCodec(), m)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("err = %v, want ErrTypeMismatch", err)
	}
}

func TestUintFieldRoundTrip(t *testing.T) {
	type row struct {
		N uint32 `db:"n"`
	}
	m, err := DefaultCodec().EntityToMap(row{N: 4000000000})
	if err != nil {
		t.Fatal(err)
	}
	out, err := RowToEntity[row](DefaultCodec(), m)
	if err != nil {
		t.Fatal(err)
	}
	if out.N != 4000000000 {
		t.Errorf("N = %d", out.N)
	}
}

func TestTextTimeHook(t *testing.T) {
	type event struct {
		At time.Time `db:"at"`
	}
	c := NewCodec(WithFieldCodec("at", TextTime))
	at := time.Date(2024, 6, 2, 8, 30, 0, 123456789, time.UTC)

	m, err := c.EntityToMap(event{At: at})
	if err != nil {
		t.Fatal(err)
	}
	v, _ := m.Get("at")
	if v.Kind() != KindText {
		t.Fatalf("encoded kind = %v, want text", v.Kind())
	}

	out, err := RowToEntity[event](c, m)
	if err != nil {
		t.Fatal(err)
	}
	if !out.At.Equal(at) {
		t.Errorf("At = %v, want %v", out.At, at)
	}

	// A backend with a native timestamp type still decodes.
	native := MustFields("at", Time(at))
	out, err = RowToEntity[event](c, native)
	if err != nil || !out.At.Equal(at) {
		t.Errorf("native decode = %v, %v", out.At, err)
	}
}

func TestIntBoolHook(t *testing.T) {
	type flag struct {
		On bool `db:"on"`
	}
	c := NewCodec(WithFieldCodec("on", IntBool))

	m, err := c.EntityToMap(flag{On: true})
	if err != nil {
		t.Fatal(err)
	}
	v, _ := m.Get("on")
	if !v.Equal(Int(1)) {
		t.Fatalf("encoded = %v, want 1", v)
	}

	out, err := RowToEntity[flag](c, MustFields("on", Int(0)))
	if err != nil || out.On {
		t.Errorf("decode 0 = %v, %v", out.On, err)
	}
	_, err = RowToEntity[flag](c, MustFields("on", Int(5)))
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("decode 5 err = %v, want ErrTypeMismatch", err)
	}
}

func TestEntityMustBeStruct(t *testing.T) {
	if _, err := DefaultCodec().EntityToMap(42); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("int entity err = %v", err)
	}
	var p *testUser
	if _, err := DefaultCodec().EntityToMap(p); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("nil pointer entity err = %v", err)
	}
}
