package dbx

import (
	"errors"
	"testing"
)

var testDialect = Dialect{Placeholder: PlaceholderQuestion}

func TestBuildInsert(t *testing.T) {
	op := Op{
		Table:  "users",
		Kind:   OpInsert,
		Values: MustFields("id", Int(1), "email", Text("a@b")),
	}
	query, args, err := BuildStatement(testDialect, op)
	if err != nil {
		t.Fatal(err)
	}
	want := "INSERT INTO users (id, email) VALUES (?, ?)"
	if query != want {
		t.Errorf("query = %s, want %s", query, want)
	}
	if len(args) != 2 || !args[0].Equal(Int(1)) || !args[1].Equal(Text("a@b")) {
		t.Errorf("args = %v", args)
	}
}

func TestBuildInsertDollar(t *testing.T) {
	d := Dialect{Placeholder: PlaceholderDollar, Quote: '"'}
	op := Op{Table: "users", Kind: OpInsert, Values: MustFields("id", Int(1), "email", Text("a"))}
	query, _, err := BuildStatement(d, op)
	if err != nil {
		t.Fatal(err)
	}
	want := `INSERT INTO "users" ("id", "email") VALUES ($1, $2)`
	if query != want {
		t.Errorf("query = %s, want %s", query, want)
	}
}

func TestBuildSelect(t *testing.T) {
	op := Op{
		Table:   "users",
		Kind:    OpSelect,
		Where:   Cond{"b": Int(2), "a": Int(1)},
		OrderBy: []string{"id DESC"},
		Limit:   10,
		Offset:  5,
	}
	query, args, err := BuildStatement(testDialect, op)
	if err != nil {
		t.Fatal(err)
	}
	// Predicate keys render sorted, so the statement text is deterministic.
	want := "SELECT * FROM users WHERE a = ? AND b = ? ORDER BY id DESC LIMIT 10 OFFSET 5"
	if query != want {
		t.Errorf("query = %s, want %s", query, want)
	}
	if len(args) != 2 || !args[0].Equal(Int(1)) || !args[1].Equal(Int(2)) {
		t.Errorf("args = %v", args)
	}
}

func TestBuildSelectColumns(t *testing.T) {
	op := Op{Table: "users", Kind: OpSelect, Columns: []string{"id", "email"}}
	query, args, err := BuildStatement(testDialect, op)
	if err != nil {
		t.Fatal(err)
	}
	if want := "SELECT id, email FROM users"; query != want {
		t.Errorf("query = %s, want %s", query, want)
	}
	if len(args) != 0 {
		t.Errorf("args = %v", args)
	}
}

func TestBuildSelectNullPredicate(t *testing.T) {
	op := Op{Table: "users", Kind: OpSelect, Where: Cond{"deleted_at": Null(), "org": Int(3)}}
	query, args, err := BuildStatement(testDialect, op)
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT * FROM users WHERE deleted_at IS NULL AND org = ?"
	if query != want {
		t.Errorf("query = %s, want %s", query, want)
	}
	if len(args) != 1 || !args[0].Equal(Int(3)) {
		t.Errorf("args = %v", args)
	}
}

func TestBuildUpdate(t *testing.T) {
	op := Op{
		Table:  "users",
		Kind:   OpUpdate,
		Values: MustFields("email", Text("new@b"), "age", Int(31)),
		Where:  Cond{"id": Int(7)},
	}
	query, args, err := BuildStatement(testDialect, op)
	if err != nil {
		t.Fatal(err)
	}
	want := "UPDATE users SET email = ?, age = ? WHERE id = ?"
	if query != want {
		t.Errorf("query = %s, want %s", query, want)
	}
	if len(args) != 3 || !args[2].Equal(Int(7)) {
		t.Errorf("args = %v", args)
	}
}

func TestBuildUpdateNumberedPlaceholders(t *testing.T) {
	d := Dialect{Placeholder: PlaceholderDollar}
	op := Op{
		Table:  "users",
		Kind:   OpUpdate,
		Values: MustFields("email", Text("e")),
		Where:  Cond{"id": Int(1)},
	}
	query, _, err := BuildStatement(d, op)
	if err != nil {
		t.Fatal(err)
	}
	// The predicate numbering continues after the SET list.
	want := "UPDATE users SET email = $1 WHERE id = $2"
	if query != want {
		t.Errorf("query = %s, want %s", query, want)
	}
}

func TestBuildDelete(t *testing.T) {
	op := Op{Table: "users", Kind: OpDelete, Where: Cond{"id": Int(1)}}
	query, args, err := BuildStatement(testDialect, op)
	if err != nil {
		t.Fatal(err)
	}
	if want := "DELETE FROM users WHERE id = ?"; query != want {
		t.Errorf("query = %s, want %s", query, want)
	}
	if len(args) != 1 {
		t.Errorf("args = %v", args)
	}
}

func TestEmptyPredicateRefused(t *testing.T) {
	upd := Op{Table: "users", Kind: OpUpdate, Values: MustFields("a", Int(1))}
	if _, _, err := BuildStatement(testDialect, upd); !errors.Is(err, ErrEmptyPredicate) {
		t.Errorf("update err = %v, want ErrEmptyPredicate", err)
	}
	del := Op{Table: "users", Kind: OpDelete}
	if _, _, err := BuildStatement(testDialect, del); !errors.Is(err, ErrEmptyPredicate) {
		t.Errorf("delete err = %v, want ErrEmptyPredicate", err)
	}
}

func TestBuildRejectsEmptyTable(t *testing.T) {
	if _, _, err := BuildStatement(testDialect, Op{Kind: OpSelect}); err == nil {
		t.Error("empty table accepted")
	}
}
