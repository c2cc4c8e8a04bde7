package schema

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestNew_RejectsBadKeys(t *testing.T) {
	tests := []struct {
		name string
		cols []Column
	}{
		{"empty key", []Column{{Key: " "}}},
		{"duplicate key", []Column{{Key: "a"}, {Key: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New("x", tt.cols); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

func TestNew_EmptySchemaAllowed(t *testing.T) {
	s, err := New("empty", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if got := NewActiveSet(s).Columns(); len(got) != 0 {
		t.Errorf("active columns = %v, want none", got)
	}
}

func TestActiveSet_Defaults(t *testing.T) {
	s := Contacts()
	got := keysOf(NewActiveSet(s).Columns())
	want := []string{"firstName", "lastName", "email"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("active = %v, want %v", got, want)
	}
}

func TestActiveSet_NoDefaultsMeansAll(t *testing.T) {
	s := MustNew("plain", []Column{{Key: "a"}, {Key: "b"}})
	got := keysOf(NewActiveSet(s).Columns())
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("active = %v, want [a b]", got)
	}
}

func TestActiveSet_Toggle(t *testing.T) {
	a := NewActiveSet(Contacts())

	if err := a.Toggle("phone", true); err != nil {
		t.Fatal(err)
	}
	var phone Column
	for _, c := range a.Columns() {
		if c.Key == "phone" {
			phone = c
		}
	}
	if phone.Key == "" {
		t.Fatal("phone not active after toggle on")
	}
	if !phone.Required {
		t.Error("toggled-on column should be required")
	}

	if err := a.Toggle("phone", false); err != nil {
		t.Fatal(err)
	}
	if a.IsActive("phone") {
		t.Error("phone still active after toggle off")
	}

	// declared-required default columns keep their flag
	if err := a.Toggle("email", true); err != nil {
		t.Fatal(err)
	}
	for _, c := range a.Columns() {
		if c.Key == "email" && !c.Required {
			t.Error("email lost required flag")
		}
	}

	if err := a.Toggle("nope", true); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("Toggle(unknown) err = %v, want ErrUnknownColumn", err)
	}
}

func TestActiveSet_CloneIsIndependent(t *testing.T) {
	a := NewActiveSet(Contacts())
	b := a.Clone()
	if err := b.Toggle("salary", true); err != nil {
		t.Fatal(err)
	}
	if a.IsActive("salary") {
		t.Error("toggle on clone leaked into original")
	}
}

func TestChain(t *testing.T) {
	v := Chain(mustRule("trim"), mustRule("lower"), mustRule("email"))
	got, err := v.Validate("  Bob@Example.COM ")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != "bob@example.com" {
		t.Errorf("Validate() = %q, want %q", got, "bob@example.com")
	}

	if _, err := v.Validate("bob@"); err == nil || err.Error() != "Invalid email format" {
		t.Errorf("Validate(bob@) err = %v", err)
	}
	if Chain() != nil {
		t.Error("Chain() of nothing should be nil")
	}
}

func TestColumn_ValidateWithoutValidator(t *testing.T) {
	c := Column{Key: "x"}
	got, err := c.Validate(" anything ")
	if err != nil || got != " anything " {
		t.Errorf("Validate() = %q, %v", got, err)
	}
}

func TestParse(t *testing.T) {
	doc := `
name: staff
columns:
  - key: id
    required: true
    default: true
    rules: [integer]
  - key: code
    label: Code
    rules:
      - upper
      - name: regex
        pattern: '^[A-Z]{3}$'
        message: Code must be three letters
`
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if s.Name != "staff" || s.Len() != 2 {
		t.Fatalf("schema = %s with %d columns", s.Name, s.Len())
	}

	id, _ := s.Column("id")
	if id.Label != "id" {
		t.Errorf("label defaulted to %q, want key", id.Label)
	}
	if got, err := id.Validate("1,024"); err != nil || got != "1024" {
		t.Errorf("id.Validate = %q, %v", got, err)
	}

	code, _ := s.Column("code")
	if got, err := code.Validate("abc"); err != nil || got != "ABC" {
		t.Errorf("code.Validate(abc) = %q, %v", got, err)
	}
	if _, err := code.Validate("abcd"); err == nil || err.Error() != "Code must be three letters" {
		t.Errorf("code.Validate(abcd) err = %v", err)
	}
	if !reflect.DeepEqual(code.Rules, []string{"upper", "regex"}) {
		t.Errorf("Rules = %v", code.Rules)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"no columns", "name: x\n", "no columns"},
		{"unknown rule", "columns:\n  - key: a\n    rules: [shout]\n", "unknown rule"},
		{"unknown field", "columns:\n  - key: a\n    colour: red\n", "colour"},
		{"enum without values", "columns:\n  - key: a\n    rules: [enum]\n", "values are required"},
		{"bad regex", "columns:\n  - key: a\n    rules:\n      - name: regex\n        pattern: '('\n", "regex"},
		{"duplicate key", "columns:\n  - key: a\n  - key: a\n", "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("Parse() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err, tt.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte("name: t\ncolumns:\n  - key: a\n    default: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if _, ok := s.Column("a"); !ok {
		t.Error("column a missing")
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile(missing) expected error")
	}
}

func TestLoadFile_RepositorySchema(t *testing.T) {
	s, err := LoadFile(filepath.Join("..", "..", "schemas", "contacts.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	email, ok := s.Column("email")
	if !ok {
		t.Fatal("email column missing")
	}
	if _, err := email.Validate("bob@"); err == nil || err.Error() != "Invalid email format" {
		t.Errorf("email.Validate(bob@) err = %v", err)
	}
}

func TestRuleNames(t *testing.T) {
	names := RuleNames()
	for _, want := range []string{"bool", "date", "email", "enum", "integer", "length", "numeric", "phone", "regex", "trim"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Errorf("rule %q not registered", want)
		}
	}
}

func TestRegisterRule_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("RegisterRule(duplicate) should panic")
		}
	}()
	RegisterRule("email", func(RuleSpec) (Validator, error) { return nil, nil })
}

func keysOf(cols []Column) []string {
	keys := make([]string, len(cols))
	for i, c := range cols {
		keys[i] = c.Key
	}
	return keys
}
