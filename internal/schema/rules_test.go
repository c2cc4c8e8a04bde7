package schema

import (
	"testing"
	"time"
)

func intPtr(i int) *int { return &i }

func TestBuiltinRules(t *testing.T) {
	tests := []struct {
		name    string
		spec    RuleSpec
		input   string
		want    string
		wantErr string
	}{
		{"email ok", RuleSpec{Name: "email"}, "a@b.co", "a@b.co", ""},
		{"email missing domain", RuleSpec{Name: "email"}, "bob@", "", "Invalid email format"},
		{"email with space", RuleSpec{Name: "email"}, "a b@c.de", "", "Invalid email format"},

		{"phone international", RuleSpec{Name: "phone"}, "+1 (555) 010-9999", "+1 (555) 010-9999", ""},
		{"phone trimmed", RuleSpec{Name: "phone"}, " 555.010.9999 ", "555.010.9999", ""},
		{"phone too short", RuleSpec{Name: "phone"}, "12345", "", "Invalid phone number"},
		{"phone letters", RuleSpec{Name: "phone"}, "555-CALL-NOW", "", "Invalid phone number"},

		{"numeric plain", RuleSpec{Name: "numeric"}, "123.45", "123.45", ""},
		{"numeric currency", RuleSpec{Name: "numeric"}, "$1,234.56", "1234.56", ""},
		{"numeric euro", RuleSpec{Name: "numeric"}, "\u20ac99", "99", ""},
		{"numeric accounting negative", RuleSpec{Name: "numeric"}, "(50.00)", "-50.00", ""},
		{"numeric scientific unsupported", RuleSpec{Name: "numeric"}, "1.5e3", "", "Must be a number"},
		{"numeric garbage", RuleSpec{Name: "numeric"}, "12abc", "", "Must be a number"},
		{"numeric double dot", RuleSpec{Name: "numeric"}, "1.2.3", "", "Must be a number"},

		{"integer", RuleSpec{Name: "integer"}, " 42 ", "42", ""},
		{"integer decimal", RuleSpec{Name: "integer"}, "4.2", "", "Must be a whole number"},

		{"date iso", RuleSpec{Name: "date"}, "2024-01-15", "2024-01-15", ""},
		{"date us", RuleSpec{Name: "date"}, "1/5/2024", "2024-01-05", ""},
		{"date long month", RuleSpec{Name: "date"}, "March 3, 2023", "2023-03-03", ""},
		{"date compact", RuleSpec{Name: "date"}, "20240229", "2024-02-29", ""},
		{"date invalid day", RuleSpec{Name: "date"}, "2023-02-30", "", "Invalid date"},

		{"bool yes", RuleSpec{Name: "bool"}, "Yes", "true", ""},
		{"bool zero", RuleSpec{Name: "bool"}, "0", "false", ""},
		{"bool maybe", RuleSpec{Name: "bool"}, "maybe", "", "Must be yes or no"},

		{"enum canonical case", RuleSpec{Name: "enum", Values: []string{"Sales", "Support"}}, "sales", "Sales", ""},
		{"enum miss", RuleSpec{Name: "enum", Values: []string{"Sales", "Support"}}, "HR", "", "Must be one of: Sales, Support"},

		{"regex", RuleSpec{Name: "regex", Pattern: `^\d{5}$`}, "02139", "02139", ""},
		{"regex miss", RuleSpec{Name: "regex", Pattern: `^\d{5}$`}, "2139", "", "Invalid format"},

		{"length ok", RuleSpec{Name: "length", Min: intPtr(2), Max: intPtr(4)}, "abc", "abc", ""},
		{"length counts runes", RuleSpec{Name: "length", Max: intPtr(2)}, "éé", "éé", ""},
		{"length short", RuleSpec{Name: "length", Min: intPtr(2)}, "a", "", "Must be at least 2 characters"},
		{"length long", RuleSpec{Name: "length", Max: intPtr(2)}, "abc", "", "Must be at most 2 characters"},

		{"custom message", RuleSpec{Name: "numeric", Message: "Salary must be a number"}, "lots", "", "Salary must be a number"},
		{"upper", RuleSpec{Name: "UPPER"}, "abc", "ABC", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := BuildRule(tt.spec)
			if err != nil {
				t.Fatalf("BuildRule(%+v) error = %v", tt.spec, err)
			}
			got, err := v.Validate(tt.input)
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Errorf("Validate(%q) err = %v, want %q", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Validate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDate_TwoDigitYear(t *testing.T) {
	original := TwoDigitYearPivot
	defer func() { TwoDigitYearPivot = original }()
	TwoDigitYearPivot = 20

	d := ParseDate("1/2/99")
	if !d.Valid {
		t.Fatal("ParseDate(1/2/99) invalid")
	}
	if d.Time.Year() != 1999 {
		t.Errorf("year = %d, want 1999", d.Time.Year())
	}

	d = ParseDate("3/4/05")
	if !d.Valid || d.Time.Year() != 2005 || d.Time.Month() != time.March {
		t.Errorf("ParseDate(3/4/05) = %v", d.Time)
	}
}

func TestParseNumeric_Value(t *testing.T) {
	n, cleaned := ParseNumeric("(1,000.50)")
	if !n.Valid {
		t.Fatal("ParseNumeric invalid")
	}
	if cleaned != "-1000.50" {
		t.Errorf("cleaned = %q, want -1000.50", cleaned)
	}
	f, err := n.Float64Value()
	if err != nil {
		t.Fatalf("Float64Value() error: %v", err)
	}
	if f.Float64 != -1000.5 {
		t.Errorf("value = %v, want -1000.5", f.Float64)
	}
}

func TestParseNumeric_Empty(t *testing.T) {
	if n, _ := ParseNumeric("  "); n.Valid {
		t.Error("ParseNumeric(blank) should be invalid")
	}
}
