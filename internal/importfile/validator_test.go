package importfile

import (
	"strings"
	"testing"

	"school-identity-onboarding/internal/model"
	"school-identity-onboarding/internal/schema"
)

const studentHeader = "establishment_id;firstname;lastname;birth_date;gender;level;account_required"

func validateStudent(t *testing.T, rows ...string) []model.ValidationError {
	t.Helper()
	parsed := Parse(studentHeader + "\n" + strings.Join(rows, "\n"))
	return NewRowValidator().ValidateRows(parsed, schema.MustLookup(model.RoleStudent))
}

func TestValidateRows_ValidFile(t *testing.T) {
	errs := validateStudent(t,
		"E1;Jean;Dupont;2012-05-10;M;college;true",
		"E1;Marie;Curie;2011-01-02;f;lycee;NO",
	)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateRows_MissingLastname(t *testing.T) {
	errs := validateStudent(t, "E1;Jean;;2012-05-10;M;college;true")
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	if errs[0].Line != 2 {
		t.Fatalf("line = %d, want 2", errs[0].Line)
	}
	if errs[0].Message != "missing required field: lastname" {
		t.Fatalf("message = %q", errs[0].Message)
	}
}

func TestValidateRows_BadDate(t *testing.T) {
	errs := validateStudent(t, "E1;Jean;Dupont;10-05-2012;M;college;true")
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	if errs[0].Field != "birth_date" || !strings.Contains(errs[0].Message, "invalid date") {
		t.Fatalf("unexpected error %+v", errs[0])
	}
}

func TestValidateRows_CollectsEveryViolationInRow(t *testing.T) {
	errs := validateStudent(t,
		"E1;Jean;Dupont;2012-05-10;M;college;true",
		"E1;Jean;;2012/05/10;Z;college;true",
	)
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %v", errs)
	}
	fields := map[string]bool{}
	for _, e := range errs {
		if e.Line != 3 {
			t.Fatalf("line = %d, want 3", e.Line)
		}
		fields[e.Field] = true
	}
	for _, f := range []string{"lastname", "birth_date", "gender"} {
		if !fields[f] {
			t.Fatalf("missing error for %s in %v", f, errs)
		}
	}
}

func TestValidateRows_OptionalFormats(t *testing.T) {
	header := studentHeader + ";email;phone"
	cases := []struct {
		name  string
		tail  string
		field string
	}{
		{"bad email", ";not-an-email;", "email"},
		{"letters in phone", ";;06 12 AB 56", "phone"},
		{"short phone", ";;12 34", "phone"},
		{"bad boolean", "", "account_required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			flag := "true"
			if tc.field == "account_required" {
				flag = "maybe"
			}
			row := "E1;Jean;Dupont;2012-05-10;M;college;" + flag + tc.tail
			parsed := Parse(header + "\n" + row)
			errs := NewRowValidator().ValidateRows(parsed, schema.MustLookup(model.RoleStudent))
			if len(errs) != 1 || errs[0].Field != tc.field {
				t.Fatalf("expected one %s error, got %v", tc.field, errs)
			}
		})
	}
}

func TestValidateRows_AcceptsPhoneWithLeadingPlus(t *testing.T) {
	parsed := Parse(studentHeader + ";phone\nE1;Jean;Dupont;2012-05-10;M;college;1;+33 (0)6-12-34-56-78")
	errs := NewRowValidator().ValidateRows(parsed, schema.MustLookup(model.RoleStudent))
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateRows_ShortRowTreatsMissingCellsAsEmpty(t *testing.T) {
	errs := validateStudent(t, "E1;Jean;Dupont;2012-05-10")
	if len(errs) != 2 {
		t.Fatalf("expected gender and level errors, got %v", errs)
	}
}
