// Package schema holds the per-role import file schemas. Schemas are plain
// data: adding a role means adding a definition here, nothing else branches
// on roles.
package schema

import (
	"school-identity-onboarding/internal/model"
	"school-identity-onboarding/pkg/errors"
)

type FieldKind string

const (
	KindText    FieldKind = "text"
	KindDate    FieldKind = "date"
	KindBoolean FieldKind = "boolean"
	KindGender  FieldKind = "gender"
	KindEmail   FieldKind = "email"
	KindPhone   FieldKind = "phone"
)

type Field struct {
	Name     string    `json:"name"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required"`
	Sample   string    `json:"sample"`
}

func required(name string, kind FieldKind, sample string) Field {
	return Field{Name: name, Kind: kind, Required: true, Sample: sample}
}

func optional(name string, kind FieldKind, sample string) Field {
	return Field{Name: name, Kind: kind, Sample: sample}
}

// Required fields come first; that order is also the template column order.
var definitions = map[model.Role][]Field{
	model.RoleStudent: {
		required("establishment_id", KindText, "E1"),
		required("firstname", KindText, "Jean"),
		required("lastname", KindText, "Dupont"),
		required("birth_date", KindDate, "2012-05-10"),
		required("gender", KindGender, "M"),
		required("level", KindText, "college"),
		optional("account_required", KindBoolean, "true"),
		optional("email", KindEmail, "jean.dupont@example.org"),
		optional("phone", KindPhone, "+33 6 12 34 56 78"),
		optional("class_name", KindText, "6A"),
		optional("external_id", KindText, "STU-0001"),
	},
	model.RoleParent: {
		required("establishment_id", KindText, "E1"),
		required("firstname", KindText, "Marie"),
		required("lastname", KindText, "Dupont"),
		required("email", KindEmail, "marie.dupont@example.org"),
		optional("phone", KindPhone, "+33 6 98 76 54 32"),
		optional("gender", KindGender, "F"),
		optional("student_external_id", KindText, "STU-0001"),
		optional("relationship", KindText, "mother"),
		optional("account_required", KindBoolean, "yes"),
	},
	model.RoleTeacher: {
		required("establishment_id", KindText, "E1"),
		required("firstname", KindText, "Paul"),
		required("lastname", KindText, "Martin"),
		required("email", KindEmail, "paul.martin@example.org"),
		optional("phone", KindPhone, "01 23 45 67 89"),
		optional("gender", KindGender, "M"),
		optional("birth_date", KindDate, "1980-09-01"),
		optional("subjects", KindText, "maths"),
		optional("account_required", KindBoolean, "1"),
	},
	model.RoleAdminStaff: {
		required("establishment_id", KindText, "E1"),
		required("firstname", KindText, "Claire"),
		required("lastname", KindText, "Bernard"),
		required("email", KindEmail, "claire.bernard@example.org"),
		required("function", KindText, "secretary"),
		optional("phone", KindPhone, "01 98 76 54 32"),
		optional("gender", KindGender, "F"),
		optional("account_required", KindBoolean, "true"),
	},
}

// Schema is the immutable column contract for one role.
type Schema struct {
	Role            model.Role
	Required        []string
	OptionalAllowed []string

	fields []Field
	byName map[string]Field
}

func Lookup(role model.Role) (Schema, error) {
	defs, ok := definitions[role]
	if !ok {
		return Schema{}, errors.ErrUnknownRole
	}

	s := Schema{
		Role:   role,
		fields: append([]Field(nil), defs...),
		byName: make(map[string]Field, len(defs)),
	}
	for _, f := range defs {
		if f.Required {
			s.Required = append(s.Required, f.Name)
		}
		s.OptionalAllowed = append(s.OptionalAllowed, f.Name)
		s.byName[f.Name] = f
	}
	return s, nil
}

// MustLookup is Lookup for roles known at compile time.
func MustLookup(role model.Role) Schema {
	s, err := Lookup(role)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the field definitions in declaration order.
func (s Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

func (s Schema) Field(name string) (Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

func (s Schema) IsRequired(name string) bool {
	f, ok := s.byName[name]
	return ok && f.Required
}
