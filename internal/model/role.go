package model

import (
	"strings"

	"school-identity-onboarding/pkg/errors"
)

type Role string

const (
	RoleStudent    Role = "student"
	RoleParent     Role = "parent"
	RoleTeacher    Role = "teacher"
	RoleAdminStaff Role = "admin_staff"
)

func Roles() []Role {
	return []Role{RoleStudent, RoleParent, RoleTeacher, RoleAdminStaff}
}

func ParseRole(s string) (Role, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, r := range Roles() {
		if string(r) == normalized {
			return r, nil
		}
	}
	return "", errors.ErrUnknownRole
}

func (r Role) String() string {
	return string(r)
}
