package importfile

import (
	"strings"

	"school-identity-onboarding/internal/model"
	"school-identity-onboarding/internal/schema"
)

// ValidateHeaders compares file headers with a role schema. It is a pure
// function of its inputs, so the selection-time and submission-time checks
// always agree. A nil header set means the file could not be read: every
// required column is reported missing.
func ValidateHeaders(headers []string, s schema.Schema) model.HeaderResult {
	if headers == nil {
		return model.HeaderResult{
			OK:      false,
			Missing: append([]string{}, s.Required...),
			Unknown: []string{},
		}
	}

	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[normalizeColumn(h)] = true
	}

	allowed := make(map[string]bool, len(s.OptionalAllowed)+len(s.Required))
	for _, c := range s.OptionalAllowed {
		allowed[normalizeColumn(c)] = true
	}
	for _, c := range s.Required {
		allowed[normalizeColumn(c)] = true
	}

	missing := []string{}
	for _, c := range s.Required {
		if !present[normalizeColumn(c)] {
			missing = append(missing, c)
		}
	}

	unknown := []string{}
	seen := make(map[string]bool)
	for _, h := range headers {
		name := normalizeColumn(h)
		// trailing delimiters leave empty header cells behind
		if name == "" || allowed[name] || seen[name] {
			continue
		}
		seen[name] = true
		unknown = append(unknown, name)
	}

	return model.HeaderResult{
		OK:      len(missing) == 0 && len(unknown) == 0,
		Missing: missing,
		Unknown: unknown,
	}
}

func normalizeColumn(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
