package parse

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	codeRe = regexp.MustCompile(`^EQ-(\d{4})-\d{4}$`)
	nameRe = regexp.MustCompile(`^[a-zA-Z0-9\s\-_]+$`)
)

// EquipmentTypes are the accepted equipment types.
var EquipmentTypes = []string{"bomba", "compresor", "motor", "generador", "turbina"}

// codeYearSpan is how many years back an equipment code may be dated.
const codeYearSpan = 5

var earliestInstall = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

// ValidationError lists the invalid fields of an input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// EquipmentCode validates an equipment code of the form EQ-YYYY-NNNN whose year lies within
// the last five years, the current year included.
func EquipmentCode(raw string, now time.Time) (string, error) {
	code := strings.TrimSpace(raw)
	m := codeRe.FindStringSubmatch(code)
	if m == nil {
		return "", fmt.Errorf("equipment code %q does not match EQ-YYYY-NNNN", raw)
	}
	year, _ := strconv.Atoi(m[1])
	current := now.Year()
	if year < current-codeYearSpan || year > current {
		return "", fmt.Errorf("equipment code year %d outside %d-%d", year, current-codeYearSpan, current)
	}
	return code, nil
}

// EquipmentName validates a display name: 3 to 100 letters, digits, spaces, dashes or
// underscores.
func EquipmentName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	if n < 3 || n > 100 {
		return "", errors.New("name must be between 3 and 100 characters")
	}
	if !nameRe.MatchString(name) {
		return "", errors.New("name may only contain letters, digits, spaces, dashes and underscores")
	}
	return name, nil
}

// EquipmentType normalises and validates an equipment type.
func EquipmentType(raw string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(raw))
	for _, known := range EquipmentTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("type must be one of %s", strings.Join(EquipmentTypes, ", "))
}

// InstallDate validates an installation date: not in the future and after 1990-01-01.
func InstallDate(d, now time.Time) error {
	if d.After(now) {
		return errors.New("installation date cannot be in the future")
	}
	if !d.After(earliestInstall) {
		return errors.New("installation date must be after 1990-01-01")
	}
	return nil
}

// EquipmentInput is the raw input of a new piece of equipment.
type EquipmentInput struct {
	Code        string
	Name        string
	Type        string
	Location    string
	Description string
	InstalledAt *time.Time
}

// Equipment validates every field of in and returns the normalised input. All invalid fields
// are reported in one ValidationError.
func Equipment(in EquipmentInput, now time.Time) (EquipmentInput, error) {
	out := in
	fields := make(map[string]string)

	if in.Code != "" {
		code, err := EquipmentCode(in.Code, now)
		if err != nil {
			fields["code"] = err.Error()
		}
		out.Code = code
	}
	name, err := EquipmentName(in.Name)
	if err != nil {
		fields["name"] = err.Error()
	}
	out.Name = name

	typ, err := EquipmentType(in.Type)
	if err != nil {
		fields["type"] = err.Error()
	}
	out.Type = typ

	out.Location = strings.TrimSpace(in.Location)
	if out.Location == "" {
		fields["location"] = "location is required"
	} else if utf8.RuneCountInString(out.Location) > 100 {
		fields["location"] = "location must be at most 100 characters"
	}
	if utf8.RuneCountInString(in.Description) > 500 {
		fields["description"] = "description must be at most 500 characters"
	}
	if in.InstalledAt != nil {
		if err := InstallDate(*in.InstalledAt, now); err != nil {
			fields["installed_at"] = err.Error()
		}
	}

	if len(fields) > 0 {
		return EquipmentInput{}, &ValidationError{Fields: fields}
	}
	return out, nil
}
