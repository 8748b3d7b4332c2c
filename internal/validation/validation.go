// Package validation checks decoded JSON payloads against declarative field rules.
package validation

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

type Type string

const (
	TypeString Type = "string"
	TypeNumber Type = "number"
)

// Rule constrains a single field. Zero values mean "no constraint"; Min and
// Max only apply when HasMin and HasMax are set.
type Rule struct {
	Type     Type
	Required bool
	MinLen   int
	MaxLen   int
	Pattern  *regexp.Regexp
	HasMin   bool
	Min      float64
	HasMax   bool
	Max      float64
	Integer  bool
	Enum     []string
}

// Field binds a rule to a payload key.
type Field struct {
	Name string
	Rule Rule
}

// Schema is an ordered list of fields. Errors are reported in schema order.
type Schema []Field

// Partial returns a copy of s with every field optional.
func (s Schema) Partial() Schema {
	out := make(Schema, len(s))
	for i, f := range s {
		f.Rule.Required = false
		out[i] = f
	}
	return out
}

func (s Schema) has(name string) bool {
	for _, f := range s {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Result is the outcome of Validate. Data holds only fields that passed.
type Result struct {
	Valid  bool
	Errors []string
	Data   map[string]any
}

// Validate checks data against schema. Keys not in the schema are errors.
func Validate(data map[string]any, schema Schema) Result {
	res := Result{Data: map[string]any{}}

	for _, f := range schema {
		value, present := data[f.Name]
		errs := validateField(f.Name, value, f.Rule)
		res.Errors = append(res.Errors, errs...)
		if len(errs) == 0 && present && !isEmpty(value) {
			res.Data[f.Name] = value
		}
	}

	var unknown []string
	for k := range data {
		if !schema.has(k) {
			unknown = append(unknown, k)
		}
	}
	slices.Sort(unknown)
	for _, k := range unknown {
		res.Errors = append(res.Errors, "field not allowed: "+k)
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func validateField(name string, value any, r Rule) []string {
	if isEmpty(value) {
		if r.Required {
			return []string{name + " is required"}
		}
		return nil
	}

	var errs []string
	switch r.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return []string{name + " must be a string"}
		}
		n := utf8.RuneCountInString(s)
		if r.MinLen > 0 && n < r.MinLen {
			errs = append(errs, fmt.Sprintf("%s must be at least %d characters", name, r.MinLen))
		}
		if r.MaxLen > 0 && n > r.MaxLen {
			errs = append(errs, fmt.Sprintf("%s must be at most %d characters", name, r.MaxLen))
		}
		if r.Pattern != nil && !r.Pattern.MatchString(s) {
			errs = append(errs, name+" contains invalid characters")
		}
		if len(r.Enum) > 0 && !slices.Contains(r.Enum, s) {
			errs = append(errs, fmt.Sprintf("%s must be one of: %s", name, strings.Join(r.Enum, ", ")))
		}
	case TypeNumber:
		n, ok := value.(float64)
		if !ok || math.IsNaN(n) {
			return []string{name + " must be a valid number"}
		}
		if r.HasMin && n < r.Min {
			errs = append(errs, fmt.Sprintf("%s must be greater than or equal to %s", name, fmtNum(r.Min)))
		}
		if r.HasMax && n > r.Max {
			errs = append(errs, fmt.Sprintf("%s must be less than or equal to %s", name, fmtNum(r.Max)))
		}
		if r.Integer && n != math.Trunc(n) {
			errs = append(errs, name+" must be an integer")
		}
	}
	return errs
}

func fmtNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var ErrInvalidID = errors.New("id must be a positive integer")

// ParseID parses a path id. Only plain positive decimal integers are accepted.
func ParseID(raw string) (int, error) {
	if raw == "" || strings.TrimLeft(raw, "0123456789") != "" {
		return 0, ErrInvalidID
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}
