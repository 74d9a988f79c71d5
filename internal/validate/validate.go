// Package validate runs declarative per-route field rules over sanitized
// request fields. Errors accumulate in rule declaration order; a failing
// check never stops the remaining checks for the same field.
package validate

import (
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
)

type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Check inspects a single field value. A nil result means the check passed.
type Check func(value string) *Error

type Rule struct {
	Field  string
	Checks []Check
	// Group runs against the whole field map; used for cross-field
	// predicates such as contribution totals.
	Group func(fields map[string]string) []Error
}

func Field(name string, checks ...Check) Rule {
	return Rule{Field: name, Checks: checks}
}

func Group(fn func(fields map[string]string) []Error) Rule {
	return Rule{Group: fn}
}

type RuleSet []Rule

// Apply evaluates every rule against the field map and returns the full
// ordered error list. An empty result means the request may proceed.
func (rs RuleSet) Apply(fields map[string]string) []Error {
	var errs []Error
	for _, rule := range rs {
		if rule.Group != nil {
			errs = append(errs, rule.Group(fields)...)
			continue
		}
		value := fields[rule.Field]
		for _, check := range rule.Checks {
			if e := check(value); e != nil {
				errs = append(errs, Error{Field: rule.Field, Message: e.Message})
			}
		}
	}
	return errs
}

func Fail(field, message string) *Error {
	return &Error{Field: field, Message: message}
}

func Length(min, max int, message string) Check {
	return func(v string) *Error {
		if len(v) < min || len(v) > max {
			return &Error{Message: message}
		}
		return nil
	}
}

func Match(rx *regexp.Regexp, message string) Check {
	return func(v string) *Error {
		if !rx.MatchString(v) {
			return &Error{Message: message}
		}
		return nil
	}
}

func NotBlank(message string) Check {
	return func(v string) *Error {
		if strings.TrimSpace(v) == "" {
			return &Error{Message: message}
		}
		return nil
	}
}

func Numeric(message string) Check {
	return func(v string) *Error {
		if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			return &Error{Message: message}
		}
		return nil
	}
}

// Range bounds a numeric field. A value that fails to parse is left to the
// Numeric check; Range stays silent so the two compose without duplicating.
func Range(min, max float64, message string) Check {
	return func(v string) *Error {
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		if n < min || n > max {
			return &Error{Message: message}
		}
		return nil
	}
}

func Email(message string) Check {
	return func(v string) *Error {
		addr, err := mail.ParseAddress(strings.TrimSpace(v))
		if err != nil || addr.Address != strings.TrimSpace(v) {
			return &Error{Message: message}
		}
		return nil
	}
}

// Custom wraps a predicate so domain rules slot into the same ordered list.
func Custom(fn func(value string) error) Check {
	return func(v string) *Error {
		if err := fn(v); err != nil {
			return &Error{Message: err.Error()}
		}
		return nil
	}
}

// Num parses a field for group predicates; missing or malformed fields
// read as zero the way the original form handling coerced them.
func Num(fields map[string]string, key string) float64 {
	n, err := strconv.ParseFloat(strings.TrimSpace(fields[key]), 64)
	if err != nil {
		return 0
	}
	return n
}

// FieldString renders a decoded JSON leaf for rule checks. JSON numbers
// arrive as float64 and are formatted without exponent noise.
func FieldString(body map[string]any, key string) string {
	v, ok := body[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
