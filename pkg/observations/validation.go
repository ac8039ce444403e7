package observations

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"p9e.in/lakewatch/models"
	"p9e.in/lakewatch/pkg/taxonomy"
)

// FieldError is one rejected field of a submission.
type FieldError struct {
	Field         string `json:"field"`
	Message       string `json:"message"`
	RejectedValue any    `json:"rejectedValue,omitempty"`
}

// ValidationErrors aggregates every field error of one submission.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Field + " " + e.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Guard decides from the whole submission whether a rule applies.
type Guard func(root map[string]any) bool

// Check inspects a present value. The returned error text is the message.
type Check func(v any) error

// Rule validates the value found at a dotted path. Numeric segments index
// into arrays.
type Rule struct {
	Field    string
	When     Guard
	Optional bool
	Sanitize func(string) string
	// Checks stop at the first failure.
	Checks []Check
	// Each applies to every element when the value is an array, with Field
	// relative to the element.
	Each []Rule
}

// Validate runs every rule against root and returns the errors in rule
// order. Sanitizers rewrite root in place.
func Validate(root map[string]any, rules []Rule) ValidationErrors {
	var errs ValidationErrors
	for _, r := range rules {
		if r.When != nil && !r.When(root) {
			continue
		}
		errs = append(errs, apply(root, root, "", r)...)
	}
	return errs
}

func apply(root map[string]any, scope any, prefix string, r Rule) ValidationErrors {
	field := join(prefix, r.Field)
	var segs []string
	if r.Field != "" {
		segs = strings.Split(r.Field, ".")
	}
	v, ok := lookup(scope, segs)
	if !ok || v == nil {
		if r.Optional {
			return nil
		}
		return ValidationErrors{{Field: field, Message: "is required"}}
	}

	if s, isString := v.(string); isString && r.Sanitize != nil && len(segs) > 0 {
		v = r.Sanitize(s)
		assign(scope, segs, v)
	}
	for _, c := range r.Checks {
		if err := c(v); err != nil {
			return ValidationErrors{{Field: field, Message: err.Error(), RejectedValue: v}}
		}
	}

	var errs ValidationErrors
	if arr, isArray := v.([]any); isArray {
		for i, elem := range arr {
			for _, sub := range r.Each {
				if sub.When != nil && !sub.When(root) {
					continue
				}
				errs = append(errs, apply(root, elem, field+"."+strconv.Itoa(i), sub)...)
			}
		}
	}
	return errs
}

func join(prefix, field string) string {
	if prefix == "" || field == "" {
		return prefix + field
	}
	return prefix + "." + field
}

func lookup(v any, segs []string) (any, bool) {
	for _, s := range segs {
		switch t := v.(type) {
		case map[string]any:
			next, ok := t[s]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			i, err := strconv.Atoi(s)
			if err != nil || i < 0 || i >= len(t) {
				return nil, false
			}
			v = t[i]
		default:
			return nil, false
		}
	}
	return v, true
}

func assign(v any, segs []string, value any) {
	parent, ok := lookup(v, segs[:len(segs)-1])
	if !ok {
		return
	}
	last := segs[len(segs)-1]
	switch t := parent.(type) {
	case map[string]any:
		t[last] = value
	case []any:
		if i, err := strconv.Atoi(last); err == nil && i >= 0 && i < len(t) {
			t[i] = value
		}
	}
}

// Exists is true when path resolves to a non-null value. Only the key is
// inspected, not its content.
func Exists(path string) Guard {
	segs := strings.Split(path, ".")
	return func(root map[string]any) bool {
		v, ok := lookup(root, segs)
		return ok && v != nil
	}
}

// All is true when every guard is.
func All(guards ...Guard) Guard {
	return func(root map[string]any) bool {
		for _, g := range guards {
			if !g(root) {
				return false
			}
		}
		return true
	}
}

// Sanitizers

// TrimEscape trims surrounding space and escapes HTML.
func TrimEscape(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

// Checks

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// toCode accepts integers, integral floats and integer numerals.
func toCode(v any) (int, bool) {
	switch n := v.(type) {
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	}
}

// Forbidden rejects any value.
func Forbidden(any) error {
	return errors.New("must not be set")
}

func IsObject(v any) error {
	if _, ok := v.(map[string]any); !ok {
		return errors.New("must be an object")
	}
	return nil
}

func IsBool(v any) error {
	if _, ok := v.(bool); !ok {
		return errors.New("must be a boolean")
	}
	return nil
}

func IsString(v any) error {
	if _, ok := v.(string); !ok {
		return errors.New("must be a string")
	}
	return nil
}

func IsNumber(v any) error {
	if _, ok := toFloat(v); !ok {
		return errors.New("must be a number")
	}
	return nil
}

func IsUUID(v any) error {
	s, ok := v.(string)
	if !ok {
		return errors.New("must be a valid id")
	}
	if _, err := uuid.Parse(s); err != nil {
		return errors.New("must be a valid id")
	}
	return nil
}

func IsDate(v any) error {
	s, ok := v.(string)
	if !ok {
		return errors.New("must be a valid date")
	}
	if _, err := models.ParseJSONTime(s); err != nil {
		return errors.New("must be a valid date")
	}
	return nil
}

// Min requires a number not below lo. Non-numbers are left to IsNumber.
func Min(lo float64) Check {
	return func(v any) error {
		if f, ok := toFloat(v); ok && f < lo {
			if lo == 0 {
				return errors.New("must be a non-negative number")
			}
			return fmt.Errorf("must be at least %g", lo)
		}
		return nil
	}
}

// Between requires a number in [lo, hi]. Non-numbers are left to IsNumber.
func Between(lo, hi float64) Check {
	return func(v any) error {
		if f, ok := toFloat(v); ok && (f < lo || f > hi) {
			return fmt.Errorf("must be between %g and %g", lo, hi)
		}
		return nil
	}
}

// CodeIn requires an integer code inside b.
func CodeIn(b taxonomy.Bounds) Check {
	return func(v any) error {
		if c, ok := toCode(v); !ok || !b.Contains(c) {
			return fmt.Errorf("must be between %d and %d", b.Min, b.Max)
		}
		return nil
	}
}

// ArrayLen requires an array of exactly n elements.
func ArrayLen(n int) Check {
	return func(v any) error {
		if arr, ok := v.([]any); !ok || len(arr) != n {
			return fmt.Errorf("must be an array of %s elements", spell(n))
		}
		return nil
	}
}

func NonEmptyArray(v any) error {
	if arr, ok := v.([]any); !ok || len(arr) == 0 {
		return errors.New("must be a non-empty array")
	}
	return nil
}

func IsArray(v any) error {
	if _, ok := v.([]any); !ok {
		return errors.New("must be an array")
	}
	return nil
}

// AnyNumber requires at least one of keys to hold a number.
func AnyNumber(keys ...string) Check {
	return func(v any) error {
		m, _ := v.(map[string]any)
		for _, k := range keys {
			if _, ok := toFloat(m[k]); ok {
				return nil
			}
		}
		return fmt.Errorf("must include a numeric %s", strings.Join(keys, " or "))
	}
}

func spell(n int) string {
	words := []string{"zero", "one", "two", "three", "four"}
	if n >= 0 && n < len(words) {
		return words[n]
	}
	return strconv.Itoa(n)
}
