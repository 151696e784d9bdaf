package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// Type is the value type a field accepts.
type Type string

const (
	TypeString Type = "string"
	TypeInt    Type = "int"
	TypeTime   Type = "time"
	TypeArray  Type = "array"
	TypeObject Type = "object"
)

// Rule names a field constraint. Rules are checked in declaration order of
// these constants and the first failure is reported.
type Rule string

const (
	RuleRequired Rule = "required"
	RuleType     Rule = "type"
	RuleMin      Rule = "min"
	RuleMax      Rule = "max"
	RulePattern  Rule = "pattern"
	RuleOneOf    Rule = "oneOf"
)

// Schema declares the shape of an object.
type Schema struct {
	Name   string
	Fields []*Field

	atLeastOne string
}

// Object declares a schema. Keys not listed in fields are stripped.
func Object(name string, fields ...*Field) *Schema {
	return &Schema{Name: name, Fields: fields}
}

// AtLeastOne requires at least one field to be present, reporting msg
// otherwise. It returns s for chaining.
func (s *Schema) AtLeastOne(msg string) *Schema {
	s.atLeastOne = msg
	return s
}

// Field declares one key of a Schema.
type Field struct {
	Name string
	Type Type

	required   bool
	min, max   *int
	pattern    *regexp.Regexp
	oneOf      []string
	def        any
	hasDefault bool
	elem       *Schema
	messages   map[Rule]string
}

// FieldOption configures a Field.
type FieldOption func(*Field)

func newField(name string, typ Type, opts []FieldOption) *Field {
	f := &Field{Name: name, Type: typ}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// String declares a string field.
func String(name string, opts ...FieldOption) *Field {
	return newField(name, TypeString, opts)
}

// Int declares an integer field. Numeric strings and integral numbers are
// coerced.
func Int(name string, opts ...FieldOption) *Field {
	return newField(name, TypeInt, opts)
}

// Time declares a timestamp field. RFC 3339 strings are coerced.
func Time(name string, opts ...FieldOption) *Field {
	return newField(name, TypeTime, opts)
}

// Array declares a list of objects shaped by elem.
func Array(name string, elem *Schema, opts ...FieldOption) *Field {
	f := newField(name, TypeArray, opts)
	f.elem = elem
	return f
}

// Nested declares an object field shaped by s.
func Nested(name string, s *Schema, opts ...FieldOption) *Field {
	f := newField(name, TypeObject, opts)
	f.elem = s
	return f
}

// Required rejects a missing or null value.
func Required() FieldOption {
	return func(f *Field) { f.required = true }
}

// Min sets the minimum string length or integer value.
func Min(n int) FieldOption {
	return func(f *Field) { f.min = &n }
}

// Max sets the maximum string length or integer value.
func Max(n int) FieldOption {
	return func(f *Field) { f.max = &n }
}

// Pattern requires a string to match expr.
func Pattern(expr string) FieldOption {
	re := regexp.MustCompile(expr)
	return func(f *Field) { f.pattern = re }
}

// OneOf restricts a string to values.
func OneOf(values ...string) FieldOption {
	return func(f *Field) { f.oneOf = values }
}

// Default supplies v when the key is absent.
func Default(v any) FieldOption {
	return func(f *Field) {
		f.def = v
		f.hasDefault = true
	}
}

// Message overrides the issue text reported when rule fails.
func Message(rule Rule, msg string) FieldOption {
	return func(f *Field) {
		if f.messages == nil {
			f.messages = make(map[Rule]string)
		}
		f.messages[rule] = msg
	}
}

// message returns the issue text for rule. Both adapters report through it.
func (f *Field) message(rule Rule) string {
	if msg, ok := f.messages[rule]; ok {
		return msg
	}
	switch rule {
	case RuleRequired:
		return "Required"
	case RuleType:
		switch f.Type {
		case TypeInt:
			return "Expected number"
		case TypeTime:
			return "Expected date"
		default:
			return "Expected " + string(f.Type)
		}
	case RuleMin:
		if f.Type == TypeString {
			return fmt.Sprintf("String must contain at least %d character(s)", *f.min)
		}
		return fmt.Sprintf("Number must be greater than or equal to %d", *f.min)
	case RuleMax:
		if f.Type == TypeString {
			return fmt.Sprintf("String must contain at most %d character(s)", *f.max)
		}
		return fmt.Sprintf("Number must be less than or equal to %d", *f.max)
	case RulePattern:
		return "Invalid"
	case RuleOneOf:
		return "Invalid enum value. Expected " + strings.Join(quoted(f.oneOf), " | ")
	}
	return "Invalid"
}

func quoted(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = "'" + v + "'"
	}
	return out
}

// ObjectIDPattern matches a 24 character hex identifier.
const ObjectIDPattern = `^[0-9a-fA-F]{24}$`

var objectIDRe = regexp.MustCompile(ObjectIDPattern)

// IsObjectID reports whether id is a 24 character hex identifier.
func IsObjectID(id string) bool {
	return objectIDRe.MatchString(id)
}
