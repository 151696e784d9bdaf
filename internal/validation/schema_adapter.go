package validation

import (
	"context"
	"slices"
	"unicode/utf8"
)

// SchemaAdapter interprets schemas directly and performs no I/O of its own.
type SchemaAdapter struct{}

var _ Adapter = (*SchemaAdapter)(nil)

// NewSchemaAdapter returns the standalone schema adapter.
func NewSchemaAdapter() *SchemaAdapter {
	return &SchemaAdapter{}
}

func (a *SchemaAdapter) Name() string {
	return "schema"
}

func (a *SchemaAdapter) Sanitize(s *Schema, raw map[string]any) (map[string]any, error) {
	return sanitize(a, s, raw)
}

func (a *SchemaAdapter) Lookup(ctx context.Context, model, id string, load func(context.Context) error) error {
	return lookup(ctx, model, id, load)
}

func (a *SchemaAdapter) check(s *Schema, values map[string]any) map[string]Rule {
	failed := make(map[string]Rule)
	for name, v := range values {
		if rule, ok := checkField(s.field(name), v); !ok {
			failed[name] = rule
		}
	}
	return failed
}

func checkField(f *Field, v any) (Rule, bool) {
	var size int
	str, isString := v.(string)
	switch {
	case isString:
		size = utf8.RuneCountInString(str)
	default:
		n, ok := v.(int)
		if !ok {
			return "", true
		}
		size = n
	}

	if f.min != nil && size < *f.min {
		return RuleMin, false
	}
	if f.max != nil && size > *f.max {
		return RuleMax, false
	}
	if isString && f.pattern != nil && !f.pattern.MatchString(str) {
		return RulePattern, false
	}
	if isString && len(f.oneOf) > 0 && !slices.Contains(f.oneOf, str) {
		return RuleOneOf, false
	}
	return "", true
}
