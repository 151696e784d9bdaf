// Package validation sanitizes raw request and response values against
// declarative schemas and normalizes entity lookups.
//
// Two adapters implement the same contract. SchemaAdapter interprets a
// Schema directly. EntityAdapter compiles the same Schema into
// go-playground/validator rules. Handlers receive one of them by
// injection and must behave identically with either.
package validation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/tjfontaine/hipnotes/internal/pipeline"
	"github.com/tjfontaine/hipnotes/internal/storage"
)

// Adapter validates values against schemas and loads required entities.
type Adapter interface {
	// Name identifies the adapter in logs and configuration.
	Name() string

	// Sanitize validates raw against s. It returns a new map holding only
	// the declared keys, coerced to their declared types, with defaults
	// applied. Failures are *pipeline.Error values of kind validation.
	Sanitize(s *Schema, raw map[string]any) (map[string]any, error)

	// Lookup runs load for the entity identified by id. A storage.ErrNotFound
	// from load, or an id that cannot exist, becomes a not_found error.
	Lookup(ctx context.Context, model, id string, load func(context.Context) error) error
}

// FindByIDRequired wraps find so that a missing entity is reported as a
// not_found error through a.
func FindByIDRequired[T any](a Adapter, model string, find func(ctx context.Context, id string) (T, error)) func(ctx context.Context, id string) (T, error) {
	return func(ctx context.Context, id string) (T, error) {
		var out T
		err := a.Lookup(ctx, model, id, func(ctx context.Context) error {
			v, err := find(ctx, id)
			if err != nil {
				return err
			}
			out = v
			return nil
		})
		return out, err
	}
}

// Decode copies a sanitized map into out, a pointer to a struct tagged
// with json names.
func Decode(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func notFound(model string, cause error) error {
	return pipeline.ErrNotFound(model + " not found").WithCause(cause)
}

func lookup(ctx context.Context, model, id string, load func(context.Context) error) error {
	if err := load(ctx); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(model, err)
		}
		return fmt.Errorf("load %s %s: %w", model, id, err)
	}
	return nil
}

// checker reports, for each constrained scalar in values, the first rule
// that fails. values holds already coerced values of fields of s.
type checker interface {
	check(s *Schema, values map[string]any) map[string]Rule
}

func sanitize(c checker, s *Schema, raw map[string]any) (map[string]any, error) {
	out, issues := walk(c, s, raw, "")
	if len(issues) > 0 {
		return nil, pipeline.ErrValidation("Validation failed", issues...)
	}
	return out, nil
}

// walk validates one object level. Issues come back in schema order with
// at most one issue per scalar field.
func walk(c checker, s *Schema, raw map[string]any, prefix string) (map[string]any, []pipeline.Issue) {
	out := make(map[string]any, len(s.Fields))
	byField := make(map[string][]pipeline.Issue)
	scalars := make(map[string]any)
	present := 0

	for _, f := range s.Fields {
		name := join(prefix, f.Name)
		v, ok := raw[f.Name]
		if !ok || v == nil {
			switch {
			case f.hasDefault:
				out[f.Name] = f.def
			case f.required:
				byField[f.Name] = []pipeline.Issue{{Field: name, Message: f.message(RuleRequired)}}
			}
			continue
		}
		present++

		switch f.Type {
		case TypeArray:
			items, issues := walkArray(c, f, v, name)
			if issues != nil {
				byField[f.Name] = issues
				continue
			}
			out[f.Name] = items
		case TypeObject:
			m, isMap := v.(map[string]any)
			if !isMap {
				byField[f.Name] = []pipeline.Issue{{Field: name, Message: f.message(RuleType)}}
				continue
			}
			nested, issues := walk(c, f.elem, m, name)
			if issues != nil {
				byField[f.Name] = issues
				continue
			}
			out[f.Name] = nested
		default:
			cv, ok := coerce(f.Type, v)
			if !ok {
				byField[f.Name] = []pipeline.Issue{{Field: name, Message: f.message(RuleType)}}
				continue
			}
			out[f.Name] = cv
			if f.constrained() {
				scalars[f.Name] = cv
			}
		}
	}

	if len(scalars) > 0 {
		for fieldName, rule := range c.check(s, scalars) {
			f := s.field(fieldName)
			byField[fieldName] = []pipeline.Issue{{Field: join(prefix, fieldName), Message: f.message(rule)}}
		}
	}

	var issues []pipeline.Issue
	for _, f := range s.Fields {
		issues = append(issues, byField[f.Name]...)
	}
	if len(issues) == 0 && s.atLeastOne != "" && present == 0 {
		issues = append(issues, pipeline.Issue{Field: prefix, Message: s.atLeastOne})
	}
	return out, issues
}

func walkArray(c checker, f *Field, v any, name string) ([]map[string]any, []pipeline.Issue) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, []pipeline.Issue{{Field: name, Message: f.message(RuleType)}}
	}
	items := make([]map[string]any, 0, rv.Len())
	var issues []pipeline.Issue
	for i := 0; i < rv.Len(); i++ {
		itemName := join(name, strconv.Itoa(i))
		m, ok := rv.Index(i).Interface().(map[string]any)
		if !ok {
			issues = append(issues, pipeline.Issue{Field: itemName, Message: "Expected object"})
			continue
		}
		item, itemIssues := walk(c, f.elem, m, itemName)
		issues = append(issues, itemIssues...)
		items = append(items, item)
	}
	return items, issues
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func (s *Schema) field(name string) *Field {
	for _, f := range s.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (f *Field) constrained() bool {
	return f.min != nil || f.max != nil || f.pattern != nil || len(f.oneOf) > 0
}

// coerce converts v to the Go type used for typ: string, int or time.Time.
func coerce(typ Type, v any) (any, bool) {
	switch typ {
	case TypeString:
		s, ok := v.(string)
		return s, ok
	case TypeInt:
		return coerceInt(v)
	case TypeTime:
		switch t := v.(type) {
		case time.Time:
			return t, true
		case *time.Time:
			if t == nil {
				return nil, false
			}
			return *t, true
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, false
			}
			return parsed, true
		}
	}
	return nil, false
}

func coerceInt(v any) (any, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return integral(n)
	case string:
		n = strings.TrimSpace(n)
		if n == "" {
			// A blank query value counts as zero and fails range rules.
			return 0, true
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil, false
		}
		return integral(f)
	}
	return nil, false
}

func integral(f float64) (any, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return nil, false
	}
	return int(f), true
}
