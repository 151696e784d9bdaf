package validation

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// EntityAdapter compiles schemas into go-playground/validator rules, the
// way entity definitions carry their own constraints. Compiled rules are
// cached per schema.
type EntityAdapter struct {
	validate *validator.Validate

	mu       sync.RWMutex
	rules    map[*Schema]map[string]string
	patterns []*regexp.Regexp
	index    map[*regexp.Regexp]int
}

var _ Adapter = (*EntityAdapter)(nil)

// NewEntityAdapter returns the entity schema adapter.
func NewEntityAdapter() *EntityAdapter {
	a := &EntityAdapter{
		validate: validator.New(),
		rules:    make(map[*Schema]map[string]string),
		index:    make(map[*regexp.Regexp]int),
	}
	// Registration happens before the adapter is shared.
	_ = a.validate.RegisterValidation("pattern", a.matchPattern)
	_ = a.validate.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		return IsObjectID(fl.Field().String())
	})
	return a
}

func (a *EntityAdapter) Name() string {
	return "entity"
}

func (a *EntityAdapter) Sanitize(s *Schema, raw map[string]any) (map[string]any, error) {
	return sanitize(a, s, raw)
}

// Lookup rejects ids that are not entity identifiers without calling load.
func (a *EntityAdapter) Lookup(ctx context.Context, model, id string, load func(context.Context) error) error {
	if err := a.validate.Var(id, "required,objectid"); err != nil {
		return notFound(model, err)
	}
	return lookup(ctx, model, id, load)
}

func (a *EntityAdapter) check(s *Schema, values map[string]any) map[string]Rule {
	compiled := a.compile(s)
	rules := make(map[string]any, len(values))
	for name := range values {
		if tag, ok := compiled[name]; ok {
			rules[name] = tag
		}
	}

	failed := make(map[string]Rule)
	for name, err := range a.validate.ValidateMap(values, rules) {
		failed[name] = ruleFor(err)
	}
	return failed
}

func ruleFor(err any) Rule {
	var verrs validator.ValidationErrors
	if e, ok := err.(error); ok && errors.As(e, &verrs) && len(verrs) > 0 {
		switch verrs[0].Tag() {
		case "min":
			return RuleMin
		case "max":
			return RuleMax
		case "pattern":
			return RulePattern
		case "oneof":
			return RuleOneOf
		}
	}
	return RuleType
}

// compile returns the validator tag for every constrained scalar of s.
func (a *EntityAdapter) compile(s *Schema) map[string]string {
	a.mu.RLock()
	compiled, ok := a.rules[s]
	a.mu.RUnlock()
	if ok {
		return compiled
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if compiled, ok := a.rules[s]; ok {
		return compiled
	}
	compiled = make(map[string]string)
	for _, f := range s.Fields {
		if tag := a.tag(f); tag != "" {
			compiled[f.Name] = tag
		}
	}
	a.rules[s] = compiled
	return compiled
}

// tag builds the rule list for f. Callers hold mu.
func (a *EntityAdapter) tag(f *Field) string {
	if f.Type != TypeString && f.Type != TypeInt {
		return ""
	}
	var parts []string
	if f.min != nil {
		parts = append(parts, "min="+strconv.Itoa(*f.min))
	}
	if f.max != nil {
		parts = append(parts, "max="+strconv.Itoa(*f.max))
	}
	if f.Type == TypeString {
		if f.pattern != nil {
			idx, ok := a.index[f.pattern]
			if !ok {
				idx = len(a.patterns)
				a.patterns = append(a.patterns, f.pattern)
				a.index[f.pattern] = idx
			}
			parts = append(parts, "pattern="+strconv.Itoa(idx))
		}
		if len(f.oneOf) > 0 {
			parts = append(parts, "oneof="+strings.Join(f.oneOf, " "))
		}
	}
	return strings.Join(parts, ",")
}

// matchPattern backs the "pattern" tag; its parameter indexes the
// registered expressions.
func (a *EntityAdapter) matchPattern(fl validator.FieldLevel) bool {
	idx, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if idx < 0 || idx >= len(a.patterns) {
		return false
	}
	return a.patterns[idx].MatchString(fl.Field().String())
}
