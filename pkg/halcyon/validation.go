package halcyon

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Validate checks the model's attributes against its type's rules. Rules are
// evaluated one attribute at a time so that missing nested maps report the
// leaf field instead of failing the whole map.
func (m *Model) Validate(ctx context.Context) error {
	rules := m.typ.Rules
	if len(rules) == 0 {
		return nil
	}

	var failed []FieldError
	for _, field := range sortedRuleKeys(rules) {
		value := m.lookup(field)
		err := m.store.validate.VarCtx(ctx, value.Interface(), rules[field])
		if err == nil {
			continue
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("halcyon: validate %s: %w", field, err)
		}
		for _, fe := range verrs {
			failed = append(failed, FieldError{
				Field:   field,
				Message: ruleMessage(field, fe.Tag(), fe.Param()),
			})
		}
	}
	if len(failed) > 0 {
		return &ValidationError{Errors: failed}
	}
	return nil
}

// lookup resolves a dotted attribute path.
func (m *Model) lookup(field string) Value {
	parts := strings.Split(field, ".")
	v := m.attributes[parts[0]]
	for _, p := range parts[1:] {
		v = v.Get(p)
	}
	return v
}

var ruleMessages = map[string]string{
	"required": "The %s field is required.",
	"email":    "The %s must be a valid email address.",
	"url":      "The %s format is invalid.",
	"min":      "The %s must be at least %s.",
	"max":      "The %s may not be greater than %s.",
	"len":      "The %s must be %s.",
	"oneof":    "The selected %s is invalid.",
	"alphanum": "The %s may only contain letters and numbers.",
	"numeric":  "The %s must be a number.",
}

func ruleMessage(field, tag, param string) string {
	name := displayName(field)
	format, ok := ruleMessages[tag]
	if !ok {
		return fmt.Sprintf("The %s field is invalid.", name)
	}
	if strings.Count(format, "%s") == 2 {
		return fmt.Sprintf(format, name, param)
	}
	return fmt.Sprintf(format, name)
}

// displayName turns "viewBag.meta_title" into "meta title".
func displayName(field string) string {
	if i := strings.LastIndex(field, "."); i >= 0 {
		field = field[i+1:]
	}
	var b strings.Builder
	for i, r := range field {
		switch {
		case r == '_' || r == '-':
			b.WriteByte(' ')
		case unicode.IsUpper(r):
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func sortedRuleKeys(rules map[string]string) []string {
	keys := make([]string, 0, len(rules))
	for k := range rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
