// Package inputval checks decoded request bodies against `validate` struct
// tags (waffle/pantry/validate) and turns failures into messages a client
// can show as-is. A field's `label` tag names it in those messages.
//
//	type shareRequest struct {
//	    Email string `json:"email" validate:"required,email" label:"Email"`
//	}
package inputval

import (
	"net/mail"
	"reflect"
	"strings"
	"sync"

	"github.com/dalemusser/waffle/pantry/validate"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FieldError is one failed rule.
type FieldError struct {
	Field   string // json name when the field has one
	Label   string
	Message string
}

// Result collects the failures from one Validate call.
type Result struct {
	Errors []FieldError
}

func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// First returns the first message, or "".
func (r *Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

var (
	validatorOnce sync.Once
	validator     *validate.Validator

	labelCache sync.Map // reflect.Type -> map[string]string
)

func instance() *validate.Validator {
	validatorOnce.Do(func() {
		validator = validate.New(validate.WithStopOnFirstError())
		validator.RegisterRuleFunc("folderref", func(value any) bool {
			s, ok := value.(string)
			if !ok {
				return false
			}
			_, valid := ParseFolderRef(s)
			return valid
		}, "folderref")
	})
	return validator
}

// Validate runs the struct's rules. Besides the pantry rules (required,
// email, min, max, oneof) it understands folderref: empty, "null", "root"
// or an ObjectID hex.
func Validate(s any) *Result {
	res := &Result{}
	errs, ok := instance().Struct(s).(validate.Errors)
	if !ok {
		return res
	}
	labels := labelsFor(s)
	for _, e := range errs {
		label := labels[e.Field]
		if label == "" {
			label = e.Field
		}
		res.Errors = append(res.Errors, FieldError{
			Field:   e.Field,
			Label:   label,
			Message: message(label, e.Rule, e.Param),
		})
	}
	return res
}

func labelsFor(s any) map[string]string {
	t := reflect.TypeOf(s)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	if cached, ok := labelCache.Load(t); ok {
		return cached.(map[string]string)
	}

	labels := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		label := f.Tag.Get("label")
		if label == "" {
			continue
		}
		name := f.Name
		if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag != "" && tag != "-" {
			name = tag
		}
		labels[name] = label
	}
	labelCache.Store(t, labels)
	return labels
}

func message(label, rule, param string) string {
	switch rule {
	case "required":
		return label + " is required."
	case "email":
		return "A valid email address is required."
	case "min":
		return label + " must be at least " + param + " characters."
	case "max":
		return label + " must be at most " + param + " characters."
	case "oneof", "enum":
		return label + " must be one of: " + strings.ReplaceAll(param, " ", ", ") + "."
	case "folderref":
		return label + " is not a valid folder."
	}
	return label + " is invalid."
}

// IsValidEmail reports whether s is a bare RFC 5322 address, without a
// display name or angle brackets.
func IsValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// ParseFolderRef converts a folder reference into an id, nil meaning the
// root level. "", "null" and "root" all name the root; ok is false when s
// is none of those and not an ObjectID.
func ParseFolderRef(s string) (id *primitive.ObjectID, ok bool) {
	switch s = strings.TrimSpace(s); s {
	case "", "null", "root":
		return nil, true
	}
	oid, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return nil, false
	}
	return &oid, true
}
