package lifecycle

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"casebook/internal/labels"
	"casebook/internal/store"
)

var validate = newValidator()

// draftIDPattern keeps explicit ids to a single blob key segment.
var draftIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("draftid", func(fl validator.FieldLevel) bool {
		return draftIDPattern.MatchString(fl.Field().String())
	})
	return v
}

func checkDraftID(id string) error {
	if err := validate.Var(id, "draftid"); err != nil {
		return &ValidationError{Field: "id", Message: "must be at most 128 letters, digits, '-' or '_'"}
	}
	return nil
}

// checkPayload trims the title, validates the struct tags and decodes the
// labels so a non-mapping value fails before anything is written.
func checkPayload(payload store.FormPayload) (store.FormPayload, labels.Set, error) {
	payload.Title = strings.TrimSpace(payload.Title)
	if err := validateStruct(payload); err != nil {
		return payload, nil, err
	}
	submitted, err := labels.Decode(payload.Labels)
	if err != nil {
		return payload, nil, &ValidationError{Field: "labels", Message: err.Error()}
	}
	return payload, submitted, nil
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{Field: fieldPath(fe), Message: describe(fe)}
	}
	return &ValidationError{Message: err.Error()}
}

// fieldPath drops the root struct name: "FormPayload.customMetrics[0].name"
// becomes "customMetrics[0].name".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return "failed " + fe.Tag()
	}
}
