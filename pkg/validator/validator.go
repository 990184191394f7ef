package validator

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/charlesng35/cveintel/internal/intel"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
}

// ValidationErrors collects multiple validation failures.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}

	parts := make([]string, len(v))
	for i, err := range v {
		if err.Param != "" {
			parts[i] = err.Field + " failed on " + err.Tag + "=" + err.Param
		} else {
			parts[i] = err.Field + " failed on " + err.Tag
		}
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct validates a struct using registered rules.
func ValidateStruct(s interface{}) error {
	return convert(getValidator().Struct(s))
}

// ValidateVar validates a single value against a tag expression. field names the value
// in the returned ValidationErrors.
func ValidateVar(field string, value interface{}, tag string) error {
	err := convert(getValidator().Var(value, tag))
	if ve, ok := err.(ValidationErrors); ok {
		for i := range ve {
			ve[i].Field = field
		}
		return ve
	}
	return err
}

func convert(err error) error {
	if err == nil {
		return nil
	}

	if ve, ok := err.(validator.ValidationErrors); ok {
		failures := make(ValidationErrors, 0, len(ve))
		for _, fe := range ve {
			failures = append(failures, ValidationError{
				Field: fe.Field(),
				Tag:   fe.Tag(),
				Param: fe.Param(),
			})
		}
		return failures
	}

	return err
}

// RegisterValidation exposes underlying validator custom rules.
func RegisterValidation(tag string, fn validator.Func) error {
	return getValidator().RegisterValidation(tag, fn)
}

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, key := range []string{"json", "form"} {
				name := fld.Tag.Get(key)
				if comma := strings.Index(name, ","); comma != -1 {
					name = name[:comma]
				}
				if name != "" && name != "-" {
					return name
				}
			}
			return fld.Name
		})
		// cve accepts identifiers of the form CVE-YYYY-NNNN, case-insensitively.
		_ = validate.RegisterValidation("cve", func(fl validator.FieldLevel) bool {
			_, err := intel.CanonicalIdentifier(fl.Field().String())
			return err == nil
		})
		_ = validate.RegisterValidation("intel_source", func(fl validator.FieldLevel) bool {
			return intel.Source(fl.Field().String()).Valid()
		})
		_ = validate.RegisterValidation("query_type", func(fl validator.FieldLevel) bool {
			return intel.QueryType(fl.Field().String()).Valid()
		})
	})
	return validate
}
