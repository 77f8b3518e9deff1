package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/entitlement"
	"github.com/hugh/voxpopulous/internal/session"
	"github.com/hugh/voxpopulous/internal/tenant"
	"github.com/shopspring/decimal"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the shared validator with the domain tags registered:
// slug, menucode, featurecode, addoncode, billingstatus and decimal.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New()

		// Report fields by their JSON name.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		mustRegister(v, "slug", func(fl validator.FieldLevel) bool {
			return tenant.ValidSlug(fl.Field().String())
		})
		mustRegister(v, "menucode", func(fl validator.FieldLevel) bool {
			_, ok := session.ParseMenuCode(fl.Field().String())
			return ok
		})
		mustRegister(v, "featurecode", func(fl validator.FieldLevel) bool {
			_, ok := entitlement.ParseFeatureCode(fl.Field().String())
			return ok
		})
		mustRegister(v, "addoncode", func(fl validator.FieldLevel) bool {
			return models.AddonCode(strings.ToUpper(fl.Field().String())).Valid()
		})
		mustRegister(v, "billingstatus", func(fl validator.FieldLevel) bool {
			return models.BillingStatus(fl.Field().String()).Valid()
		})
		mustRegister(v, "decimal", func(fl validator.FieldLevel) bool {
			d, err := decimal.NewFromString(fl.Field().String())
			return err == nil && !d.IsNegative()
		})

		validate = v
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// Struct validates s and returns field errors keyed by JSON field name.
// A nil map means the struct is valid.
func Struct(s interface{}) map[string]string {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}

	out := make(map[string]string, len(verrs))
	for _, e := range verrs {
		out[fieldPath(e)] = message(e)
	}
	return out
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "slug":
		return "Must contain lowercase letters, digits and single dashes"
	case "menucode":
		return "Unknown menu code"
	case "featurecode":
		return "Unknown feature code"
	case "addoncode":
		return "Unknown addon"
	case "billingstatus":
		return "Unknown billing status"
	case "decimal":
		return "Must be a non-negative decimal amount"
	default:
		return "Invalid value"
	}
}

// SanitizeString removes null bytes and control characters except newlines
// and tabs.
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")

	var result strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// TruncateString truncates s to maxLen runes.
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
