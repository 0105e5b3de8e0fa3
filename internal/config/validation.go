package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,9}$`)

// InvalidField is a config value that broke a validation rule.
type InvalidField struct {
	Key   string
	Rule  string
	Param string
	Value interface{}
}

func (f InvalidField) String() string {
	switch f.Rule {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", f.Key)
	case "oneof":
		return fmt.Sprintf("%s=%v (must be one of: %s)", f.Key, f.Value, strings.ReplaceAll(f.Param, " ", ", "))
	case "gte", "min":
		return fmt.Sprintf("%s=%v (must be >= %s)", f.Key, f.Value, f.Param)
	case "lte", "max":
		return fmt.Sprintf("%s=%v (must be <= %s)", f.Key, f.Value, f.Param)
	case "url":
		return fmt.Sprintf("%s=%v (must be a URL)", f.Key, f.Value)
	default:
		return fmt.Sprintf("%s=%v (failed %s)", f.Key, f.Value, f.Rule)
	}
}

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	InvalidTickers []string
	InvalidFields  []InvalidField
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.InvalidTickers) > 0 || len(e.InvalidFields) > 0
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")

	if len(e.InvalidTickers) > 0 {
		sb.WriteString("\nInvalid tickers:\n")
		for _, t := range e.InvalidTickers {
			sb.WriteString(fmt.Sprintf("  - %q\n", t))
		}
		sb.WriteString("\nTickers are 1-10 uppercase letters, digits or dots, starting with a letter\n")
	}

	if len(e.InvalidFields) > 0 {
		sb.WriteString("\nInvalid settings:\n")
		for _, f := range e.InvalidFields {
			sb.WriteString(fmt.Sprintf("  - %s\n", f))
		}
	}

	return sb.String()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("ticker", func(fl validator.FieldLevel) bool {
		return ValidTicker(fl.Field().String())
	})
	// Report keys the way they are written in config files.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidTicker reports whether s looks like an exchange symbol.
func ValidTicker(s string) bool {
	return tickerPattern.MatchString(s)
}

// Validate checks every setting and returns all problems at once.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "ticker" {
				errs.InvalidTickers = append(errs.InvalidTickers, fmt.Sprint(fe.Value()))
				continue
			}
			errs.InvalidFields = append(errs.InvalidFields, InvalidField{
				Key:   configKey(fe.Namespace()),
				Rule:  fe.Tag(),
				Param: fe.Param(),
				Value: fe.Value(),
			})
		}
	} else if err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// configKey turns a validator namespace such as "Config.download.workers" into "download.workers".
func configKey(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// ValidateTickers checks ad-hoc tickers, such as those passed on the command line.
func ValidateTickers(tickers []string) error {
	errs := &ValidationErrors{}
	for _, t := range tickers {
		if !ValidTicker(t) {
			errs.InvalidTickers = append(errs.InvalidTickers, t)
		}
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}
