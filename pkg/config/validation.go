package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for structural problems using the
// validate struct tags, plus a few cross-field rules the tags cannot
// express. Returns a single error listing every violation.
func Validate(cfg *Config) error {
	v := validator.New()

	var problems []string

	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok {
			for _, fe := range verrs {
				problems = append(problems, describeFieldError(fe))
			}
		} else {
			return err
		}
	}

	// The encryption key shares the JWT secret's minimum length once it
	// diverges from the secret.
	if cfg.Auth.EncryptionKey != "" && cfg.Auth.EncryptionKey != cfg.Auth.JWTSecret && len(cfg.Auth.EncryptionKey) < 32 {
		problems = append(problems, "auth.encryption_key must be at least 32 characters")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(problems, "; "))
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

// describeFieldError renders one tag violation without echoing the
// offending value, which may be a secret.
func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
