package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report koanf keys instead of Go field names.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks struct tags first and then rules spanning sections. All
// problems are reported together, each as a *ConfigError.
func Validate(cfg *Config) error {
	var errs []error

	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, fieldError(fe))
		}
	}

	errs = append(errs, crossFieldErrors(cfg)...)
	return errors.Join(errs...)
}

func fieldError(fe validator.FieldError) *ConfigError {
	// Namespace is "Config.section.key"; drop the root type.
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	switch fe.Tag() {
	case "required":
		return NewMissingFieldError(field)
	case "oneof":
		return NewInvalidFieldError(field, fmt.Sprintf("invalid value %v", fe.Value()), strings.Fields(fe.Param()))
	case "gtefield":
		return NewInvalidFieldError(field, fmt.Sprintf("must be at least %s", fe.Param()), nil)
	default:
		msg := fmt.Sprintf("failed %q validation", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed %s=%s validation (got %v)", fe.Tag(), fe.Param(), fe.Value())
		}
		return NewInvalidFieldError(field, msg, nil)
	}
}

func crossFieldErrors(cfg *Config) []error {
	var errs []error

	if cfg.Cache.Enabled && cfg.Cache.Backend == BackendRedis && cfg.Redis.Host == "" {
		errs = append(errs, NewMissingFieldError("redis.host"))
	}
	if cfg.Connectivity.Enabled && len(cfg.Connectivity.ProbeHosts) == 0 {
		errs = append(errs, NewMissingFieldError("connectivity.probe_hosts"))
	}
	if cfg.Auth.Enabled && len(cfg.Auth.AuthPaths) == 0 {
		errs = append(errs, NewInvalidFieldError("auth.auth_paths",
			"must not be empty when auth is enabled", nil))
	}
	return errs
}
