package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// validate reports fields by their koanf keys so messages match the YAML.
var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "" || name == "-" {
			return strings.ToLower(f.Name)
		}

		return name
	})

	return v
}()

// Validate checks c and reports every problem at once. The process must not
// start with an invalid configuration.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}

		for _, e := range fieldErrs {
			problems = append(problems, formatFieldError(e))
		}
	}

	if c.Publisher.Driver == PublisherDriverX {
		creds := c.Publisher.Credentials
		if !creds.HasOAuth1() && creds.BearerToken == "" {
			problems = append(problems, "publisher.credentials needs api_key, api_secret_key, "+
				"access_token and access_token_secret, or bearer_token, for driver x")
		}
	}

	problems = append(problems, c.timeoutProblems()...)

	if tz := c.Scheduler.Timezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			problems = append(problems, fmt.Sprintf("scheduler.timezone %q is not a known location", tz))
		}
	}

	if len(problems) == 0 {
		return nil
	}

	return fmt.Errorf("config validation failed:\n  %s", strings.Join(problems, "\n  "))
}

// timeoutProblems checks that each deadline fits inside the one above it:
// client attempt, publish, HTTP request, response write.
func (c *Config) timeoutProblems() []string {
	var problems []string

	if c.Client.Timeout > c.Publisher.Timeout {
		problems = append(problems, fmt.Sprintf("client.timeout (%s) must not exceed publisher.timeout (%s)",
			c.Client.Timeout, c.Publisher.Timeout))
	}

	if c.Server.RequestTimeout > 0 && c.Server.RequestTimeout <= c.Publisher.Timeout {
		problems = append(problems, fmt.Sprintf("server.request_timeout (%s) must exceed publisher.timeout (%s)",
			c.Server.RequestTimeout, c.Publisher.Timeout))
	}

	if c.Server.WriteTimeout < c.Server.RequestTimeout {
		problems = append(problems, fmt.Sprintf("server.write_timeout (%s) must be at least server.request_timeout (%s)",
			c.Server.WriteTimeout, c.Server.RequestTimeout))
	}

	return problems
}

func formatFieldError(e validator.FieldError) string {
	field := fieldPath(e.Namespace())

	switch e.Tag() {
	case "required":
		return field + " is required"
	case "required_if":
		return fmt.Sprintf("%s is required when %s", field, toKey(e.Param()))
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return field + " must be a valid URL"
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}

// fieldPath drops the root struct name: "Config.client.retry.max_attempts"
// becomes "client.retry.max_attempts".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}

	return namespace
}

// toKey lowercases the field name in a required_if param, "Enabled true"
// becoming "enabled true".
func toKey(param string) string {
	name, value, _ := strings.Cut(param, " ")

	return strings.ToLower(name) + " " + value
}
