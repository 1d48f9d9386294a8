package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks a Config for internal consistency using struct tags plus
// a handful of cross-field rules the tags alone can't express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	for _, ep := range cfg.Endpoints {
		if !strings.Contains(ep, "://") {
			return fmt.Errorf("invalid endpoint %q: missing scheme (expected unix:// or tcp://)", ep)
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		return fmt.Errorf("metrics.port is required when metrics.enabled is true")
	}

	return nil
}

// formatValidationError turns a validator.ValidationErrors into a readable,
// multi-field error message.
func formatValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q validation", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
