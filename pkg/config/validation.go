package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here; validation
// accepts both uppercase and lowercase log levels.
//
// Returns an error describing the first validation failure.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	ws := cfg.Adapters.WebSocket
	tcp := cfg.Adapters.TCP

	if !ws.Enabled && !tcp.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if ws.Enabled && tcp.Enabled && ws.Port != 0 && ws.Port == tcp.Port {
		return fmt.Errorf("adapters: websocket and tcp cannot share port %d", ws.Port)
	}

	if cfg.Server.Metrics.Enabled {
		port := cfg.Server.Metrics.Port
		if (ws.Enabled && ws.Port == port) || (tcp.Enabled && tcp.Port == port) {
			return fmt.Errorf("server.metrics: port %d is already used by an adapter", port)
		}
	}

	if ws.Enabled && ws.PongTimeout <= ws.PingInterval {
		return fmt.Errorf("adapters.websocket: pong_timeout (%v) must exceed ping_interval (%v)",
			ws.PongTimeout, ws.PingInterval)
	}

	if cfg.Store.Type == "s3" {
		if _, ok := cfg.Store.S3["bucket"]; !ok {
			return fmt.Errorf("store.s3: bucket is required")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
