package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema is the JSON Schema every config document must satisfy
// before it is unmarshalled. Shape errors surface here with paths
// instead of as zero values deep in the pool.
const configSchema = `{
  "type": "object",
  "properties": {
    "accounts": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "email":    {"type": "string", "minLength": 3},
          "password": {"type": "string", "minLength": 1}
        },
        "required": ["email", "password"]
      }
    },
    "upstream": {
      "type": "object",
      "properties": {
        "clerk_base":     {"type": "string"},
        "outerface_base": {"type": "string"},
        "user_agent":     {"type": "string"}
      }
    },
    "chat": {
      "type": "object",
      "properties": {
        "default_model": {"type": "string"},
        "system_prompt": {"type": "string"}
      }
    },
    "pool": {
      "type": "object",
      "properties": {
        "default_budget":  {"type": "integer", "minimum": 1},
        "revive_schedule": {"type": "string"}
      }
    },
    "server": {
      "type": "object",
      "properties": {
        "host":                  {"type": "string"},
        "port":                  {"type": "integer", "minimum": 1, "maximum": 65535},
        "rate_limit_per_minute": {"type": "integer", "minimum": 1}
      }
    }
  }
}`

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateDocument checks a config file against the JSON schema
func ValidateDocument(path string) error {
	schemaLoader := gojsonschema.NewStringLoader(configSchema)
	documentLoader := gojsonschema.NewReferenceLoader("file://" + path)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateEmail validates an account email address
func (v *Validator) ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("account email cannot be empty")
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("invalid account email: %s", email)
	}
	return nil
}

// ValidateConfig validates a loaded configuration
func (v *Validator) ValidateConfig(cfg *Config) error {
	for _, acct := range cfg.Accounts {
		if err := v.ValidateEmail(acct.Email); err != nil {
			return err
		}
		if acct.Password == "" {
			return fmt.Errorf("account %s has no password", acct.Email)
		}
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Pool.DefaultBudget < 1 {
		return fmt.Errorf("pool default budget must be positive")
	}
	if cfg.Upstream.ClerkBase == "" || cfg.Upstream.OuterfaceBase == "" {
		return fmt.Errorf("upstream base URLs cannot be empty")
	}
	return nil
}
