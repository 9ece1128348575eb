package sqlconf

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	cuerrors "github.com/cloudutil/cloudutil/internal/errors"
)

// configSchema is the JSON Schema the raw document is checked against
// before any struct-level decoding. It catches shape errors (wrong types,
// missing sections) with field-path messages.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["provider", "database"],
  "properties": {
    "provider": {
      "type": "object",
      "required": ["name", "host", "port", "username", "password"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "version": {"type": ["string", "integer"]},
        "host": {"type": "string", "minLength": 1},
        "port": {"type": "integer", "minimum": 1, "maximum": 65535},
        "username": {"type": "string", "minLength": 1},
        "password": {"type": "string"},
        "cert": {"type": "string"}
      }
    },
    "database": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "create": {"type": "boolean"},
          "extensions": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name"],
              "properties": {"name": {"type": "string", "minLength": 1}}
            }
          }
        }
      }
    },
    "users": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "password"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "password": {"type": "string"},
          "privileges": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["db"],
              "properties": {
                "db": {"type": "string", "minLength": 1},
                "schema": {"type": "string"},
                "readwrite": {"type": "boolean"},
                "readonly": {"type": "boolean"},
                "tables": {"type": "array", "items": {"type": "string"}}
              }
            }
          }
        }
      }
    }
  }
}`

// ValidateDocument checks a raw YAML document against the configuration
// schema. It validates shape only; ${VAR} resolution and semantic checks
// happen in Parse.
func ValidateDocument(data []byte) error {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return cuerrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters",
		}
	}

	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert document for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(jsonDoc),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var messages []string
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return cuerrors.ConfigError{
			Message:    "configuration does not match the expected schema:\n  - " + strings.Join(messages, "\n  - "),
			Suggestion: "Compare your file against the documented sql configuration format",
		}
	}
	return nil
}
