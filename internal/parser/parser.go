package parser

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"bakekit/pkg/bakefile"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Parse reads and validates a bakefile YAML document, returning the parsed
// Bakefile struct or an error.
func Parse(filePath string) (*bakefile.Bakefile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("bakefile not found: %s", filePath)
		}
		return nil, fmt.Errorf("failed to read bakefile: %w", err)
	}

	// Decode with yaml.v3, which preserves map key case. spec.env and
	// metadata.labels are opaque key/value pairs and must reach the image
	// metadata unmodified.
	var bf bakefile.Bakefile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("failed to parse bakefile - malformed YAML: %w", err)
	}

	// Validate the structure
	if err := validate.Struct(&bf); err != nil {
		return nil, formatValidationError(err)
	}

	return &bf, nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var errorMessages []string
		for _, e := range validationErrors {
			errorMessages = append(errorMessages, formatFieldError(e))
		}

		if len(errorMessages) == 1 {
			return fmt.Errorf("validation error: %s", errorMessages[0])
		}

		result := "validation errors:\n"
		for _, msg := range errorMessages {
			result += fmt.Sprintf("  - %s\n", msg)
		}
		return fmt.Errorf("%s", result)
	}
	return fmt.Errorf("validation failed: %w", err)
}

// formatFieldError formats a single validation error into a user-friendly message.
func formatFieldError(e validator.FieldError) string {
	field := e.Field()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("field '%s' is required but missing", field)
	case "eq":
		return fmt.Sprintf("field '%s' must be '%s'", field, e.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("field '%s' must be a valid URL", field)
	default:
		return fmt.Sprintf("field '%s' failed validation (%s)", field, tag)
	}
}
