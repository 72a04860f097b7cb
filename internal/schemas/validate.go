// Package schemas validates generated JSON artifacts against the embedded
// JSON Schemas before they enter the pipeline.
package schemas

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed envelope.schema.json
var envelopeSchema []byte

//go:embed sitemap.schema.json
var sitemapSchema []byte

// ValidationError reports schema violations with field paths. It marks the
// artifact as permanently invalid: callers must not retry the same bytes.
type ValidationError struct {
	Artifact string
	Errors   []FieldError
}

// FieldError is a single violation at a specific field.
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s validation failed:", ve.Artifact)
	for _, err := range ve.Errors {
		fmt.Fprintf(&sb, " %s: %s;", err.Field, err.Message)
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// IsValidation reports whether err is a schema validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func validate(artifact string, schema, doc []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return &ValidationError{
			Artifact: artifact,
			Errors:   []FieldError{{Field: "(document)", Message: err.Error()}},
		}
	}
	if result.Valid() {
		return nil
	}

	ve := &ValidationError{Artifact: artifact}
	for _, desc := range result.Errors() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   desc.Field(),
			Message: desc.Description(),
		})
	}
	return ve
}

// ValidateEnvelope checks a generated page envelope.
func ValidateEnvelope(doc []byte) error {
	return validate("envelope", envelopeSchema, doc)
}

// ValidateSitemap checks a generated sitemap document.
func ValidateSitemap(doc []byte) error {
	return validate("sitemap", sitemapSchema, doc)
}
