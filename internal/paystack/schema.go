package paystack

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

var ErrInvalidPayload = errors.New("payload does not match schema")

var loadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
})

// ValidatePayload checks body against the embedded event schema.
func ValidatePayload(body []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("failed to compile event schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("%w: %v", ErrInvalidPayload, errs)
	}
	return nil
}
