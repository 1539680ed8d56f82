package official

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const envelopeSchemaURL = "https://clicktok.local/schemas/official/search-envelope.json"

const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["code"],
  "properties": {
    "code": {"type": "integer"},
    "message": {"type": "string"},
    "data": {
      "type": ["object", "null"],
      "properties": {
        "products": {
          "type": ["array", "null"],
          "items": {
            "type": "object",
            "required": ["product_id"],
            "properties": {
              "product_id": {"type": ["string", "integer"]},
              "product_name": {"type": "string"},
              "price": {"type": ["string", "number"]},
              "commission_rate": {"type": ["string", "number", "null"]},
              "rating": {"type": ["string", "number", "null"]}
            }
          }
        }
      }
    }
  }
}`

func compileEnvelopeSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(envelopeSchemaURL, strings.NewReader(envelopeSchema)); err != nil {
		return nil, fmt.Errorf("failed to add envelope schema: %w", err)
	}
	schema, err := compiler.Compile(envelopeSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile envelope schema: %w", err)
	}
	return schema, nil
}

// validateEnvelope checks body against the search envelope schema.
func validateEnvelope(schema *jsonschema.Schema, body []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("response body is not valid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("JSON schema validation failed: %w", err)
	}
	return nil
}
