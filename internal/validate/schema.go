package validate

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/hmtran/floodgate/internal/ingest"
)

// batchSchema is the container-level shape check for structured input.
// It is deliberately permissive about field contents: plausibility is
// the quality assessor's job, and per-record field presence is the
// record-tier check. Only container violations are batch-fatal.
const batchSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "stringsOrDelimited": {
      "anyOf": [
        {"type": "array", "items": {"type": ["string", "number"]}},
        {"type": "string"},
        {"type": "null"}
      ]
    },
    "record": {
      "type": "object",
      "properties": {
        "title":              {"type": ["string", "null"]},
        "description":        {"type": ["string", "null"]},
        "attacker_addresses": {"$ref": "#/definitions/stringsOrDelimited"},
        "victim_addresses":   {"$ref": "#/definitions/stringsOrDelimited"},
        "attack_ports":       {"$ref": "#/definitions/stringsOrDelimited"},
        "attack_type":        {"type": ["string", "null"]},
        "severity":           {"type": ["string", "null"]}
      }
    }
  },
  "anyOf": [
    {"type": "array", "items": {"$ref": "#/definitions/record"}},
    {
      "type": "object",
      "required": ["events"],
      "properties": {
        "events": {"type": "array", "items": {"$ref": "#/definitions/record"}}
      }
    },
    {"$ref": "#/definitions/record"}
  ]
}`

var compiledBatchSchema = gojsonschema.NewStringLoader(batchSchema)

// CheckJSONShape validates the structured batch container before any
// record is parsed. Violations are batch-fatal.
func CheckJSONShape(data []byte) error {
	result, err := gojsonschema.Validate(compiledBatchSchema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return &ingest.FileFormatError{Reason: fmt.Sprintf("unparsable JSON container: %v", err)}
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return &ingest.FileFormatError{Reason: "JSON batch failed shape check: " + strings.Join(details, "; ")}
}
