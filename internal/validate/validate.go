// Package validate enforces the two-tier structural checks on parsed
// indicator records: batch-level failures are fatal, record-level
// failures are collected so one bad row never sinks a batch.
package validate

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hmtran/floodgate/internal/ingest"
)

// DefaultTitle fills a missing title when the record is still within
// the missing-field tolerance.
const DefaultTitle = "Unspecified DDoS incident"

// requiredFields lists the per-record required fields in report order.
var requiredFields = []string{"title", "description", "attacker_addresses", "victim_addresses"}

// maxMissingFields is the tolerance: a record missing more required
// fields than this is rejected instead of defaulted.
var maxMissingFields = len(requiredFields) / 2

// RecordError describes one record-level validation failure. It is
// collected alongside successful records, never escalated to the batch.
type RecordError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

func (e RecordError) Error() string {
	return fmt.Sprintf("row %d: field %q: %s", e.Row, e.Field, e.Message)
}

// Outcome is the validation result for a single record: pass/fail plus
// an ordered list of field findings. Defaulted fields are reported even
// when the record passes.
type Outcome struct {
	Valid  bool          `json:"valid"`
	Errors []RecordError `json:"errors,omitempty"`
}

// Validator applies the record-level soft checks.
type Validator struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Validator {
	return &Validator{logger: logger}
}

// ValidateRecord checks one record at the given row (1-based data row
// index). Records missing at most half their required fields are
// returned with those fields defaulted; beyond that the record fails.
// The input record is never mutated.
func (v *Validator) ValidateRecord(rec ingest.Record, row int) (ingest.Record, Outcome) {
	missing := missingFields(rec)

	if len(missing) > maxMissingFields {
		outcome := Outcome{Valid: false}
		for _, field := range missing {
			outcome.Errors = append(outcome.Errors, RecordError{
				Row:     row,
				Field:   field,
				Value:   "",
				Message: "required field missing beyond tolerance",
			})
		}
		v.logger.Warn("record rejected",
			zap.Int("row", row),
			zap.Strings("missing_fields", missing))
		return rec, outcome
	}

	out := rec.Clone()
	outcome := Outcome{Valid: true}
	for _, field := range missing {
		switch field {
		case "title":
			out.Title = DefaultTitle
		case "description":
			// An absent description stays empty; the compiler simply
			// emits no comment attribute.
		}
		outcome.Errors = append(outcome.Errors, RecordError{
			Row:     row,
			Field:   field,
			Value:   "",
			Message: "required field missing, default applied",
		})
	}

	return out, outcome
}

func missingFields(rec ingest.Record) []string {
	var missing []string
	for _, field := range requiredFields {
		switch field {
		case "title":
			if rec.Title == "" {
				missing = append(missing, field)
			}
		case "description":
			if rec.Description == "" {
				missing = append(missing, field)
			}
		case "attacker_addresses":
			if len(rec.AttackerAddresses) == 0 {
				missing = append(missing, field)
			}
		case "victim_addresses":
			if len(rec.VictimAddresses) == 0 {
				missing = append(missing, field)
			}
		}
	}
	return missing
}
