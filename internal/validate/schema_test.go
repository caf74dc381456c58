package validate

import (
	"errors"
	"testing"

	"github.com/hmtran/floodgate/internal/ingest"
)

// =============================================================================
// Container Shape Tests
// =============================================================================

// TestCheckJSONShape_AcceptedContainers verifies all three batch shapes
// pass.
func TestCheckJSONShape_AcceptedContainers(t *testing.T) {
	inputs := []string{
		`[]`,
		`[{"title":"a"}]`,
		`{"events":[{"title":"a"},{"title":"b"}]}`,
		`{"title":"solo","attacker_addresses":"1.1.1.1, 2.2.2.2"}`,
		`{"title":"ports as numbers","attack_ports":[80,443]}`,
	}

	for _, in := range inputs {
		if err := CheckJSONShape([]byte(in)); err != nil {
			t.Errorf("CheckJSONShape(%s) should pass: %v", in, err)
		}
	}
}

// TestCheckJSONShape_RejectedContainers verifies container violations
// are batch-fatal file format errors.
func TestCheckJSONShape_RejectedContainers(t *testing.T) {
	inputs := []string{
		`"just a string"`,
		`42`,
		`[1, 2, 3]`,
		`{"events":"not an array"}`,
		`{"title": {"nested": "object"}}`,
	}

	for _, in := range inputs {
		err := CheckJSONShape([]byte(in))
		if err == nil {
			t.Errorf("CheckJSONShape(%s) should fail", in)
			continue
		}
		var ffe *ingest.FileFormatError
		if !errors.As(err, &ffe) {
			t.Errorf("CheckJSONShape(%s): expected *ingest.FileFormatError, got %T", in, err)
		}
	}
}
