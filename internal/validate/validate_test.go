package validate

import (
	"testing"

	"go.uber.org/zap"

	"github.com/hmtran/floodgate/internal/ingest"
)

func fullRecord() ingest.Record {
	return ingest.Record{
		Title:             "UDP flood against web tier",
		Description:       "sustained 40 Gbps",
		AttackerAddresses: []string{"1.2.3.4"},
		VictimAddresses:   []string{"10.0.0.1"},
	}
}

// =============================================================================
// Tolerance Tests
// =============================================================================

// TestValidateRecord_Complete verifies a complete record passes with no
// findings.
func TestValidateRecord_Complete(t *testing.T) {
	v := New(zap.NewNop())

	out, outcome := v.ValidateRecord(fullRecord(), 1)
	if !outcome.Valid {
		t.Fatal("complete record should be valid")
	}
	if len(outcome.Errors) != 0 {
		t.Errorf("expected no findings, got %v", outcome.Errors)
	}
	if out.Title != "UDP flood against web tier" {
		t.Errorf("record should pass through unchanged, got title %q", out.Title)
	}
}

// TestValidateRecord_WithinTolerance verifies up to two missing fields
// are defaulted and reported, not rejected.
func TestValidateRecord_WithinTolerance(t *testing.T) {
	rec := fullRecord()
	rec.Title = ""
	rec.Description = ""

	v := New(zap.NewNop())
	out, outcome := v.ValidateRecord(rec, 3)

	if !outcome.Valid {
		t.Fatal("record missing exactly two fields should still pass")
	}
	if out.Title != DefaultTitle {
		t.Errorf("expected defaulted title %q, got %q", DefaultTitle, out.Title)
	}
	if len(outcome.Errors) != 2 {
		t.Fatalf("expected 2 informational findings, got %d", len(outcome.Errors))
	}
	for _, e := range outcome.Errors {
		if e.Row != 3 {
			t.Errorf("finding should carry the row index, got %d", e.Row)
		}
	}
}

// TestValidateRecord_BeyondTolerance verifies three missing fields fail
// the record with one finding per missing field.
func TestValidateRecord_BeyondTolerance(t *testing.T) {
	rec := ingest.Record{VictimAddresses: []string{"10.0.0.1"}}

	v := New(zap.NewNop())
	_, outcome := v.ValidateRecord(rec, 7)

	if outcome.Valid {
		t.Fatal("record missing three required fields should be rejected")
	}
	if len(outcome.Errors) != 3 {
		t.Fatalf("expected 3 findings, got %d", len(outcome.Errors))
	}

	fields := map[string]bool{}
	for _, e := range outcome.Errors {
		fields[e.Field] = true
	}
	for _, want := range []string{"title", "description", "attacker_addresses"} {
		if !fields[want] {
			t.Errorf("expected finding for field %q, got %v", want, outcome.Errors)
		}
	}
}

// TestValidateRecord_InputNotMutated verifies defaulting happens on a
// copy.
func TestValidateRecord_InputNotMutated(t *testing.T) {
	rec := fullRecord()
	rec.Title = ""

	v := New(zap.NewNop())
	out, _ := v.ValidateRecord(rec, 1)

	if rec.Title != "" {
		t.Error("input record must not be mutated")
	}
	if out.Title != DefaultTitle {
		t.Errorf("returned record should carry the default, got %q", out.Title)
	}
}
