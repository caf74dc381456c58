package pipeline

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/hmtran/floodgate/internal/ingest"
	"github.com/hmtran/floodgate/internal/playbook"
)

// =============================================================================
// CSV Path Tests
// =============================================================================

// TestRun_CSVPartialSuccess verifies one bad row never sinks the batch:
// the good rows compile and the bad one is reported.
func TestRun_CSVPartialSuccess(t *testing.T) {
	csv := "title,description,attacker_addresses,victim_addresses,attack_type,severity\n" +
		"Good attack,details,1.1.1.1,2.2.2.2,direct-flood,high\n" +
		",,,,,\n" +
		"Another attack,details,3.3.3.3,4.4.4.4,amplification,low\n"

	p := New(zap.NewNop(), nil)
	result, err := p.Run([]byte(csv), FormatCSV)
	if err != nil {
		t.Fatalf("Run should succeed despite bad rows: %v", err)
	}

	if result.Parsed != 3 {
		t.Errorf("expected 3 parsed records, got %d", result.Parsed)
	}
	if len(result.Compiled) != 2 {
		t.Fatalf("expected 2 compiled events, got %d", len(result.Compiled))
	}
	if len(result.Rejected) == 0 {
		t.Error("the empty row should be reported")
	}
	for _, re := range result.Rejected {
		if re.Row != 2 {
			t.Errorf("rejection should reference data row 2, got %d", re.Row)
		}
	}

	if result.Compiled[0].Info != "Good attack" || result.Compiled[1].Info != "Another attack" {
		t.Errorf("compiled events out of order: %q, %q", result.Compiled[0].Info, result.Compiled[1].Info)
	}
}

// TestRun_CSVBatchFatal verifies a missing required header rejects the
// whole batch.
func TestRun_CSVBatchFatal(t *testing.T) {
	csv := "title,description\nattack,text\n"

	p := New(zap.NewNop(), nil)
	_, err := p.Run([]byte(csv), FormatCSV)

	var ffe *ingest.FileFormatError
	if !errors.As(err, &ffe) {
		t.Fatalf("expected *ingest.FileFormatError, got %v", err)
	}
}

// TestRun_CSVCorrectionApplied verifies malformed addresses are dropped
// before compilation.
func TestRun_CSVCorrectionApplied(t *testing.T) {
	csv := "title,description,attacker_addresses,victim_addresses\n" +
		`attack,text,"1.1.1.1, 999.999.1.1",2.2.2.2` + "\n"

	p := New(zap.NewNop(), nil)
	result, err := p.Run([]byte(csv), FormatCSV)
	if err != nil {
		t.Fatalf("Run should succeed: %v", err)
	}

	var srcCount int
	for _, attr := range result.Compiled[0].Attributes {
		if attr.Type == "ip-src" {
			srcCount++
		}
	}
	if srcCount != 1 {
		t.Errorf("expected the malformed address dropped, got %d ip-src attributes", srcCount)
	}
	if result.Assessment.Corrections != 1 {
		t.Errorf("expected 1 correction counted, got %d", result.Assessment.Corrections)
	}
}

// =============================================================================
// JSON Path Tests
// =============================================================================

// TestRun_JSONStructuredRules verifies JSON batches get the structured
// quality checks that tabular input skips.
func TestRun_JSONStructuredRules(t *testing.T) {
	data := `[{"title":"short","description":"d","attacker_addresses":["1.1.1.1"],"victim_addresses":["2.2.2.2"]}]`

	p := New(zap.NewNop(), nil)
	result, err := p.Run([]byte(data), FormatJSON)
	if err != nil {
		t.Fatalf("Run should succeed: %v", err)
	}

	// Short title and missing severity both count under structured rules.
	if result.Assessment.Corrections != 2 {
		t.Errorf("expected 2 corrections, got %d", result.Assessment.Corrections)
	}
	if len(result.Compiled) != 1 {
		t.Fatalf("advisory findings must not block compilation, got %d events", len(result.Compiled))
	}
	if result.Compiled[0].ThreatLevel != playbook.ThreatLevelUndefined {
		t.Errorf("missing severity should compile to the undefined level, got %d", result.Compiled[0].ThreatLevel)
	}
}

// TestRun_JSONBatchFatal verifies malformed JSON rejects the batch.
func TestRun_JSONBatchFatal(t *testing.T) {
	p := New(zap.NewNop(), nil)
	if _, err := p.Run([]byte(`"just a string"`), FormatJSON); err == nil {
		t.Error("non-object JSON input should be batch-fatal")
	}
}

// TestRun_JSONWrapper verifies the wrapped batch shape flows through.
func TestRun_JSONWrapper(t *testing.T) {
	data := `{"events":[{"title":"Wrapped incident","description":"d","attacker_addresses":["1.1.1.1"],"victim_addresses":["2.2.2.2"],"severity":"medium"}]}`

	p := New(zap.NewNop(), nil)
	result, err := p.Run([]byte(data), FormatJSON)
	if err != nil {
		t.Fatalf("Run should succeed: %v", err)
	}
	if len(result.Compiled) != 1 {
		t.Fatalf("expected 1 compiled event, got %d", len(result.Compiled))
	}
	if result.Compiled[0].ThreatLevel != playbook.ThreatLevelMedium {
		t.Errorf("expected medium threat level, got %d", result.Compiled[0].ThreatLevel)
	}
}
