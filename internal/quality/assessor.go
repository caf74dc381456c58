// Package quality plausibility-checks indicator records and produces an
// advisory quality assessment. The checks are plain deterministic rules;
// the assessment never blocks compilation, it only informs the
// best-effort correction pass.
package quality

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hmtran/floodgate/internal/ingest"
)

// Confidence buckets derived from the quality score.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

const (
	minTitleLength      = 10
	largeBatchThreshold = 100
)

// Assessment is the batch-level quality verdict. Purely derived from
// the records; it has no identity of its own.
type Assessment struct {
	Corrections  int        `json:"corrections"`
	QualityScore float64    `json:"quality_score"`
	Confidence   Confidence `json:"confidence"`
	Suggestions  []string   `json:"suggestions,omitempty"`
}

// rule identifiers, in the fixed order suggestions are emitted.
const (
	ruleBadAddress = iota
	ruleMissingAddress
	ruleBadPort
	ruleShortTitle
	ruleBadSeverity
	ruleCount
)

var ruleSuggestions = [ruleCount]string{
	ruleBadAddress:     "remove or correct malformed addresses; only dotted-quad IPv4 is accepted",
	ruleMissingAddress: "provide at least one attacker and one victim address per record",
	ruleBadPort:        "attack ports must be integers between 1 and 65535",
	ruleShortTitle:     "use descriptive titles of at least 10 characters",
	ruleBadSeverity:    "set severity to one of: low, medium, high, critical",
}

// Assessor runs the rule engine over records or batches.
type Assessor struct {
	logger *zap.Logger
}

func NewAssessor(logger *zap.Logger) *Assessor {
	return &Assessor{logger: logger}
}

// AssessBatch evaluates every record without mutating any of them.
// structured enables the checks that only apply to JSON input (title
// length, severity enum), matching how analysts author each format.
func (a *Assessor) AssessBatch(records []ingest.Record, structured bool) Assessment {
	var corrections int
	var fired [ruleCount]bool

	for _, rec := range records {
		n, hits := assessRecord(rec, structured)
		corrections += n
		for i, hit := range hits {
			if hit {
				fired[i] = true
			}
		}
	}

	score := scoreFor(corrections, len(records))
	assessment := Assessment{
		Corrections:  corrections,
		QualityScore: score,
		Confidence:   confidenceFor(score),
		Suggestions:  buildSuggestions(corrections, len(records), fired),
	}

	a.logger.Info("batch quality assessed",
		zap.Int("records", len(records)),
		zap.Int("corrections", corrections),
		zap.Float64("quality_score", score),
		zap.String("confidence", string(assessment.Confidence)))

	return assessment
}

// AssessRecord evaluates a single record as a batch of one.
func (a *Assessor) AssessRecord(rec ingest.Record, structured bool) Assessment {
	return a.AssessBatch([]ingest.Record{rec}, structured)
}

func assessRecord(rec ingest.Record, structured bool) (int, [ruleCount]bool) {
	var corrections int
	var fired [ruleCount]bool

	for _, addr := range rec.AttackerAddresses {
		if !ValidIPv4(addr) {
			corrections++
			fired[ruleBadAddress] = true
		}
	}
	for _, addr := range rec.VictimAddresses {
		if !ValidIPv4(addr) {
			corrections++
			fired[ruleBadAddress] = true
		}
	}
	if len(rec.AttackerAddresses) == 0 {
		corrections++
		fired[ruleMissingAddress] = true
	}
	if len(rec.VictimAddresses) == 0 {
		corrections++
		fired[ruleMissingAddress] = true
	}
	for _, port := range rec.AttackPorts {
		if !ValidPort(port) {
			corrections++
			fired[ruleBadPort] = true
		}
	}

	if structured {
		if len(rec.Title) < minTitleLength {
			corrections++
			fired[ruleShortTitle] = true
		}
		if !ingest.KnownSeverity(rec.Severity) {
			corrections++
			fired[ruleBadSeverity] = true
		}
	}

	return corrections, fired
}

func scoreFor(corrections, batchSize int) float64 {
	if batchSize < 1 {
		batchSize = 1
	}
	score := 100 - 100*float64(corrections)/float64(batchSize)
	if score < 0 {
		return 0
	}
	return score
}

func confidenceFor(score float64) Confidence {
	switch {
	case score > 80:
		return ConfidenceHigh
	case score > 60:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func buildSuggestions(corrections, batchSize int, fired [ruleCount]bool) []string {
	var out []string
	if corrections > 0 {
		out = append(out, fmt.Sprintf("%d issue(s) detected across %d record(s)", corrections, batchSize))
	}
	for i := 0; i < ruleCount; i++ {
		if fired[i] {
			out = append(out, ruleSuggestions[i])
		}
	}
	if batchSize > largeBatchThreshold {
		out = append(out, fmt.Sprintf("large dataset (%d records): review a sample manually before submission", batchSize))
	}
	return out
}

// CorrectRecord applies the best-effort correction policy: unparsable
// addresses and out-of-range ports are dropped rather than failing the
// record. The input is not modified.
func CorrectRecord(rec ingest.Record) ingest.Record {
	out := rec.Clone()
	out.AttackerAddresses = keepValid(out.AttackerAddresses, ValidIPv4)
	out.VictimAddresses = keepValid(out.VictimAddresses, ValidIPv4)
	out.AttackPorts = keepValid(out.AttackPorts, ValidPort)
	return out
}

func keepValid(values []string, ok func(string) bool) []string {
	out := values[:0]
	for _, v := range values {
		if ok(v) {
			out = append(out, v)
		}
	}
	return out
}

// ValidIPv4 reports whether s is a dotted-quad IPv4 address with each
// octet in [0,255].
func ValidIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return false
		}
		for _, c := range part {
			if c < '0' || c > '9' {
				return false
			}
		}
		n, err := strconv.Atoi(part)
		if err != nil || n > 255 {
			return false
		}
	}
	return true
}

// ValidPort reports whether s is an integer in [1,65535].
func ValidPort(s string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return err == nil && n >= 1 && n <= 65535
}
