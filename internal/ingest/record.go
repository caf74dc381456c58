// Package ingest parses analyst-submitted DDoS indicator files (CSV or
// JSON) into an ordered sequence of indicator records.
package ingest

// AttackType categorizes the DDoS mechanism reported by the analyst.
type AttackType string

const (
	AttackDirectFlood   AttackType = "direct-flood"
	AttackAmplification AttackType = "amplification"
	AttackOther         AttackType = "other"
)

// Severity is the analyst-assigned impact level.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// KnownSeverity reports whether s is one of the recognized severity values.
func KnownSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Record is one raw indicator record as submitted. It is built once by
// the parser and treated as immutable afterwards; downstream stages
// that need to adjust a record work on a copy.
type Record struct {
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	AttackerAddresses []string   `json:"attacker_addresses"`
	VictimAddresses   []string   `json:"victim_addresses"`
	AttackPorts       []string   `json:"attack_ports"`
	AttackType        AttackType `json:"attack_type"`
	Severity          Severity   `json:"severity"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.AttackerAddresses = append([]string(nil), r.AttackerAddresses...)
	out.VictimAddresses = append([]string(nil), r.VictimAddresses...)
	out.AttackPorts = append([]string(nil), r.AttackPorts...)
	return out
}
