// Package stats computes summary metrics over a collection of compiled
// events for the monitoring surface. Metrics are always recomputed from
// scratch over the given set, never patched incrementally.
package stats

import (
	"strings"
	"time"

	"github.com/hmtran/floodgate/internal/classify"
	"github.com/hmtran/floodgate/internal/playbook"
)

// Posture score penalty weights.
const (
	penaltyHighThreat   = 30
	penaltyUnpublished  = 20
	penaltyMaxSensitive = 25
)

const monthsInWindow = 12

// MonthCount is one bucket of the trailing-twelve-month histogram.
type MonthCount struct {
	Month string `json:"month"` // YYYY-MM
	Count int    `json:"count"`
}

// Aggregated is the full metrics artifact for one event collection.
type Aggregated struct {
	TotalEvents   int            `json:"total_events"`
	ThreatLevels  map[string]int `json:"threat_level_distribution"`
	AttackTypes   map[string]int `json:"attack_type_distribution"`
	TLP           map[string]int `json:"tlp_distribution"`
	EventsByMonth []MonthCount   `json:"events_by_month"`
	Published     int            `json:"published"`
	Unpublished   int            `json:"unpublished"`
	PostureScore  float64        `json:"security_posture_score"`
}

// Zero returns the all-zero metrics used when no data exists yet.
func Zero() Aggregated {
	return Aggregated{
		ThreatLevels: zeroThreatLevels(),
		AttackTypes:  map[string]int{},
		TLP:          zeroTLP(),
	}
}

// Aggregate computes metrics over the (optionally pre-filtered) event
// collection in a single pass. now anchors the monthly window.
func Aggregate(events []playbook.Event, now time.Time) Aggregated {
	agg := Zero()
	agg.EventsByMonth = zeroMonths(now)
	if len(events) == 0 {
		return agg
	}

	monthIndex := make(map[string]int, monthsInWindow)
	for i, mc := range agg.EventsByMonth {
		monthIndex[mc.Month] = i
	}

	var highThreat, maxSensitive int
	for _, ev := range events {
		agg.TotalEvents++

		agg.ThreatLevels[threatLevelName(ev.ThreatLevel)]++
		if ev.ThreatLevel == playbook.ThreatLevelHigh {
			highThreat++
		}

		if name, ok := attackTypeOf(ev); ok {
			agg.AttackTypes[name]++
		}

		tlp := classify.Classify(ev)
		agg.TLP[string(tlp)]++
		if tlp == classify.TLPRed {
			maxSensitive++
		}

		if ev.Published {
			agg.Published++
		} else {
			agg.Unpublished++
		}

		if !ev.Date.IsZero() {
			if i, ok := monthIndex[ev.Date.UTC().Format("2006-01")]; ok {
				agg.EventsByMonth[i].Count++
			}
		}
	}

	total := float64(agg.TotalEvents)
	score := 100 -
		float64(highThreat)/total*penaltyHighThreat -
		float64(agg.Unpublished)/total*penaltyUnpublished -
		float64(maxSensitive)/total*penaltyMaxSensitive
	agg.PostureScore = clamp(score, 0, 100)

	return agg
}

func threatLevelName(level int) string {
	switch level {
	case playbook.ThreatLevelHigh:
		return "high"
	case playbook.ThreatLevelMedium:
		return "medium"
	case playbook.ThreatLevelLow:
		return "low"
	default:
		return "undefined"
	}
}

// attackTypeOf derives the attack-type bucket from tags alone: the
// explicit type marker when present, otherwise the technique suffix of
// a Network DoS galaxy tag. Events carrying neither contribute to no
// bucket.
func attackTypeOf(ev playbook.Event) (string, bool) {
	for _, tag := range ev.Tags {
		name := strings.ToLower(tag.Name)
		if !strings.HasPrefix(name, "ddos:type=") {
			continue
		}
		value := strings.Trim(strings.TrimPrefix(name, "ddos:type="), `"`)
		if value != "" {
			return value, true
		}
	}

	for _, tag := range ev.Tags {
		name := tag.Name
		switch {
		case strings.Contains(name, playbook.ClusterDirectFlood):
			return "Direct Flood", true
		case strings.Contains(name, playbook.ClusterAmplification):
			return "Amplification", true
		case strings.Contains(name, playbook.ClusterNetworkDoS):
			return "Network DoS", true
		}
	}

	return "", false
}

func zeroThreatLevels() map[string]int {
	return map[string]int{"high": 0, "medium": 0, "low": 0, "undefined": 0}
}

func zeroTLP() map[string]int {
	return map[string]int{
		string(classify.TLPRed):       0,
		string(classify.TLPAmber):     0,
		string(classify.TLPGreen):     0,
		string(classify.TLPWhite):     0,
		string(classify.TLPUndefined): 0,
	}
}

// zeroMonths builds the trailing window oldest-first, zero-filled.
func zeroMonths(now time.Time) []MonthCount {
	out := make([]MonthCount, 0, monthsInWindow)
	anchor := time.Date(now.UTC().Year(), now.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := monthsInWindow - 1; i >= 0; i-- {
		out = append(out, MonthCount{Month: anchor.AddDate(0, -i, 0).Format("2006-01")})
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
