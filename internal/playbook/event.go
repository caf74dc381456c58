// Package playbook compiles validated indicator records into events
// that satisfy the DDoS sharing playbook: mandatory tag set, Network
// DoS galaxy cluster, and a fixed, reproducible attribute order.
package playbook

import "time"

// MISP threat level identifiers. 1 is the most severe.
const (
	ThreatLevelHigh      = 1
	ThreatLevelMedium    = 2
	ThreatLevelLow       = 3
	ThreatLevelUndefined = 4
)

// Analysis maturity levels.
const (
	AnalysisInitial  = 0
	AnalysisOngoing  = 1
	AnalysisComplete = 2
)

// Distribution scopes.
const (
	DistributionOrgOnly     = 0
	DistributionCommunity   = 1
	DistributionConnected   = 2
	DistributionAllOrgs     = 3
)

// Network Denial of Service technique identifiers.
const (
	ClusterNetworkDoS    = "T1498"
	ClusterDirectFlood   = "T1498.001"
	ClusterAmplification = "T1498.002"
)

// Attribute is one event attribute in the playbook's fixed order.
type Attribute struct {
	Category string `json:"category"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	ToIDS    bool   `json:"to_ids"`
	Comment  string `json:"comment,omitempty"`
}

// Tag is a name/colour pair as the sharing platform represents it.
type Tag struct {
	Name   string `json:"name"`
	Colour string `json:"colour"`
}

// Event is a playbook-compliant sharing event. It is built once by the
// compiler and never mutated afterwards: callers needing a variant
// rebuild from the source record.
type Event struct {
	ID             string      `json:"id,omitempty"`
	Info           string      `json:"info"`
	Date           time.Time   `json:"date"`
	ThreatLevel    int         `json:"threat_level"`
	Analysis       int         `json:"analysis"`
	Distribution   int         `json:"distribution"`
	Published      bool        `json:"published"`
	Attributes     []Attribute `json:"attributes"`
	Tags           []Tag       `json:"tags"`
	GalaxyClusters []string    `json:"galaxy_clusters"`
}

// HasTag reports whether the event carries a tag with the exact name.
func (e Event) HasTag(name string) bool {
	for _, t := range e.Tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

// HasCluster reports whether the event carries the galaxy cluster id.
func (e Event) HasCluster(id string) bool {
	for _, c := range e.GalaxyClusters {
		if c == id {
			return true
		}
	}
	return false
}
