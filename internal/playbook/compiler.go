package playbook

import (
	"time"

	"go.uber.org/zap"

	"github.com/hmtran/floodgate/internal/ingest"
)

// Mandatory tag names. Every compiled event carries all of them, in
// this order, regardless of attack type or severity.
const (
	TagTLPGreen     = "tlp:green"
	TagIncidentType = `information-security-indicators:incident-type="ddos"`
	TagEventType    = "misp-event-type:incident"
	TagNetworkDoS   = `misp-galaxy:mitre-attack-pattern="Network Denial of Service - T1498"`
)

// Severity exposure tags.
const (
	TagTLPAmber = "tlp:amber"
	TagTLPWhite = "tlp:white"
)

// TLP tag colours as the sharing platform renders them.
const (
	colourTLPWhite = "#ffffff"
	colourTLPGreen = "#33ff00"
	colourTLPAmber = "#ffc000"
	colourTaxonomy = "#0088cc"
)

var mandatoryTags = []Tag{
	{Name: TagTLPGreen, Colour: colourTLPGreen},
	{Name: TagIncidentType, Colour: colourTaxonomy},
	{Name: TagEventType, Colour: colourTaxonomy},
	{Name: TagNetworkDoS, Colour: colourTaxonomy},
}

// Compiler maps one validated record to exactly one compliant event.
// Compilation is deterministic: the same record and clock always yield
// the same event.
type Compiler struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewCompiler(logger *zap.Logger) *Compiler {
	return &Compiler{logger: logger, now: time.Now}
}

// WithClock overrides the event date source, primarily for tests.
func (c *Compiler) WithClock(now func() time.Time) *Compiler {
	c.now = now
	return c
}

// Compile builds the compliant event for a structurally valid record.
// It never fails: unknown severity degrades to the undefined threat
// level and unknown attack types simply add no type-specific marker.
// Silent under-classification beats rejecting submitted security data.
func (c *Compiler) Compile(rec ingest.Record) Event {
	ev := Event{
		Info:         rec.Title,
		Date:         c.now().UTC(),
		ThreatLevel:  threatLevelFor(rec.Severity),
		Analysis:     AnalysisComplete,
		Distribution: DistributionCommunity,
		Published:    false,
	}

	// Attribute order is a reproducibility contract: attackers, then
	// victims, then ports, then the optional description comment.
	for _, addr := range rec.AttackerAddresses {
		ev.Attributes = append(ev.Attributes, Attribute{
			Category: "Network activity",
			Type:     "ip-src",
			Value:    addr,
			ToIDS:    true,
			Comment:  "Attacker address",
		})
	}
	for _, addr := range rec.VictimAddresses {
		ev.Attributes = append(ev.Attributes, Attribute{
			Category: "Network activity",
			Type:     "ip-dst",
			Value:    addr,
			ToIDS:    true,
			Comment:  "Victim address",
		})
	}
	for _, port := range rec.AttackPorts {
		ev.Attributes = append(ev.Attributes, Attribute{
			Category: "Network activity",
			Type:     "port",
			Value:    port,
			ToIDS:    false,
			Comment:  "Targeted port",
		})
	}
	if rec.Description != "" {
		ev.Attributes = append(ev.Attributes, Attribute{
			Category: "Other",
			Type:     "comment",
			Value:    rec.Description,
			ToIDS:    false,
		})
	}

	ev.Tags = append(ev.Tags, mandatoryTags...)
	if tag, ok := typeTagFor(rec.AttackType); ok {
		ev.Tags = append(ev.Tags, tag)
	} else if rec.AttackType != "" {
		c.logger.Warn("unknown attack type, no type marker applied",
			zap.String("attack_type", string(rec.AttackType)),
			zap.String("title", rec.Title))
	}
	if tag, ok := exposureTagFor(rec.Severity); ok {
		ev.Tags = append(ev.Tags, tag)
	}

	ev.GalaxyClusters = append(ev.GalaxyClusters, ClusterNetworkDoS)
	if sub, ok := subTechniqueFor(rec.AttackType); ok {
		ev.GalaxyClusters = append(ev.GalaxyClusters, sub)
	}

	return ev
}

// threatLevelFor is deliberately many-to-one and irreversible.
func threatLevelFor(sev ingest.Severity) int {
	switch sev {
	case ingest.SeverityCritical, ingest.SeverityHigh:
		return ThreatLevelHigh
	case ingest.SeverityMedium:
		return ThreatLevelMedium
	case ingest.SeverityLow:
		return ThreatLevelLow
	default:
		return ThreatLevelUndefined
	}
}

func typeTagFor(at ingest.AttackType) (Tag, bool) {
	switch at {
	case ingest.AttackDirectFlood:
		return Tag{Name: `ddos:type="volumetric"`, Colour: colourTaxonomy}, true
	case ingest.AttackAmplification:
		return Tag{Name: `ddos:type="reflection"`, Colour: colourTaxonomy}, true
	case ingest.AttackOther:
		return Tag{Name: `ddos:type="application-layer"`, Colour: colourTaxonomy}, true
	default:
		return Tag{}, false
	}
}

func exposureTagFor(sev ingest.Severity) (Tag, bool) {
	switch sev {
	case ingest.SeverityCritical, ingest.SeverityHigh:
		return Tag{Name: TagTLPAmber, Colour: colourTLPAmber}, true
	case ingest.SeverityMedium:
		return Tag{Name: TagTLPGreen, Colour: colourTLPGreen}, true
	case ingest.SeverityLow:
		return Tag{Name: TagTLPWhite, Colour: colourTLPWhite}, true
	default:
		return Tag{}, false
	}
}

func subTechniqueFor(at ingest.AttackType) (string, bool) {
	switch at {
	case ingest.AttackDirectFlood:
		return ClusterDirectFlood, true
	case ingest.AttackAmplification:
		return ClusterAmplification, true
	default:
		return "", false
	}
}
