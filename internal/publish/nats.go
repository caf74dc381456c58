// Package publish pushes compiled-event notices onto NATS so downstream
// consumers (dashboards, SOAR hooks) see new incidents without polling
// the platform.
package publish

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/hmtran/floodgate/internal/playbook"
)

// Publisher emits event notices on a NATS subject. A nil Publisher is
// valid and drops everything, so callers never need to branch on
// whether messaging is configured.
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

// Connect dials the NATS server and returns a publisher for subject.
func Connect(url, subject string, logger *zap.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("connected to nats",
		zap.String("url", url),
		zap.String("subject", subject))

	return &Publisher{nc: nc, subject: subject, logger: logger}, nil
}

// compiledNotice is the wire shape published per compiled event.
type compiledNotice struct {
	Info        string   `json:"info"`
	ThreatLevel int      `json:"threat_level"`
	AttackType  string   `json:"attack_type,omitempty"`
	Tags        []string `json:"tags"`
	CompiledAt  string   `json:"compiled_at"`
}

// EventCompiled publishes a notice for one compiled event. Best effort:
// failures are logged, never surfaced to the pipeline.
func (p *Publisher) EventCompiled(ev playbook.Event) {
	if p == nil || p.nc == nil {
		return
	}

	notice := compiledNotice{
		Info:        ev.Info,
		ThreatLevel: ev.ThreatLevel,
		CompiledAt:  time.Now().UTC().Format(time.RFC3339),
	}
	for _, t := range ev.Tags {
		notice.Tags = append(notice.Tags, t.Name)
		if v, ok := strings.CutPrefix(t.Name, "ddos:type="); ok {
			notice.AttackType = strings.Trim(v, `"`)
		}
	}

	data, err := json.Marshal(notice)
	if err != nil {
		p.logger.Error("failed to marshal event notice", zap.Error(err))
		return
	}

	if err := p.nc.Publish(p.subject, data); err != nil {
		p.logger.Warn("failed to publish event notice",
			zap.String("subject", p.subject),
			zap.Error(err))
	}
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	p.nc.Close()
}
