// Package pipeline wires the write path: parse, validate, assess,
// correct, compile. Each invocation is synchronous and owns its batch;
// record-level failures are collected and reported alongside whatever
// did compile.
package pipeline

import (
	"bytes"

	"go.uber.org/zap"

	"github.com/hmtran/floodgate/internal/ingest"
	"github.com/hmtran/floodgate/internal/observability"
	"github.com/hmtran/floodgate/internal/playbook"
	"github.com/hmtran/floodgate/internal/quality"
	"github.com/hmtran/floodgate/internal/validate"
)

// Format identifies the batch input format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Result is the outcome of one batch run: partial success, never total
// rejection for isolated bad rows.
type Result struct {
	Parsed     int                    `json:"parsed"`
	Compiled   []playbook.Event       `json:"-"`
	Rejected   []validate.RecordError `json:"rejected,omitempty"`
	Assessment quality.Assessment     `json:"assessment"`
}

// Pipeline runs batches through the full write path.
type Pipeline struct {
	parser    *ingest.Parser
	validator *validate.Validator
	assessor  *quality.Assessor
	compiler  *playbook.Compiler
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// New builds a pipeline. metrics may be nil (e.g. under test).
func New(logger *zap.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		parser:    ingest.NewParser(logger),
		validator: validate.New(logger),
		assessor:  quality.NewAssessor(logger),
		compiler:  playbook.NewCompiler(logger),
		logger:    logger,
		metrics:   metrics,
	}
}

// WithParser swaps the parser, used to apply configured input caps.
func (p *Pipeline) WithParser(parser *ingest.Parser) *Pipeline {
	p.parser = parser
	return p
}

// WithCompiler swaps the compiler, used by tests to pin the clock.
func (p *Pipeline) WithCompiler(compiler *playbook.Compiler) *Pipeline {
	p.compiler = compiler
	return p
}

// Run processes one batch. A returned error is batch-fatal
// (*ingest.FileFormatError); everything else lands in the Result.
func (p *Pipeline) Run(data []byte, format Format) (*Result, error) {
	var records []ingest.Record
	var err error

	switch format {
	case FormatJSON:
		if err = validate.CheckJSONShape(data); err == nil {
			records, err = p.parser.ParseJSON(bytes.NewReader(data))
		}
	default:
		records, err = p.parser.ParseCSV(bytes.NewReader(data))
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.BatchesRejected.Inc()
		}
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.RecordsParsed.WithLabelValues(string(format)).Add(float64(len(records)))
	}

	structured := format == FormatJSON
	result := &Result{
		Parsed:     len(records),
		Assessment: p.assessor.AssessBatch(records, structured),
	}
	if p.metrics != nil {
		p.metrics.BatchQualityScore.Observe(result.Assessment.QualityScore)
	}

	for i, rec := range records {
		row := i + 1

		validated, outcome := p.validator.ValidateRecord(rec, row)
		if !outcome.Valid {
			result.Rejected = append(result.Rejected, outcome.Errors...)
			if p.metrics != nil {
				p.metrics.RecordsRejected.Inc()
			}
			continue
		}

		ev := p.compiler.Compile(quality.CorrectRecord(validated))
		result.Compiled = append(result.Compiled, ev)
		if p.metrics != nil {
			p.metrics.EventsCompiled.Inc()
		}
	}

	p.logger.Info("batch processed",
		zap.String("format", string(format)),
		zap.Int("parsed", result.Parsed),
		zap.Int("compiled", len(result.Compiled)),
		zap.Int("rejected", len(result.Rejected)))

	return result, nil
}
