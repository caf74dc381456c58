package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Input limits. Batches are parsed fully in memory, so both are hard caps.
const (
	DefaultMaxFileBytes int64 = 100 * 1024 * 1024
	DefaultMaxRecords         = 1000
)

// listDelimiter separates values inside multi-valued cells.
const listDelimiter = ","

// RequiredHeaders are the CSV columns a batch must carry. A file missing
// any of them is rejected before a single row is parsed.
var RequiredHeaders = []string{"title", "description", "attacker_addresses", "victim_addresses"}

// RecommendedHeaders are accepted but not enforced at the batch level.
var RecommendedHeaders = []string{"attack_ports", "attack_type", "severity"}

// FileFormatError is a batch-fatal input error: the whole file is
// rejected and no records are produced.
type FileFormatError struct {
	MissingHeaders []string
	Reason         string
}

func (e *FileFormatError) Error() string {
	if len(e.MissingHeaders) > 0 {
		return fmt.Sprintf("invalid input file: missing required headers: %s", strings.Join(e.MissingHeaders, ", "))
	}
	return "invalid input file: " + e.Reason
}

// Parser turns raw CSV or JSON bytes into an ordered record sequence.
type Parser struct {
	logger     *zap.Logger
	maxBytes   int64
	maxRecords int
}

// NewParser creates a parser with the default input caps.
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{
		logger:     logger,
		maxBytes:   DefaultMaxFileBytes,
		maxRecords: DefaultMaxRecords,
	}
}

// WithLimits overrides the input caps. Zero values keep the defaults.
func (p *Parser) WithLimits(maxBytes int64, maxRecords int) *Parser {
	if maxBytes > 0 {
		p.maxBytes = maxBytes
	}
	if maxRecords > 0 {
		p.maxRecords = maxRecords
	}
	return p
}

// ParseCSV parses a header+rows CSV batch. Input order is preserved.
func (p *Parser) ParseCSV(r io.Reader) ([]Record, error) {
	data, err := p.readCapped(r)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, &FileFormatError{Reason: fmt.Sprintf("unreadable CSV header: %v", err)}
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, name := range RequiredHeaders {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &FileFormatError{MissingHeaders: missing}
	}

	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &FileFormatError{Reason: fmt.Sprintf("unreadable CSV row: %v", err)}
		}

		cell := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		records = append(records, Record{
			Title:             cell("title"),
			Description:       cell("description"),
			AttackerAddresses: splitList(cell("attacker_addresses")),
			VictimAddresses:   splitList(cell("victim_addresses")),
			AttackPorts:       splitList(cell("attack_ports")),
			AttackType:        AttackType(cell("attack_type")),
			Severity:          Severity(cell("severity")),
		})

		if len(records) >= p.maxRecords {
			p.logger.Warn("record cap reached, remaining rows dropped",
				zap.Int("max_records", p.maxRecords))
			break
		}
	}

	return records, nil
}

// ParseJSON parses a structured batch: a single object, an array of
// objects, or an {"events": [...]} wrapper. All are normalized to an
// ordered array.
func (p *Parser) ParseJSON(r io.Reader) ([]Record, error) {
	data, err := p.readCapped(r)
	if err != nil {
		return nil, err
	}

	raw, err := decodeJSONBatch(data)
	if err != nil {
		return nil, err
	}

	if len(raw) > p.maxRecords {
		p.logger.Warn("record cap reached, remaining objects dropped",
			zap.Int("max_records", p.maxRecords),
			zap.Int("received", len(raw)))
		raw = raw[:p.maxRecords]
	}

	records := make([]Record, 0, len(raw))
	for _, jr := range raw {
		records = append(records, jr.toRecord())
	}
	return records, nil
}

func (p *Parser) readCapped(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return nil, &FileFormatError{Reason: fmt.Sprintf("read failed: %v", err)}
	}
	if int64(len(data)) > p.maxBytes {
		return nil, &FileFormatError{Reason: fmt.Sprintf("input exceeds %d byte limit", p.maxBytes)}
	}
	return data, nil
}

func decodeJSONBatch(data []byte) ([]jsonRecord, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, &FileFormatError{Reason: "empty JSON input"}
	}

	if trimmed[0] == '[' {
		var arr []jsonRecord
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return nil, &FileFormatError{Reason: fmt.Sprintf("invalid JSON array: %v", err)}
		}
		return arr, nil
	}

	var wrapper struct {
		Events []jsonRecord `json:"events"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err == nil && wrapper.Events != nil {
		return wrapper.Events, nil
	}

	var single jsonRecord
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, &FileFormatError{Reason: fmt.Sprintf("invalid JSON object: %v", err)}
	}
	return []jsonRecord{single}, nil
}

// jsonRecord tolerates the loose shapes analysts actually submit: ports
// as numbers or strings, multi-valued fields as arrays or delimited
// strings.
type jsonRecord struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	AttackerAddresses flexList `json:"attacker_addresses"`
	VictimAddresses   flexList `json:"victim_addresses"`
	AttackPorts       flexList `json:"attack_ports"`
	AttackType        string   `json:"attack_type"`
	Severity          string   `json:"severity"`
}

func (jr jsonRecord) toRecord() Record {
	return Record{
		Title:             strings.TrimSpace(jr.Title),
		Description:       strings.TrimSpace(jr.Description),
		AttackerAddresses: jr.AttackerAddresses.clean(),
		VictimAddresses:   jr.VictimAddresses.clean(),
		AttackPorts:       jr.AttackPorts.clean(),
		AttackType:        AttackType(strings.TrimSpace(jr.AttackType)),
		Severity:          Severity(strings.TrimSpace(jr.Severity)),
	}
}

// flexList decodes a JSON array of strings or numbers, or a single
// delimited string.
type flexList []string

func (f *flexList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = nil
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = splitList(s)
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(item, &n); err != nil {
			return fmt.Errorf("list values must be strings or numbers, got %s", string(item))
		}
		out = append(out, n.String())
	}
	*f = out
	return nil
}

func (f flexList) clean() []string {
	out := make([]string, 0, len(f))
	for _, v := range f {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// splitList splits a delimited multi-valued cell, trimming each segment
// and dropping empty ones silently.
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, listDelimiter)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
